package governance

import (
	"context"
	"errors"
	"testing"
)

type stubClassifier struct {
	vague bool
	err   error
}

func (s stubClassifier) ClassifyVagueness(context.Context, string, string) (bool, error) {
	return s.vague, s.err
}

func TestGateEmptyAnswerIsVague(t *testing.T) {
	g := NewGate(stubClassifier{err: errors.New("must not be called")})
	vague, err := g.Review(context.Background(), "q", "   ")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !vague {
		t.Fatalf("expected empty answer to be vague")
	}
}

func TestGateClassifierVerdict(t *testing.T) {
	g := NewGate(stubClassifier{vague: true})
	vague, err := g.Review(context.Background(), "q", "something happened")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !vague {
		t.Fatalf("expected classifier verdict to pass through")
	}
}

func TestGateClassifierFailureIsRetryable(t *testing.T) {
	g := NewGate(stubClassifier{err: errors.New("model down")})
	_, err := g.Review(context.Background(), "q", "something happened")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable collaborator error, got %v", err)
	}
}

func TestAttemptSkipQuota(t *testing.T) {
	count, err := AttemptSkip(0)
	if err != nil || count != 1 {
		t.Fatalf("first skip: count=%d err=%v", count, err)
	}
	count, err = AttemptSkip(count)
	if err != nil || count != 2 {
		t.Fatalf("second skip: count=%d err=%v", count, err)
	}
	count, err = AttemptSkip(count)
	if !errors.Is(err, ErrSkipQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if count != 2 {
		t.Fatalf("counter must not move past quota, got %d", count)
	}
}
