package governance

import (
	"context"
	"strings"
)

// SkipQuota is the per-session ceiling on vagueness skips. The counter is
// shared by every gate site in the session, never per-question.
const SkipQuota = 2

// SkipSentinel is recorded verbatim as the answer of a skipped question.
const SkipSentinel = "[skipped]"

// Classifier judges whether an answer is too vague to act on.
type Classifier interface {
	ClassifyVagueness(ctx context.Context, question, answer string) (bool, error)
}

// Gate is the shared vagueness policy. Both workflow engines route gated
// answers through it; quota enforcement lives only in AttemptSkip.
type Gate struct {
	classifier Classifier
}

func NewGate(classifier Classifier) *Gate {
	return &Gate{classifier: classifier}
}

// Review classifies an answer. An empty answer is vague without consulting
// the classifier. Classifier failures come back wrapped as retryable
// collaborator errors; the caller must not advance state on them.
func (g *Gate) Review(ctx context.Context, question, answer string) (bool, error) {
	if strings.TrimSpace(answer) == "" {
		return true, nil
	}
	vague, err := g.classifier.ClassifyVagueness(ctx, question, answer)
	if err != nil {
		return false, WrapCollaborator("vagueness classifier", err)
	}
	return vague, nil
}

// AttemptSkip is the single chokepoint for spending the skip quota. It
// returns the incremented counter, or ErrSkipQuotaExceeded with the input
// untouched.
func AttemptSkip(count int) (int, error) {
	if count >= SkipQuota {
		return count, ErrSkipQuotaExceeded
	}
	return count + 1, nil
}
