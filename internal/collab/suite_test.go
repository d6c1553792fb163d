package collab

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"steward/internal/entity"
)

// rawClient returns a fixed payload for every task, so suite-side JSON
// contract checks can be exercised directly.
type rawClient struct {
	raw json.RawMessage
	err error
}

func (c *rawClient) Name() string { return "raw" }
func (c *rawClient) Close() error { return nil }
func (c *rawClient) GenerateJSON(context.Context, string, any) (json.RawMessage, error) {
	return c.raw, c.err
}

func TestClassifyVagueness(t *testing.T) {
	ctx := context.Background()
	s := NewSuite(NewFakeClient())

	vague, err := s.ClassifyVagueness(ctx, "What did you commit to?", "stuff happened")
	require.NoError(t, err)
	require.True(t, vague)

	vague, err = s.ClassifyVagueness(ctx, "What did you commit to?", "I shipped the billing migration on March 3rd and closed two accounts.")
	require.NoError(t, err)
	require.False(t, vague)
}

func TestGenerateAnchoringOnePerRole(t *testing.T) {
	ctx := context.Background()
	s := NewSuite(NewFakeClient())
	problems := []ProblemSummary{{Name: "career platform", Direction: entity.DirectionAppreciating, AllocationPct: 60}}
	roles := entity.CoreRoleCatalogue()

	anchorings, err := s.GenerateAnchoring(ctx, problems, roles, true)
	require.NoError(t, err)
	require.Len(t, anchorings, len(roles))
	for _, a := range anchorings {
		require.Less(t, a.ProblemIndex, len(problems))
		require.NotEmpty(t, a.Demand)
	}
}

func TestGenerateAnchoringCountMismatchRejected(t *testing.T) {
	s := NewSuite(&rawClient{raw: json.RawMessage(`{"anchorings":[{"problem_index":0,"demand":"x"}]}`)})
	_, err := s.GenerateAnchoring(context.Background(), nil, entity.CoreRoleCatalogue(), false)
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestGeneratePersonaRequiresName(t *testing.T) {
	s := NewSuite(&rawClient{raw: json.RawMessage(`{"name":"  ","background":"b"}`)})
	_, err := s.GeneratePersona(context.Background(), entity.CoreRoleCatalogue()[0], nil, "demand")
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestGenerateBoardQuestion(t *testing.T) {
	s := NewSuite(NewFakeClient())
	q, err := s.GenerateBoardQuestion(context.Background(), BoardQuestionRequest{
		Role:        entity.CoreRoleCatalogue()[0],
		PersonaName: "Fake Advisor",
	})
	require.NoError(t, err)
	require.NotEmpty(t, q)
}

func TestGenerateBoardQuestionEmptyRejected(t *testing.T) {
	s := NewSuite(&rawClient{raw: json.RawMessage(`{"question":"   "}`)})
	_, err := s.GenerateBoardQuestion(context.Background(), BoardQuestionRequest{})
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestGenerateReportEmptyRejected(t *testing.T) {
	s := NewSuite(&rawClient{raw: json.RawMessage(`{"markdown":""}`)})
	_, err := s.GenerateReport(context.Background(), map[string]any{})
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestSuitePropagatesClientError(t *testing.T) {
	boom := errors.New("model unavailable")
	s := NewSuite(&rawClient{err: boom})
	_, err := s.ClassifyVagueness(context.Background(), "q", "a")
	require.ErrorIs(t, err, boom)
}

func TestSuiteRejectsMalformedJSON(t *testing.T) {
	s := NewSuite(&rawClient{raw: json.RawMessage(`{"is_vague":`)})
	_, err := s.ClassifyVagueness(context.Background(), "q", "a")
	require.ErrorIs(t, err, ErrInvalidJSON)
}
