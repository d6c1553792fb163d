package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"steward/internal/entity"
)

// ProblemSummary is the collaborator-facing view of a problem, draft or
// persisted.
type ProblemSummary struct {
	Name               string           `json:"name"`
	FailureDescription string           `json:"failure_description"`
	Direction          entity.Direction `json:"direction"`
	Rationale          string           `json:"rationale"`
	AllocationPct      int              `json:"allocation_pct"`
}

// Anchoring ties a board role to a problem by input index, with the demand
// the member will press on.
type Anchoring struct {
	ProblemIndex int    `json:"problem_index"`
	Demand       string `json:"demand"`
}

// HealthStatements is the generated risk/opportunity pair for a portfolio.
type HealthStatements struct {
	RiskStatement        string `json:"risk_statement"`
	OpportunityStatement string `json:"opportunity_statement"`
}

// BoardQuestionRequest carries everything the question generator gets about
// the member being interrogated.
type BoardQuestionRequest struct {
	Role            entity.BoardRole `json:"role"`
	PersonaName     string           `json:"persona_name"`
	AnchoredProblem string           `json:"anchored_problem,omitempty"`
	AnchoredDemand  string           `json:"anchored_demand,omitempty"`
	SessionContext  any              `json:"session_context"`
}

const (
	promptClassify = `[task: classify_vagueness]
You review answers in a structured self-interrogation session. Decide whether
the answer is vague (abstract, evasive, lacking a concrete example) or
concrete. Respond with JSON: {"is_vague": bool}.`

	promptAnchoring = `[task: generate_anchoring]
Given a list of portfolio problems and a list of advisory board roles, assign
each role exactly one problem to press on, with a one-sentence demand written
in that role's voice. When asked to focus on appreciating problems, prefer
those. Respond with JSON: {"anchorings": [{"problem_index": int, "demand": string}]},
one entry per role, in the same order as the input roles.`

	promptPersona = `[task: generate_persona]
Write a persona for one advisory board member: a name, a two-sentence
background, a communication style, and optionally a signature phrase. Respond
with JSON: {"name": string, "background": string, "communication_style": string,
"signature_phrase": string}.`

	promptHealth = `[task: generate_health_statements]
Given a problem portfolio and its appreciating/depreciating/stable allocation
percentages, write one risk statement and one opportunity statement. Respond
with JSON: {"risk_statement": string, "opportunity_statement": string}.`

	promptBoardQuestion = `[task: generate_board_question]
Write one pointed question this board member would ask, grounded in their
role, anchoring, and the session so far. Respond with JSON: {"question": string}.`

	promptReport = `[task: generate_report]
Write the quarterly governance report in markdown from the full session data.
Respond with JSON: {"markdown": string}.`

	promptTrend = `[task: describe_trend]
Describe in one or two sentences how the portfolio health moved between the
previous and current snapshots. Respond with JSON: {"description": string}.`
)

// Suite implements every collaborator contract the engines consume over one
// JSON-generation client.
type Suite struct {
	client Client
}

func NewSuite(client Client) *Suite {
	return &Suite{client: client}
}

func (s *Suite) ClassifyVagueness(ctx context.Context, question, answer string) (bool, error) {
	raw, err := s.client.GenerateJSON(ctx, promptClassify, map[string]string{
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return false, err
	}
	var out struct {
		IsVague bool `json:"is_vague"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out.IsVague, nil
}

func (s *Suite) GenerateAnchoring(ctx context.Context, problems []ProblemSummary, roles []entity.BoardRole, focusOnAppreciating bool) ([]Anchoring, error) {
	raw, err := s.client.GenerateJSON(ctx, promptAnchoring, map[string]any{
		"problems":              problems,
		"roles":                 roles,
		"focus_on_appreciating": focusOnAppreciating,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Anchorings []Anchoring `json:"anchorings"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(out.Anchorings) != len(roles) {
		return nil, fmt.Errorf("%w: got %d anchorings for %d roles", ErrInvalidJSON, len(out.Anchorings), len(roles))
	}
	return out.Anchorings, nil
}

func (s *Suite) GeneratePersona(ctx context.Context, role entity.BoardRole, problem *ProblemSummary, demand string) (entity.Persona, error) {
	in := map[string]any{"role": role, "demand": demand}
	if problem != nil {
		in["anchored_problem"] = *problem
	}
	raw, err := s.client.GenerateJSON(ctx, promptPersona, in)
	if err != nil {
		return entity.Persona{}, err
	}
	var out struct {
		Name               string `json:"name"`
		Background         string `json:"background"`
		CommunicationStyle string `json:"communication_style"`
		SignaturePhrase    string `json:"signature_phrase"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.Persona{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if strings.TrimSpace(out.Name) == "" {
		return entity.Persona{}, fmt.Errorf("%w: persona name is empty", ErrInvalidJSON)
	}
	return entity.Persona{
		Name:               out.Name,
		Background:         out.Background,
		CommunicationStyle: out.CommunicationStyle,
		SignaturePhrase:    out.SignaturePhrase,
	}, nil
}

func (s *Suite) GenerateHealthStatements(ctx context.Context, problems []ProblemSummary, appreciatingPct, depreciatingPct, stablePct float64) (HealthStatements, error) {
	raw, err := s.client.GenerateJSON(ctx, promptHealth, map[string]any{
		"problems":         problems,
		"appreciating_pct": appreciatingPct,
		"depreciating_pct": depreciatingPct,
		"stable_pct":       stablePct,
	})
	if err != nil {
		return HealthStatements{}, err
	}
	var out HealthStatements
	if err := json.Unmarshal(raw, &out); err != nil {
		return HealthStatements{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out, nil
}

func (s *Suite) GenerateBoardQuestion(ctx context.Context, req BoardQuestionRequest) (string, error) {
	raw, err := s.client.GenerateJSON(ctx, promptBoardQuestion, req)
	if err != nil {
		return "", err
	}
	var out struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if strings.TrimSpace(out.Question) == "" {
		return "", fmt.Errorf("%w: board question is empty", ErrInvalidJSON)
	}
	return out.Question, nil
}

func (s *Suite) GenerateReport(ctx context.Context, sessionDoc any) (string, error) {
	raw, err := s.client.GenerateJSON(ctx, promptReport, sessionDoc)
	if err != nil {
		return "", err
	}
	var out struct {
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if strings.TrimSpace(out.Markdown) == "" {
		return "", fmt.Errorf("%w: report is empty", ErrInvalidJSON)
	}
	return out.Markdown, nil
}

func (s *Suite) DescribeTrend(ctx context.Context, prevAppreciating, currAppreciating, prevDepreciating, currDepreciating float64) (string, error) {
	raw, err := s.client.GenerateJSON(ctx, promptTrend, map[string]float64{
		"prev_appreciating": prevAppreciating,
		"curr_appreciating": currAppreciating,
		"prev_depreciating": prevDepreciating,
		"curr_depreciating": currDepreciating,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out.Description, nil
}
