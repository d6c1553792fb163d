package setup

import (
	"strings"
	"time"

	"steward/internal/entity"
	"steward/internal/governance"
)

// DraftProblem is an in-session problem candidate. It becomes a persisted
// entity only at publish.
type DraftProblem struct {
	Name               string           `json:"name"`
	FailureDescription string           `json:"failure_description"`
	Direction          entity.Direction `json:"direction"`
	Rationale          string           `json:"rationale"`
	Evidence           []string         `json:"evidence"`
	AllocationPct      int              `json:"allocation_pct"`
}

// Complete reports whether every required field is filled. Completeness is
// derived, never stored.
func (p DraftProblem) Complete() bool {
	if strings.TrimSpace(p.Name) == "" ||
		strings.TrimSpace(p.FailureDescription) == "" ||
		strings.TrimSpace(p.Rationale) == "" ||
		!p.Direction.Valid() {
		return false
	}
	if len(p.Evidence) != 3 {
		return false
	}
	for _, e := range p.Evidence {
		if strings.TrimSpace(e) == "" {
			return false
		}
	}
	return p.AllocationPct >= 0 && p.AllocationPct <= 100
}

// DraftBoardMember anchors a role to a problem by draft index until publish
// resolves it into a concrete problem reference.
type DraftBoardMember struct {
	Role         entity.BoardRole     `json:"role"`
	Partition    entity.RolePartition `json:"partition"`
	ProblemIndex int                  `json:"problem_index"`
	Demand       string               `json:"demand"`
	Persona      entity.Persona       `json:"persona"`
}

// DraftTrigger is an in-session re-trigger rule.
type DraftTrigger struct {
	Type        entity.TriggerType `json:"type"`
	Description string             `json:"description"`
	Condition   string             `json:"condition"`
	Action      string             `json:"action"`
	DueAt       *time.Time         `json:"due_at,omitempty"`
}

// Health holds the computed allocation split and the generated statements.
type Health struct {
	AppreciatingPct      float64 `json:"appreciating_pct"`
	DepreciatingPct      float64 `json:"depreciating_pct"`
	StablePct            float64 `json:"stable_pct"`
	RiskStatement        string  `json:"risk_statement"`
	OpportunityStatement string  `json:"opportunity_statement"`
}

// Data is the setup session accumulator. Transitions return new values and
// never mutate their input.
type Data struct {
	CurrentState       governance.State      `json:"current_state"`
	AbstractionMode    bool                  `json:"abstraction_mode"`
	RememberGate       bool                  `json:"remember_gate"`
	VaguenessSkipCount int                   `json:"vagueness_skip_count"`
	Transcript         governance.Transcript `json:"transcript"`

	ProblemIndex int                `json:"problem_index"`
	Problems     []DraftProblem     `json:"problems"`
	Board        []DraftBoardMember `json:"board"`
	Triggers     []DraftTrigger     `json:"triggers"`
	Health       Health             `json:"health"`

	StartedAt time.Time `json:"started_at"`
}

// New returns a fresh setup session positioned at the sensitivity gate.
func New(now time.Time) Data {
	return Data{
		CurrentState: governance.StateSensitivityGate,
		StartedAt:    now,
	}
}

// Seal packs the session into its persisted envelope.
func (d Data) Seal() (governance.Envelope, error) {
	return governance.Seal(d.CurrentState, d.AbstractionMode, d.VaguenessSkipCount, d)
}

// FromEnvelope reconstructs session data, merging the envelope's discrete
// fields over the decoded document.
func FromEnvelope(env governance.Envelope) (Data, error) {
	var d Data
	if err := governance.Open(env, &d); err != nil {
		return Data{}, err
	}
	d.CurrentState = env.CurrentState
	d.AbstractionMode = env.AbstractionMode
	d.VaguenessSkipCount = env.VaguenessSkipCount
	return d, nil
}

func (d Data) clone() Data {
	out := d
	out.Transcript = append(governance.Transcript(nil), d.Transcript...)
	out.Problems = append([]DraftProblem(nil), d.Problems...)
	for i := range out.Problems {
		out.Problems[i].Evidence = append([]string(nil), d.Problems[i].Evidence...)
	}
	out.Board = append([]DraftBoardMember(nil), d.Board...)
	out.Triggers = append([]DraftTrigger(nil), d.Triggers...)
	return out
}

// AllocationSum is the total of the drafted time allocations.
func (d Data) AllocationSum() int {
	sum := 0
	for _, p := range d.Problems {
		sum += p.AllocationPct
	}
	return sum
}

// HasAppreciating reports whether any draft problem is appreciating.
func (d Data) HasAppreciating() bool {
	for _, p := range d.Problems {
		if p.Direction == entity.DirectionAppreciating {
			return true
		}
	}
	return false
}
