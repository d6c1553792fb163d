package quarterly

import (
	"time"

	"steward/internal/entity"
	"steward/internal/governance"
)

// RosterMember is the interrogation view of one active board member,
// captured at the prerequisites gate so the walk stays stable even if the
// portfolio changes mid-session.
type RosterMember struct {
	ID          string           `json:"id"`
	Role        entity.BoardRole `json:"role"`
	PersonaName string           `json:"persona_name"`
	ProblemID   string           `json:"problem_id,omitempty"`
	ProblemName string           `json:"problem_name,omitempty"`
	Demand      string           `json:"demand,omitempty"`
}

// OpenBetRef is the open bet captured for evaluation, if any.
type OpenBetRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// BetEvaluation records the verdict on the last open bet.
type BetEvaluation struct {
	BetID     string           `json:"bet_id,omitempty"`
	Outcome   entity.BetStatus `json:"outcome,omitempty"`
	Note      string           `json:"note,omitempty"`
	NoOpenBet bool             `json:"no_open_bet,omitempty"`
}

// BoardResponse is one member's interrogation record.
type BoardResponse struct {
	MemberID string           `json:"member_id"`
	Role     entity.BoardRole `json:"role"`
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Vague    bool             `json:"vague,omitempty"`
	Skipped  bool             `json:"skipped,omitempty"`
}

// TriggerStatus is a snapshot of one trigger's met flag at session time.
type TriggerStatus struct {
	TriggerID   string             `json:"trigger_id"`
	Type        entity.TriggerType `json:"type"`
	Description string             `json:"description"`
	Met         bool               `json:"met"`
}

// HealthTrend diffs the live direction split against the last persisted
// snapshot.
type HealthTrend struct {
	PrevVersion      int     `json:"prev_version"`
	PrevAppreciating float64 `json:"prev_appreciating"`
	PrevDepreciating float64 `json:"prev_depreciating"`
	PrevStable       float64 `json:"prev_stable"`
	CurrAppreciating float64 `json:"curr_appreciating"`
	CurrDepreciating float64 `json:"curr_depreciating"`
	CurrStable       float64 `json:"curr_stable"`
	Description      string  `json:"description"`
}

// NewBet is the commitment drafted at the end of the review.
type NewBet struct {
	Description string `json:"description"`
}

// Data is the quarterly session accumulator.
type Data struct {
	CurrentState       governance.State      `json:"current_state"`
	AbstractionMode    bool                  `json:"abstraction_mode"`
	RememberGate       bool                  `json:"remember_gate"`
	VaguenessSkipCount int                   `json:"vagueness_skip_count"`
	Transcript         governance.Transcript `json:"transcript"`

	OpenBet             *OpenBetRef             `json:"open_bet,omitempty"`
	LastReportAt        *time.Time              `json:"last_report_at,omitempty"`
	RecentReportWarning bool                    `json:"recent_report_warning,omitempty"`
	PrevHealth          *entity.PortfolioHealth `json:"prev_health,omitempty"`
	CoreRoster          []RosterMember          `json:"core_roster"`
	GrowthRoster        []RosterMember          `json:"growth_roster"`
	TriggerStatuses     []TriggerStatus         `json:"trigger_statuses"`

	BetEval         BetEvaluation               `json:"bet_eval"`
	Reflections     map[governance.State]string `json:"reflections"`
	HasAppreciating bool                        `json:"has_appreciating"`
	Trend           HealthTrend                 `json:"trend"`
	Bet             NewBet                      `json:"bet"`

	ActiveRoster    governance.Roster `json:"active_roster,omitempty"`
	MemberIndex     int               `json:"member_index"`
	CoreResponses   []BoardResponse   `json:"core_responses"`
	GrowthResponses []BoardResponse   `json:"growth_responses"`
	PendingQuestion string            `json:"pending_question,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// New returns a fresh quarterly session positioned at the sensitivity gate.
func New(now time.Time) Data {
	return Data{
		CurrentState: governance.StateSensitivityGate,
		Reflections:  make(map[governance.State]string),
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
	if d.Reflections == nil {
		d.Reflections = make(map[governance.State]string)
	}
	d.CurrentState = env.CurrentState
	d.AbstractionMode = env.AbstractionMode
	d.VaguenessSkipCount = env.VaguenessSkipCount
	return d, nil
}

func (d Data) clone() Data {
	out := d
	out.Transcript = append(governance.Transcript(nil), d.Transcript...)
	out.CoreRoster = append([]RosterMember(nil), d.CoreRoster...)
	out.GrowthRoster = append([]RosterMember(nil), d.GrowthRoster...)
	out.TriggerStatuses = append([]TriggerStatus(nil), d.TriggerStatuses...)
	out.CoreResponses = append([]BoardResponse(nil), d.CoreResponses...)
	out.GrowthResponses = append([]BoardResponse(nil), d.GrowthResponses...)
	out.Reflections = make(map[governance.State]string, len(d.Reflections))
	for k, v := range d.Reflections {
		out.Reflections[k] = v
	}
	if d.OpenBet != nil {
		ref := *d.OpenBet
		out.OpenBet = &ref
	}
	if d.LastReportAt != nil {
		at := *d.LastReportAt
		out.LastReportAt = &at
	}
	if d.PrevHealth != nil {
		h := *d.PrevHealth
		out.PrevHealth = &h
	}
	return out
}

// activeRoster returns the roster currently being walked.
func (d Data) activeRoster() []RosterMember {
	if d.ActiveRoster == governance.RosterGrowth {
		return d.GrowthRoster
	}
	return d.CoreRoster
}

// CurrentMember returns the member the interrogation is pointed at.
func (d Data) CurrentMember() (RosterMember, bool) {
	roster := d.activeRoster()
	if d.MemberIndex < 0 || d.MemberIndex >= len(roster) {
		return RosterMember{}, false
	}
	return roster[d.MemberIndex], true
}
