package entity

import "time"

// Direction classifies where a problem is heading if left alone.
type Direction string

const (
	DirectionAppreciating Direction = "appreciating"
	DirectionDepreciating Direction = "depreciating"
	DirectionStable       Direction = "stable"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionAppreciating, DirectionDepreciating, DirectionStable:
		return true
	}
	return false
}

// Problem is a persisted portfolio problem. Drafts live inside the setup
// session document until publish; only publish creates these.
type Problem struct {
	ID                 string    `json:"id"`
	UserID             UserID    `json:"user_id"`
	Name               string    `json:"name"`
	FailureDescription string    `json:"failure_description"`
	Direction          Direction `json:"direction"`
	Rationale          string    `json:"rationale"`
	Evidence           []string  `json:"evidence"`
	AllocationPct      int       `json:"allocation_pct"`
	DisplayOrder       int       `json:"display_order"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

// BoardRole tags an advisory board seat. The core catalogue is fixed; the two
// growth roles exist only while the portfolio holds an appreciating problem.
type BoardRole string

const (
	RoleStrategist     BoardRole = "strategist"
	RoleRiskOfficer    BoardRole = "riskOfficer"
	RoleOperator       BoardRole = "operator"
	RoleAccountability BoardRole = "accountability"
	RoleContrarian     BoardRole = "contrarian"

	RoleGrowthScout BoardRole = "growthScout"
	RoleUpsideMaxer BoardRole = "upsideMaximizer"
)

// RolePartition is the disjoint core/growth split of the board.
type RolePartition string

const (
	PartitionCore   RolePartition = "core"
	PartitionGrowth RolePartition = "growth"
)

func CoreRoleCatalogue() []BoardRole {
	return []BoardRole{RoleStrategist, RoleRiskOfficer, RoleOperator, RoleAccountability, RoleContrarian}
}

func GrowthRoleCatalogue() []BoardRole {
	return []BoardRole{RoleGrowthScout, RoleUpsideMaxer}
}

// Persona is the generated character sheet for one board member.
type Persona struct {
	Name               string `json:"name"`
	Background         string `json:"background"`
	CommunicationStyle string `json:"communication_style"`
	SignaturePhrase    string `json:"signature_phrase,omitempty"`
}

// BoardMember is a persisted advisory board seat anchored to one problem.
type BoardMember struct {
	ID           string        `json:"id"`
	UserID       UserID        `json:"user_id"`
	Role         BoardRole     `json:"role"`
	Partition    RolePartition `json:"partition"`
	ProblemID    string        `json:"problem_id"`
	Demand       string        `json:"demand"`
	Persona      Persona       `json:"persona"`
	DisplayOrder int           `json:"display_order"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TriggerType tags a re-trigger rule.
type TriggerType string

const (
	TriggerRoleChange     TriggerType = "roleChange"
	TriggerScopeChange    TriggerType = "scopeChange"
	TriggerDirectionShift TriggerType = "directionShift"
	TriggerTimeDrift      TriggerType = "timeDrift"
	TriggerAnnual         TriggerType = "annual"
)

// Trigger is a persisted re-trigger rule. The annual rule's DueAt is always
// setup date + 365 days.
type Trigger struct {
	ID          string      `json:"id"`
	UserID      UserID      `json:"user_id"`
	Type        TriggerType `json:"type"`
	Description string      `json:"description"`
	Condition   string      `json:"condition"`
	Action      string      `json:"action"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	Met         bool        `json:"met"`
	MetAt       *time.Time  `json:"met_at,omitempty"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// PortfolioHealth is the singleton health record per user, re-versioned on
// every publish.
type PortfolioHealth struct {
	UserID               UserID    `json:"user_id"`
	Version              int       `json:"version"`
	AppreciatingPct      float64   `json:"appreciating_pct"`
	DepreciatingPct      float64   `json:"depreciating_pct"`
	StablePct            float64   `json:"stable_pct"`
	RiskStatement        string    `json:"risk_statement"`
	OpportunityStatement string    `json:"opportunity_statement"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// PortfolioVersion is an immutable numbered snapshot written at publish time.
// Superseded, never edited.
type PortfolioVersion struct {
	UserID    UserID            `json:"user_id"`
	Version   int               `json:"version"`
	Problems  []Problem         `json:"problems"`
	Health    PortfolioHealth   `json:"health"`
	Anchoring map[string]string `json:"anchoring"` // member id -> problem id
	Triggers  []Trigger         `json:"triggers"`
	CreatedAt time.Time         `json:"created_at"`
}

// BetStatus is the lifecycle of a quarterly bet.
type BetStatus string

const (
	BetOpen    BetStatus = "OPEN"
	BetCorrect BetStatus = "CORRECT"
	BetWrong   BetStatus = "WRONG"
	BetPartial BetStatus = "PARTIAL"
)

// Bet is the falsifiable commitment made at the end of a quarterly review.
type Bet struct {
	ID          string     `json:"id"`
	UserID      UserID     `json:"user_id"`
	Description string     `json:"description"`
	Status      BetStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

// Report records one generated quarterly report. The markdown body lives in
// the document store under Path.
type Report struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
