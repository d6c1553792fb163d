package setup

import (
	"context"
	"fmt"
	"time"

	"steward/internal/collab"
	"steward/internal/entity"
	"steward/internal/governance"
)

// MinProblems and MaxProblems bound the portfolio cardinality.
const (
	MinProblems = 3
	MaxProblems = 5
)

// Allocation tiers. Sums inside the ideal band proceed silently; inside the
// acceptable band they proceed with a warning; outside they block.
const (
	IdealLow       = 95
	IdealHigh      = 105
	AcceptableLow  = 90
	AcceptableHigh = 110
)

// AllocationStatus is the three-tier verdict on the time allocation sum.
type AllocationStatus string

const (
	AllocationIdeal      AllocationStatus = "ideal"
	AllocationAcceptable AllocationStatus = "acceptable"
	AllocationBlocked    AllocationStatus = "blocked"
)

// StatusForSum classifies an allocation sum.
func StatusForSum(sum int) AllocationStatus {
	switch {
	case sum >= IdealLow && sum <= IdealHigh:
		return AllocationIdeal
	case sum >= AcceptableLow && sum <= AcceptableHigh:
		return AllocationAcceptable
	default:
		return AllocationBlocked
	}
}

// Collaborators is what the setup engine needs from the generation layer.
type Collaborators interface {
	GenerateAnchoring(ctx context.Context, problems []collab.ProblemSummary, roles []entity.BoardRole, focusOnAppreciating bool) ([]collab.Anchoring, error)
	GeneratePersona(ctx context.Context, role entity.BoardRole, problem *collab.ProblemSummary, demand string) (entity.Persona, error)
	GenerateHealthStatements(ctx context.Context, problems []collab.ProblemSummary, appreciatingPct, depreciatingPct, stablePct float64) (collab.HealthStatements, error)
}

// Engine drives the setup workflow. It is stateless; every operation takes
// the current session data and returns a new one.
type Engine struct {
	collab Collaborators
	now    func() time.Time
}

func NewEngine(c Collaborators) *Engine {
	return &Engine{collab: c, now: time.Now}
}

// collectStates is every state where a problem draft is being edited.
var collectStates = []governance.State{
	governance.StateCollectProblem1,
	governance.StateCollectProblem2,
	governance.StateCollectProblem3,
	governance.StateCollectProblem4,
	governance.StateCollectProblem5,
}

// allowed is the transition table: which states accept which events.
var allowed = map[governance.EventKind][]governance.State{
	governance.EventSetSensitivityGate:  {governance.StateSensitivityGate},
	governance.EventSaveProblem:         collectStates,
	governance.EventValidateAndAdvance:  collectStates,
	governance.EventAddAnotherProblem:   {governance.StatePortfolioCompleteness},
	governance.EventProceedToAllocation: {governance.StatePortfolioCompleteness},
	governance.EventUpdateAllocations:   {governance.StateTimeAllocation},
	governance.EventProceedToHealth:     {governance.StateTimeAllocation},
	governance.EventCalculateHealth:     {governance.StateCalculateHealth},
	governance.EventCreateCoreRoles:     {governance.StateCreateCoreRoles},
	governance.EventCreateGrowthRoles:   {governance.StateCreateGrowthRoles},
	governance.EventCreatePersonas:      {governance.StateCreatePersonas},
	governance.EventDefineTriggers:      {governance.StateDefineTriggers},
	governance.EventPublish:             {governance.StatePublish},
}

func require(d Data, ev governance.EventKind) error {
	for _, s := range allowed[ev] {
		if d.CurrentState == s {
			return nil
		}
	}
	return &governance.InvalidTransitionError{State: d.CurrentState, Event: ev}
}

// SetSensitivityGate records the abstraction choice, immutable for the rest
// of the session, and opens the first problem slot.
func (e *Engine) SetSensitivityGate(d Data, abstraction, remember bool) (Data, error) {
	if err := require(d, governance.EventSetSensitivityGate); err != nil {
		return d, err
	}
	out := d.clone()
	out.AbstractionMode = abstraction
	out.RememberGate = remember
	out.Problems = []DraftProblem{{}}
	out.ProblemIndex = 0
	out.CurrentState = governance.StateCollectProblem1
	return out, nil
}

// SaveProblem replaces the draft at the active slot without advancing.
func (e *Engine) SaveProblem(d Data, p DraftProblem) (Data, error) {
	if err := require(d, governance.EventSaveProblem); err != nil {
		return d, err
	}
	if d.ProblemIndex < 0 || d.ProblemIndex >= len(d.Problems) {
		return d, governance.NewValidationError("problem_index", "no active problem slot")
	}
	out := d.clone()
	out.Problems[out.ProblemIndex] = p
	return out, nil
}

// ValidateAndAdvance freezes the active draft and moves on. Incomplete drafts
// are rejected with no transition.
func (e *Engine) ValidateAndAdvance(d Data) (Data, error) {
	if err := require(d, governance.EventValidateAndAdvance); err != nil {
		return d, err
	}
	p := d.Problems[d.ProblemIndex]
	if !p.Complete() {
		return d, governance.NewValidationError("problem", "draft is incomplete")
	}
	out := d.clone()
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: "Describe the problem you are betting time on.",
		Answer:   p.Name,
		At:       e.now(),
	})
	if out.ProblemIndex < MinProblems-1 {
		out.Problems = append(out.Problems, DraftProblem{})
		out.ProblemIndex++
		next, _ := governance.CollectProblemState(out.ProblemIndex)
		out.CurrentState = next
		return out, nil
	}
	out.CurrentState = governance.StatePortfolioCompleteness
	return out, nil
}

// AddAnotherProblem opens a fourth or fifth slot from the completeness branch.
func (e *Engine) AddAnotherProblem(d Data) (Data, error) {
	if err := require(d, governance.EventAddAnotherProblem); err != nil {
		return d, err
	}
	if len(d.Problems) >= MaxProblems {
		return d, governance.NewValidationError("problems", fmt.Sprintf("at most %d problems", MaxProblems))
	}
	out := d.clone()
	out.Problems = append(out.Problems, DraftProblem{})
	out.ProblemIndex = len(out.Problems) - 1
	next, _ := governance.CollectProblemState(out.ProblemIndex)
	out.CurrentState = next
	return out, nil
}

// ProceedToTimeAllocation leaves the completeness branch.
func (e *Engine) ProceedToTimeAllocation(d Data) (Data, error) {
	if err := require(d, governance.EventProceedToAllocation); err != nil {
		return d, err
	}
	if len(d.Problems) < MinProblems {
		return d, governance.NewValidationError("problems", fmt.Sprintf("at least %d problems", MinProblems))
	}
	out := d.clone()
	out.CurrentState = governance.StateTimeAllocation
	return out, nil
}

// UpdateAllocations replaces every draft's allocation. The input length must
// match the collected problem count exactly.
func (e *Engine) UpdateAllocations(d Data, allocations []int) (Data, error) {
	if err := require(d, governance.EventUpdateAllocations); err != nil {
		return d, err
	}
	if len(allocations) != len(d.Problems) {
		return d, governance.NewValidationError("allocations",
			fmt.Sprintf("expected %d values, got %d", len(d.Problems), len(allocations)))
	}
	for i, a := range allocations {
		if a < 0 || a > 100 {
			return d, governance.NewValidationError("allocations",
				fmt.Sprintf("value %d at index %d is out of [0,100]", a, i))
		}
	}
	out := d.clone()
	for i := range out.Problems {
		out.Problems[i].AllocationPct = allocations[i]
	}
	return out, nil
}

// AllocationStatus classifies the current allocation sum.
func (e *Engine) AllocationStatus(d Data) AllocationStatus {
	return StatusForSum(d.AllocationSum())
}

// ProceedFromTimeAllocation requires the sum to lie in the acceptable band.
func (e *Engine) ProceedFromTimeAllocation(d Data) (Data, error) {
	if err := require(d, governance.EventProceedToHealth); err != nil {
		return d, err
	}
	if StatusForSum(d.AllocationSum()) == AllocationBlocked {
		return d, governance.NewValidationError("allocations",
			fmt.Sprintf("sum %d outside [%d,%d]", d.AllocationSum(), AcceptableLow, AcceptableHigh))
	}
	out := d.clone()
	out.CurrentState = governance.StateCalculateHealth
	return out, nil
}

// CalculateHealth splits the allocation by direction and asks the generator
// for the risk/opportunity statements.
func (e *Engine) CalculateHealth(ctx context.Context, d Data) (Data, error) {
	if err := require(d, governance.EventCalculateHealth); err != nil {
		return d, err
	}
	appr, depr, stable := directionSplit(d.Problems)
	statements, err := e.collab.GenerateHealthStatements(ctx, summaries(d.Problems), appr, depr, stable)
	if err != nil {
		return d, governance.WrapCollaborator("health statements", err)
	}
	out := d.clone()
	out.Health = Health{
		AppreciatingPct:      appr,
		DepreciatingPct:      depr,
		StablePct:            stable,
		RiskStatement:        statements.RiskStatement,
		OpportunityStatement: statements.OpportunityStatement,
	}
	out.CurrentState = governance.StateCreateCoreRoles
	return out, nil
}

// CreateCoreRoles anchors the fixed core catalogue, one anchoring per role in
// catalogue order.
func (e *Engine) CreateCoreRoles(ctx context.Context, d Data) (Data, error) {
	if err := require(d, governance.EventCreateCoreRoles); err != nil {
		return d, err
	}
	roles := entity.CoreRoleCatalogue()
	anchorings, err := e.collab.GenerateAnchoring(ctx, summaries(d.Problems), roles, false)
	if err != nil {
		return d, governance.WrapCollaborator("core anchoring", err)
	}
	out := d.clone()
	for i, role := range roles {
		idx := anchorings[i].ProblemIndex
		if idx < 0 || idx >= len(d.Problems) {
			return d, governance.WrapCollaborator("core anchoring",
				fmt.Errorf("anchoring for %s references problem %d of %d", role, idx, len(d.Problems)))
		}
		out.Board = append(out.Board, DraftBoardMember{
			Role:         role,
			Partition:    entity.PartitionCore,
			ProblemIndex: idx,
			Demand:       anchorings[i].Demand,
		})
	}
	out.CurrentState = governance.StateCreateGrowthRoles
	return out, nil
}

// CreateGrowthRoles always executes but is a no-op without an appreciating
// problem. Anchorings without an explicit problem fall back to the
// highest-allocation appreciating problem.
func (e *Engine) CreateGrowthRoles(ctx context.Context, d Data) (Data, error) {
	if err := require(d, governance.EventCreateGrowthRoles); err != nil {
		return d, err
	}
	out := d.clone()
	out.CurrentState = governance.StateCreatePersonas
	if !d.HasAppreciating() {
		return out, nil
	}
	roles := entity.GrowthRoleCatalogue()
	anchorings, err := e.collab.GenerateAnchoring(ctx, summaries(d.Problems), roles, true)
	if err != nil {
		return d, governance.WrapCollaborator("growth anchoring", err)
	}
	fallback := highestAppreciating(d.Problems)
	for i, role := range roles {
		idx := anchorings[i].ProblemIndex
		if idx < 0 || idx >= len(d.Problems) {
			idx = fallback
		}
		out.Board = append(out.Board, DraftBoardMember{
			Role:         role,
			Partition:    entity.PartitionGrowth,
			ProblemIndex: idx,
			Demand:       anchorings[i].Demand,
		})
	}
	return out, nil
}

// CreatePersonas writes one persona per board member, in order, each
// independent of the others.
func (e *Engine) CreatePersonas(ctx context.Context, d Data) (Data, error) {
	if err := require(d, governance.EventCreatePersonas); err != nil {
		return d, err
	}
	out := d.clone()
	for i, m := range out.Board {
		var anchored *collab.ProblemSummary
		if m.ProblemIndex >= 0 && m.ProblemIndex < len(out.Problems) {
			s := summary(out.Problems[m.ProblemIndex])
			anchored = &s
		}
		persona, err := e.collab.GeneratePersona(ctx, m.Role, anchored, m.Demand)
		if err != nil {
			return d, governance.WrapCollaborator("persona", err)
		}
		out.Board[i].Persona = persona
	}
	out.CurrentState = governance.StateDefineTriggers
	return out, nil
}

// DefineTriggers records the user's re-trigger rules and appends the annual
// rule, due 365 days after the setup started.
func (e *Engine) DefineTriggers(d Data, triggers []DraftTrigger) (Data, error) {
	if err := require(d, governance.EventDefineTriggers); err != nil {
		return d, err
	}
	for i, t := range triggers {
		switch t.Type {
		case entity.TriggerRoleChange, entity.TriggerScopeChange, entity.TriggerDirectionShift, entity.TriggerTimeDrift:
		default:
			return d, governance.NewValidationError("triggers", fmt.Sprintf("trigger %d has invalid type %q", i, t.Type))
		}
	}
	out := d.clone()
	out.Triggers = append(out.Triggers, triggers...)
	annualDue := d.StartedAt.Add(365 * 24 * time.Hour)
	out.Triggers = append(out.Triggers, DraftTrigger{
		Type:        entity.TriggerAnnual,
		Description: "Annual full re-setup",
		Condition:   "One year has passed since the portfolio was set up.",
		Action:      "Run the setup interview again from scratch.",
		DueAt:       &annualDue,
	})
	out.CurrentState = governance.StatePublish
	return out, nil
}

func summaries(problems []DraftProblem) []collab.ProblemSummary {
	out := make([]collab.ProblemSummary, len(problems))
	for i, p := range problems {
		out[i] = summary(p)
	}
	return out
}

func summary(p DraftProblem) collab.ProblemSummary {
	return collab.ProblemSummary{
		Name:               p.Name,
		FailureDescription: p.FailureDescription,
		Direction:          p.Direction,
		Rationale:          p.Rationale,
		AllocationPct:      p.AllocationPct,
	}
}

func directionSplit(problems []DraftProblem) (appr, depr, stable float64) {
	total := 0
	for _, p := range problems {
		total += p.AllocationPct
	}
	if total == 0 {
		return 0, 0, 0
	}
	var a, de, st int
	for _, p := range problems {
		switch p.Direction {
		case entity.DirectionAppreciating:
			a += p.AllocationPct
		case entity.DirectionDepreciating:
			de += p.AllocationPct
		case entity.DirectionStable:
			st += p.AllocationPct
		}
	}
	f := 100 / float64(total)
	return float64(a) * f, float64(de) * f, float64(st) * f
}

func highestAppreciating(problems []DraftProblem) int {
	best, bestAlloc := 0, -1
	for i, p := range problems {
		if p.Direction != entity.DirectionAppreciating {
			continue
		}
		if p.AllocationPct > bestAlloc {
			best, bestAlloc = i, p.AllocationPct
		}
	}
	return best
}
