package quarterly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"steward/internal/collab"
	"steward/internal/entity"
	"steward/internal/governance"
)

// RecentReportWindow is how fresh a previous report has to be before the
// session opens with a pacing warning.
const RecentReportWindow = 30 * 24 * time.Hour

// Collaborators is the slice of the generation layer the quarterly engine
// needs.
type Collaborators interface {
	GenerateBoardQuestion(ctx context.Context, req collab.BoardQuestionRequest) (string, error)
	DescribeTrend(ctx context.Context, prevAppreciating, currAppreciating, prevDepreciating, currDepreciating float64) (string, error)
	GenerateReport(ctx context.Context, sessionDoc any) (string, error)
}

// Snapshot is the portfolio view loaded by the service right before the
// prerequisites gate runs.
type Snapshot struct {
	Problems     []entity.Problem
	Members      []entity.BoardMember
	Triggers     []entity.Trigger
	LastHealth   *entity.PortfolioHealth
	LastReportAt *time.Time
	OpenBet      *entity.Bet
}

// Engine drives the quarterly review workflow. It is stateless; every
// operation takes the current session data and returns a new one.
type Engine struct {
	gate   *governance.Gate
	collab Collaborators
	now    func() time.Time
}

func NewEngine(classifier governance.Classifier, c Collaborators) *Engine {
	return &Engine{
		gate:   governance.NewGate(classifier),
		collab: c,
		now:    time.Now,
	}
}

// reflectionStep wires one reflection question to its clarify substate and
// its successor.
type reflectionStep struct {
	clarify governance.State
	next    governance.State
}

var reflectionFlow = map[governance.State]reflectionStep{
	governance.StateQ2Commitments:      {governance.StateQ2Clarify, governance.StateQ3AvoidedDecision},
	governance.StateQ3AvoidedDecision:  {governance.StateQ3Clarify, governance.StateQ4ComfortWork},
	governance.StateQ4ComfortWork:      {governance.StateQ4Clarify, governance.StateQ5PortfolioCheck},
	governance.StateQ5PortfolioCheck:   {governance.StateQ5Clarify, governance.StateHealthTrend},
	governance.StateQ6ProtectionCheck:  {governance.StateQ6Clarify, governance.StateQ7OpportunityCheck},
	governance.StateQ7OpportunityCheck: {governance.StateQ7Clarify, governance.StateTriggerCheck},
}

var clarifyOrigin = func() map[governance.State]governance.State {
	m := make(map[governance.State]governance.State, len(reflectionFlow))
	for q, step := range reflectionFlow {
		m[step.clarify] = q
	}
	return m
}()

var reflectionPrompts = map[governance.State]string{
	governance.StateQ2Commitments:      "Last review you made commitments. What did you actually do against each of them?",
	governance.StateQ3AvoidedDecision:  "What decision have you been avoiding this quarter, and what has the avoidance cost you?",
	governance.StateQ4ComfortWork:      "Where did you spend effort because it felt comfortable rather than because it mattered?",
	governance.StateQ5PortfolioCheck:   "Does your current allocation still match where you believe the value is? What would you move?",
	governance.StateQ6ProtectionCheck:  "What are you doing to protect your appreciating positions from neglect or erosion?",
	governance.StateQ7OpportunityCheck: "What upside in your appreciating positions are you leaving unexploited?",
}

const clarifyPrompt = "That answer stayed abstract. Give one concrete instance: what specifically happened, and when?"

// allowed is the transition table: which states accept which events.
var allowed = map[governance.EventKind][]governance.State{
	governance.EventSetSensitivityGate: {governance.StateSensitivityGate},
	governance.EventCheckPrerequisites: {governance.StatePrerequisitesGate},
	governance.EventAcknowledgeWarning: {governance.StateRecentReportWarning},
	governance.EventEvaluateBet:        {governance.StateQ1LastBetEvaluation},
	governance.EventAnswerReflection:   reflectionStates(),
	governance.EventAnswerClarify:      clarifyStates(),
	governance.EventSkipClarify:        clarifyStates(),
	governance.EventComputeHealthTrend: {governance.StateHealthTrend},
	governance.EventReviewTriggers:     {governance.StateTriggerCheck},
	governance.EventCreateNewBet:       {governance.StateNewBet},
	governance.EventAskBoard: {
		governance.StateBoardCore,
		governance.StateBoardGrowth,
	},
	governance.EventAnswerBoard: {
		governance.StateBoardCore,
		governance.StateBoardGrowth,
		governance.StateBoardClarify,
	},
	governance.EventSkipBoardClarify: {governance.StateBoardClarify},
	governance.EventGenerateReport:   {governance.StateReportGeneration},
}

func require(d Data, ev governance.EventKind) error {
	for _, s := range allowed[ev] {
		if d.CurrentState == s {
			return nil
		}
	}
	return &governance.InvalidTransitionError{State: d.CurrentState, Event: ev}
}

// SetSensitivityGate records the framing preferences and opens the
// prerequisites gate.
func (e *Engine) SetSensitivityGate(d Data, abstraction, remember bool) (Data, error) {
	if err := require(d, governance.EventSetSensitivityGate); err != nil {
		return d, err
	}
	out := d.clone()
	out.AbstractionMode = abstraction
	out.RememberGate = remember
	out.CurrentState = governance.StatePrerequisitesGate
	return out, nil
}

// CheckPrerequisites verifies the portfolio is reviewable and captures the
// material the rest of the session works from: rosters, the open bet, the
// last health snapshot and trigger statuses. Missing prerequisites are
// reported together so the user sees everything at once.
func (e *Engine) CheckPrerequisites(d Data, snap Snapshot) (Data, error) {
	if err := require(d, governance.EventCheckPrerequisites); err != nil {
		return d, err
	}
	var missing []string
	if len(snap.Problems) == 0 {
		missing = append(missing, "problem portfolio")
	}
	if len(snap.Members) == 0 {
		missing = append(missing, "board members")
	}
	if len(snap.Triggers) == 0 {
		missing = append(missing, "review triggers")
	}
	if len(missing) > 0 {
		return d, &governance.PrerequisiteError{Missing: missing}
	}

	out := d.clone()
	out.CoreRoster, out.GrowthRoster = buildRosters(snap.Members, snap.Problems)
	out.PrevHealth = snap.LastHealth
	out.LastReportAt = snap.LastReportAt
	if snap.OpenBet != nil {
		out.OpenBet = &OpenBetRef{ID: snap.OpenBet.ID, Description: snap.OpenBet.Description}
	}
	now := e.now()
	out.TriggerStatuses = evaluateTriggers(snap.Triggers, now)
	out.RecentReportWarning = snap.LastReportAt != nil && now.Sub(*snap.LastReportAt) < RecentReportWindow
	out.CurrentState = governance.StateRecentReportWarning
	return out, nil
}

// AcknowledgeRecentReport moves past the pacing warning. The warning never
// blocks; it only has to be seen.
func (e *Engine) AcknowledgeRecentReport(d Data) (Data, error) {
	if err := require(d, governance.EventAcknowledgeWarning); err != nil {
		return d, err
	}
	out := d.clone()
	out.CurrentState = governance.StateQ1LastBetEvaluation
	return out, nil
}

// EvaluateBet records the verdict on the open bet. When no bet is open the
// outcome must be empty and the step is recorded as such.
func (e *Engine) EvaluateBet(d Data, outcome entity.BetStatus, note string) (Data, error) {
	if err := require(d, governance.EventEvaluateBet); err != nil {
		return d, err
	}
	out := d.clone()
	if d.OpenBet == nil {
		if outcome != "" {
			return d, governance.NewValidationError("outcome", "no open bet to evaluate")
		}
		out.BetEval = BetEvaluation{NoOpenBet: true}
		out.Transcript = out.Transcript.Append(governance.Entry{
			State:    governance.StateQ1LastBetEvaluation,
			Question: "How did your last bet turn out?",
			Answer:   "no open bet",
			At:       e.now(),
		})
	} else {
		switch outcome {
		case entity.BetCorrect, entity.BetWrong, entity.BetPartial:
		default:
			return d, governance.NewValidationError("outcome", "must be CORRECT, WRONG or PARTIAL")
		}
		out.BetEval = BetEvaluation{BetID: d.OpenBet.ID, Outcome: outcome, Note: note}
		out.Transcript = out.Transcript.Append(governance.Entry{
			State:    governance.StateQ1LastBetEvaluation,
			Question: fmt.Sprintf("How did %q turn out?", d.OpenBet.Description),
			Answer:   fmt.Sprintf("%s: %s", outcome, note),
			At:       e.now(),
		})
	}
	out.CurrentState = governance.StateQ2Commitments
	return out, nil
}

// Question returns the prompt the session is currently waiting on, empty for
// non-question states.
func (e *Engine) Question(d Data) string {
	if p, ok := reflectionPrompts[d.CurrentState]; ok {
		return p
	}
	if _, ok := clarifyOrigin[d.CurrentState]; ok {
		return clarifyPrompt
	}
	if d.CurrentState == governance.StateBoardClarify {
		return clarifyPrompt
	}
	return ""
}

// AnswerReflection takes the answer to the current reflection question. A
// vague answer parks the session in the question's clarify substate; a
// concrete one records it and advances.
func (e *Engine) AnswerReflection(ctx context.Context, d Data, answer string) (Data, error) {
	if err := require(d, governance.EventAnswerReflection); err != nil {
		return d, err
	}
	step := reflectionFlow[d.CurrentState]
	vague, err := e.gate.Review(ctx, reflectionPrompts[d.CurrentState], answer)
	if err != nil {
		return d, err
	}
	out := d.clone()
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: reflectionPrompts[d.CurrentState],
		Answer:   answer,
		Vague:    vague,
		At:       e.now(),
	})
	if vague {
		out.CurrentState = step.clarify
		return out, nil
	}
	out.Reflections[d.CurrentState] = answer
	out.CurrentState = step.next
	return out, nil
}

// AnswerClarify handles the retry after a vague reflection answer. Still
// vague means the state does not move.
func (e *Engine) AnswerClarify(ctx context.Context, d Data, answer string) (Data, error) {
	if err := require(d, governance.EventAnswerClarify); err != nil {
		return d, err
	}
	origin := clarifyOrigin[d.CurrentState]
	vague, err := e.gate.Review(ctx, clarifyPrompt, answer)
	if err != nil {
		return d, err
	}
	out := d.clone()
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: clarifyPrompt,
		Answer:   answer,
		Vague:    vague,
		At:       e.now(),
	})
	if vague {
		return out, nil
	}
	out.Reflections[origin] = answer
	out.CurrentState = reflectionFlow[origin].next
	return out, nil
}

// SkipClarify spends one unit of the session skip quota to move past a
// clarify substate without a concrete answer.
func (e *Engine) SkipClarify(d Data) (Data, error) {
	if err := require(d, governance.EventSkipClarify); err != nil {
		return d, err
	}
	origin := clarifyOrigin[d.CurrentState]
	count, err := governance.AttemptSkip(d.VaguenessSkipCount)
	if err != nil {
		return d, err
	}
	out := d.clone()
	out.VaguenessSkipCount = count
	out.Reflections[origin] = governance.SkipSentinel
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: clarifyPrompt,
		Answer:   governance.SkipSentinel,
		Skipped:  true,
		At:       e.now(),
	})
	out.CurrentState = reflectionFlow[origin].next
	return out, nil
}

// ComputeHealthTrend diffs the live direction split against the last
// snapshot, asks the collaborator for a one-line description, and branches:
// the protection and opportunity questions only run when something is
// appreciating.
func (e *Engine) ComputeHealthTrend(ctx context.Context, d Data, problems []entity.Problem) (Data, error) {
	if err := require(d, governance.EventComputeHealthTrend); err != nil {
		return d, err
	}
	trend := HealthTrend{}
	if d.PrevHealth != nil {
		trend.PrevVersion = d.PrevHealth.Version
		trend.PrevAppreciating = d.PrevHealth.AppreciatingPct
		trend.PrevDepreciating = d.PrevHealth.DepreciatingPct
		trend.PrevStable = d.PrevHealth.StablePct
	}
	trend.CurrAppreciating, trend.CurrDepreciating, trend.CurrStable = directionSplit(problems)

	desc, err := e.collab.DescribeTrend(ctx,
		trend.PrevAppreciating, trend.CurrAppreciating,
		trend.PrevDepreciating, trend.CurrDepreciating)
	if err != nil {
		return d, governance.WrapCollaborator("describe trend", err)
	}
	trend.Description = desc

	out := d.clone()
	out.Trend = trend
	// Existence over the partition, not allocation weight: an appreciating
	// problem with a zero allocation still gets the protection questions.
	out.HasAppreciating = hasAppreciating(problems)
	if out.HasAppreciating {
		out.CurrentState = governance.StateQ6ProtectionCheck
	} else {
		out.CurrentState = governance.StateTriggerCheck
	}
	return out, nil
}

// ReviewTriggers surfaces the trigger statuses captured at the prerequisites
// gate and moves on to the new bet.
func (e *Engine) ReviewTriggers(d Data) (Data, []TriggerStatus, error) {
	if err := require(d, governance.EventReviewTriggers); err != nil {
		return d, nil, err
	}
	out := d.clone()
	out.CurrentState = governance.StateNewBet
	return out, out.TriggerStatuses, nil
}

// CreateNewBet records the next quarter's commitment and starts the board
// interrogation walk on the core roster.
func (e *Engine) CreateNewBet(d Data, description string) (Data, error) {
	if err := require(d, governance.EventCreateNewBet); err != nil {
		return d, err
	}
	if description == "" {
		return d, governance.NewValidationError("description", "must not be empty")
	}
	out := d.clone()
	out.Bet = NewBet{Description: description}
	out.MemberIndex = 0
	switch {
	case len(out.CoreRoster) > 0:
		out.ActiveRoster = governance.RosterCore
		out.CurrentState = governance.StateBoardCore
	case len(out.GrowthRoster) > 0:
		out.ActiveRoster = governance.RosterGrowth
		out.CurrentState = governance.StateBoardGrowth
	default:
		out.CurrentState = governance.StateReportGeneration
	}
	return out, nil
}

// AskBoard generates the current member's question. The question is held on
// the session so a reload re-serves it instead of paying for a second
// generation.
func (e *Engine) AskBoard(ctx context.Context, d Data) (Data, string, error) {
	if err := require(d, governance.EventAskBoard); err != nil {
		return d, "", err
	}
	if d.PendingQuestion != "" {
		return d, d.PendingQuestion, nil
	}
	member, ok := d.CurrentMember()
	if !ok {
		return d, "", governance.NewValidationError("member_index", "out of roster range")
	}
	question, err := e.collab.GenerateBoardQuestion(ctx, collab.BoardQuestionRequest{
		Role:            member.Role,
		PersonaName:     member.PersonaName,
		AnchoredProblem: member.ProblemName,
		AnchoredDemand:  member.Demand,
		SessionContext: map[string]any{
			"new_bet":     d.Bet.Description,
			"bet_eval":    d.BetEval,
			"reflections": reflectionDigest(d),
			"trend":       d.Trend,
		},
	})
	if err != nil {
		return d, "", governance.WrapCollaborator("board question", err)
	}
	out := d.clone()
	out.PendingQuestion = question
	return out, question, nil
}

// AnswerBoard takes the answer to the pending board question. Vague answers
// go through the shared board clarify substate; concrete ones are recorded
// against the member and the walk advances.
func (e *Engine) AnswerBoard(ctx context.Context, d Data, answer string) (Data, error) {
	if err := require(d, governance.EventAnswerBoard); err != nil {
		return d, err
	}
	member, ok := d.CurrentMember()
	if !ok {
		return d, governance.NewValidationError("member_index", "out of roster range")
	}
	question := d.PendingQuestion
	if d.CurrentState == governance.StateBoardClarify {
		question = clarifyPrompt
	}
	vague, err := e.gate.Review(ctx, question, answer)
	if err != nil {
		return d, err
	}
	out := d.clone()
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: question,
		Answer:   answer,
		Vague:    vague,
		At:       e.now(),
	})
	if vague {
		out.CurrentState = governance.StateBoardClarify
		return out, nil
	}
	out.recordResponse(BoardResponse{
		MemberID: member.ID,
		Role:     member.Role,
		Question: d.PendingQuestion,
		Answer:   answer,
	})
	out.advanceRoster()
	return out, nil
}

// SkipBoardClarify spends one skip unit on the board clarify substate. The
// member's record carries the sentinel answer.
func (e *Engine) SkipBoardClarify(d Data) (Data, error) {
	if err := require(d, governance.EventSkipBoardClarify); err != nil {
		return d, err
	}
	member, ok := d.CurrentMember()
	if !ok {
		return d, governance.NewValidationError("member_index", "out of roster range")
	}
	count, err := governance.AttemptSkip(d.VaguenessSkipCount)
	if err != nil {
		return d, err
	}
	out := d.clone()
	out.VaguenessSkipCount = count
	out.Transcript = out.Transcript.Append(governance.Entry{
		State:    d.CurrentState,
		Question: clarifyPrompt,
		Answer:   governance.SkipSentinel,
		Skipped:  true,
		At:       e.now(),
	})
	out.recordResponse(BoardResponse{
		MemberID: member.ID,
		Role:     member.Role,
		Question: d.PendingQuestion,
		Answer:   governance.SkipSentinel,
		Skipped:  true,
	})
	out.advanceRoster()
	return out, nil
}

func (d *Data) recordResponse(r BoardResponse) {
	if d.ActiveRoster == governance.RosterGrowth {
		d.GrowthResponses = append(d.GrowthResponses, r)
	} else {
		d.CoreResponses = append(d.CoreResponses, r)
	}
}

// advanceRoster moves the iterator to the next member, flips from the core
// roster to the growth roster when the core is exhausted, and ends the
// interrogation when both are done.
func (d *Data) advanceRoster() {
	d.PendingQuestion = ""
	d.MemberIndex++
	if d.MemberIndex < len(d.activeRoster()) {
		if d.ActiveRoster == governance.RosterGrowth {
			d.CurrentState = governance.StateBoardGrowth
		} else {
			d.CurrentState = governance.StateBoardCore
		}
		return
	}
	if d.ActiveRoster == governance.RosterCore && len(d.GrowthRoster) > 0 {
		d.ActiveRoster = governance.RosterGrowth
		d.MemberIndex = 0
		d.CurrentState = governance.StateBoardGrowth
		return
	}
	d.CurrentState = governance.StateReportGeneration
}

func buildRosters(members []entity.BoardMember, problems []entity.Problem) (core, growth []RosterMember) {
	names := make(map[string]string, len(problems))
	for _, p := range problems {
		names[p.ID] = p.Name
	}
	sorted := append([]entity.BoardMember(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DisplayOrder < sorted[j].DisplayOrder })
	for _, m := range sorted {
		if !m.Active {
			continue
		}
		rm := RosterMember{
			ID:          m.ID,
			Role:        m.Role,
			PersonaName: m.Persona.Name,
			ProblemID:   m.ProblemID,
			ProblemName: names[m.ProblemID],
			Demand:      m.Demand,
		}
		if m.Partition == entity.PartitionGrowth {
			growth = append(growth, rm)
		} else {
			core = append(core, rm)
		}
	}
	return core, growth
}

func evaluateTriggers(triggers []entity.Trigger, now time.Time) []TriggerStatus {
	out := make([]TriggerStatus, 0, len(triggers))
	for _, t := range triggers {
		met := t.Met
		if t.Type == entity.TriggerAnnual && t.DueAt != nil {
			met = met || !now.Before(*t.DueAt)
		}
		out = append(out, TriggerStatus{
			TriggerID:   t.ID,
			Type:        t.Type,
			Description: t.Description,
			Met:         met,
		})
	}
	return out
}

func hasAppreciating(problems []entity.Problem) bool {
	for _, p := range problems {
		if p.Direction == entity.DirectionAppreciating {
			return true
		}
	}
	return false
}

func directionSplit(problems []entity.Problem) (appr, depr, stable float64) {
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

func reflectionDigest(d Data) map[string]string {
	out := make(map[string]string, len(d.Reflections))
	for state, answer := range d.Reflections {
		out[string(state)] = answer
	}
	return out
}

func reflectionStates() []governance.State {
	out := make([]governance.State, 0, len(reflectionFlow))
	for s := range reflectionFlow {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clarifyStates() []governance.State {
	out := make([]governance.State, 0, len(clarifyOrigin))
	for s := range clarifyOrigin {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
