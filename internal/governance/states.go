package governance

// Workflow selects which governance interview a session runs.
type Workflow string

const (
	WorkflowSetup     Workflow = "setup"
	WorkflowQuarterly Workflow = "quarterly"
)

func (w Workflow) Valid() bool {
	return w == WorkflowSetup || w == WorkflowQuarterly
}

// State is a session state tag. Each workflow owns a closed set; a tag outside
// the workflow's set is a corruption, not a branch.
type State string

// Setup workflow states.
const (
	StateSensitivityGate       State = "sensitivityGate"
	StateCollectProblem1       State = "collectProblem1"
	StateCollectProblem2       State = "collectProblem2"
	StateCollectProblem3       State = "collectProblem3"
	StateCollectProblem4       State = "collectProblem4"
	StateCollectProblem5       State = "collectProblem5"
	StatePortfolioCompleteness State = "portfolioCompleteness"
	StateTimeAllocation        State = "timeAllocation"
	StateCalculateHealth       State = "calculateHealth"
	StateCreateCoreRoles       State = "createCoreRoles"
	StateCreateGrowthRoles     State = "createGrowthRoles"
	StateCreatePersonas        State = "createPersonas"
	StateDefineTriggers        State = "defineTriggers"
	StatePublish               State = "publish"
	StateFinalized             State = "finalized"
)

// Quarterly workflow states. The finalized tag is shared with setup.
const (
	StatePrerequisitesGate   State = "prerequisitesGate"
	StateRecentReportWarning State = "recentReportWarning"
	StateQ1LastBetEvaluation State = "q1LastBetEvaluation"
	StateQ2Commitments       State = "q2CommitmentsVsActuals"
	StateQ2Clarify           State = "q2Clarify"
	StateQ3AvoidedDecision   State = "q3AvoidedDecision"
	StateQ3Clarify           State = "q3Clarify"
	StateQ4ComfortWork       State = "q4ComfortWork"
	StateQ4Clarify           State = "q4Clarify"
	StateQ5PortfolioCheck    State = "q5PortfolioCheck"
	StateQ5Clarify           State = "q5Clarify"
	StateHealthTrend         State = "healthTrend"
	StateQ6ProtectionCheck   State = "q6ProtectionCheck"
	StateQ6Clarify           State = "q6Clarify"
	StateQ7OpportunityCheck  State = "q7OpportunityCheck"
	StateQ7Clarify           State = "q7Clarify"
	StateTriggerCheck        State = "triggerCheck"
	StateNewBet              State = "newBet"
	StateBoardCore           State = "boardInterrogationCore"
	StateBoardGrowth         State = "boardInterrogationGrowth"
	StateBoardClarify        State = "boardInterrogationClarify"
	StateReportGeneration    State = "reportGeneration"
)

var setupStates = map[State]struct{}{
	StateSensitivityGate: {}, StateCollectProblem1: {}, StateCollectProblem2: {},
	StateCollectProblem3: {}, StateCollectProblem4: {}, StateCollectProblem5: {},
	StatePortfolioCompleteness: {}, StateTimeAllocation: {}, StateCalculateHealth: {},
	StateCreateCoreRoles: {}, StateCreateGrowthRoles: {}, StateCreatePersonas: {},
	StateDefineTriggers: {}, StatePublish: {}, StateFinalized: {},
}

var quarterlyStates = map[State]struct{}{
	StateSensitivityGate: {}, StatePrerequisitesGate: {}, StateRecentReportWarning: {},
	StateQ1LastBetEvaluation: {}, StateQ2Commitments: {}, StateQ2Clarify: {},
	StateQ3AvoidedDecision: {}, StateQ3Clarify: {}, StateQ4ComfortWork: {},
	StateQ4Clarify: {}, StateQ5PortfolioCheck: {}, StateQ5Clarify: {},
	StateHealthTrend: {}, StateQ6ProtectionCheck: {}, StateQ6Clarify: {},
	StateQ7OpportunityCheck: {}, StateQ7Clarify: {}, StateTriggerCheck: {},
	StateNewBet: {}, StateBoardCore: {}, StateBoardGrowth: {}, StateBoardClarify: {},
	StateReportGeneration: {}, StateFinalized: {},
}

// ValidFor reports whether s belongs to workflow w's closed state set.
func (s State) ValidFor(w Workflow) bool {
	switch w {
	case WorkflowSetup:
		_, ok := setupStates[s]
		return ok
	case WorkflowQuarterly:
		_, ok := quarterlyStates[s]
		return ok
	}
	return false
}

// CollectProblemState maps a zero-based problem slot to its collect state.
func CollectProblemState(index int) (State, bool) {
	switch index {
	case 0:
		return StateCollectProblem1, true
	case 1:
		return StateCollectProblem2, true
	case 2:
		return StateCollectProblem3, true
	case 3:
		return StateCollectProblem4, true
	case 4:
		return StateCollectProblem5, true
	}
	return "", false
}
