package governance

// EventKind names a transition request. Engines index their transition tables
// by (current state, event kind) instead of deriving successors from state
// names.
type EventKind string

// Setup events.
const (
	EventSetSensitivityGate  EventKind = "setSensitivityGate"
	EventSaveProblem         EventKind = "saveProblem"
	EventValidateAndAdvance  EventKind = "validateAndAdvance"
	EventAddAnotherProblem   EventKind = "addAnotherProblem"
	EventProceedToAllocation EventKind = "proceedToTimeAllocation"
	EventUpdateAllocations   EventKind = "updateTimeAllocations"
	EventProceedToHealth     EventKind = "proceedFromTimeAllocation"
	EventCalculateHealth     EventKind = "calculateHealth"
	EventCreateCoreRoles     EventKind = "createCoreRoles"
	EventCreateGrowthRoles   EventKind = "createGrowthRoles"
	EventCreatePersonas      EventKind = "createPersonas"
	EventDefineTriggers      EventKind = "defineTriggers"
	EventPublish             EventKind = "publish"
)

// Quarterly events.
const (
	EventCheckPrerequisites EventKind = "checkPrerequisites"
	EventAcknowledgeWarning EventKind = "acknowledgeRecentReport"
	EventEvaluateBet        EventKind = "evaluateBet"
	EventAnswerReflection   EventKind = "answerReflection"
	EventAnswerClarify      EventKind = "answerClarify"
	EventSkipClarify        EventKind = "skipClarify"
	EventComputeHealthTrend EventKind = "computeHealthTrend"
	EventReviewTriggers     EventKind = "reviewTriggers"
	EventCreateNewBet       EventKind = "createNewBet"
	EventAskBoard           EventKind = "askBoard"
	EventAnswerBoard        EventKind = "answerBoard"
	EventSkipBoardClarify   EventKind = "skipBoardClarify"
	EventGenerateReport     EventKind = "generateReport"
)
