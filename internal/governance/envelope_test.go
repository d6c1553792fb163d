package governance

import (
	"encoding/json"
	"testing"
)

type testDoc struct {
	CurrentState       State  `json:"current_state"`
	VaguenessSkipCount int    `json:"vagueness_skip_count"`
	Note               string `json:"note"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := Seal(StateTimeAllocation, true, 1, testDoc{
		CurrentState:       StateTimeAllocation,
		VaguenessSkipCount: 1,
		Note:               "hello",
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	var out testDoc
	if err := Open(env, &out); err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.Note != "hello" {
		t.Fatalf("document payload lost: %+v", out)
	}
}

func TestEnvelopeDiscreteFieldsWin(t *testing.T) {
	// A drifted document: the columns disagree with the serialized copy.
	doc, _ := json.Marshal(testDoc{CurrentState: StateSensitivityGate, VaguenessSkipCount: 0})
	env := Envelope{
		CurrentState:       StatePublish,
		VaguenessSkipCount: 2,
		Document:           doc,
	}

	var out testDoc
	if err := Open(env, &out); err != nil {
		t.Fatalf("open: %v", err)
	}
	// The caller overlays the discrete fields, same as the workflow
	// FromEnvelope constructors do.
	out.CurrentState = env.CurrentState
	out.VaguenessSkipCount = env.VaguenessSkipCount

	if out.CurrentState != StatePublish || out.VaguenessSkipCount != 2 {
		t.Fatalf("discrete fields must win: %+v", out)
	}
}

func TestStateValidFor(t *testing.T) {
	if !StateCollectProblem3.ValidFor(WorkflowSetup) {
		t.Fatalf("collectProblem3 belongs to setup")
	}
	if StateCollectProblem3.ValidFor(WorkflowQuarterly) {
		t.Fatalf("collectProblem3 is not a quarterly state")
	}
	if !StateBoardClarify.ValidFor(WorkflowQuarterly) {
		t.Fatalf("board clarify belongs to quarterly")
	}
	if !StateFinalized.ValidFor(WorkflowSetup) || !StateFinalized.ValidFor(WorkflowQuarterly) {
		t.Fatalf("finalized is shared by both workflows")
	}
}
