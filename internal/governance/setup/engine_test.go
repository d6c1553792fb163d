package setup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"steward/internal/collab"
	"steward/internal/entity"
	"steward/internal/governance"
)

func testEngine() *Engine {
	return NewEngine(collab.NewSuite(collab.NewFakeClient()))
}

func draftProblem(name string, dir entity.Direction, alloc int) DraftProblem {
	return DraftProblem{
		Name:               name,
		FailureDescription: "what failure looks like for " + name,
		Direction:          dir,
		Rationale:          "why " + name + " matters",
		Evidence:           []string{"evidence one", "evidence two", "evidence three"},
		AllocationPct:      alloc,
	}
}

// runToPublish walks a three-problem session to the publish state.
func runToPublish(t *testing.T, e *Engine) Data {
	t.Helper()
	ctx := context.Background()
	d := New(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	d, err := e.SetSensitivityGate(d, false, true)
	if err != nil {
		t.Fatalf("sensitivity: %v", err)
	}

	drafts := []DraftProblem{
		draftProblem("career platform", entity.DirectionAppreciating, 40),
		draftProblem("legacy obligations", entity.DirectionDepreciating, 35),
		draftProblem("health routine", entity.DirectionStable, 25),
	}
	for i, p := range drafts {
		if d, err = e.SaveProblem(d, p); err != nil {
			t.Fatalf("save problem %d: %v", i, err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance problem %d: %v", i, err)
		}
	}
	if d.CurrentState != governance.StatePortfolioCompleteness {
		t.Fatalf("expected completeness after %d problems, got %s", MinProblems, d.CurrentState)
	}

	if d, err = e.ProceedToTimeAllocation(d); err != nil {
		t.Fatalf("to allocation: %v", err)
	}
	if d, err = e.UpdateAllocations(d, []int{40, 35, 25}); err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if got := e.AllocationStatus(d); got != AllocationIdeal {
		t.Fatalf("sum 100 should be ideal, got %s", got)
	}
	if d, err = e.ProceedFromTimeAllocation(d); err != nil {
		t.Fatalf("from allocation: %v", err)
	}
	if d, err = e.CalculateHealth(ctx, d); err != nil {
		t.Fatalf("health: %v", err)
	}
	if d, err = e.CreateCoreRoles(ctx, d); err != nil {
		t.Fatalf("core roles: %v", err)
	}
	if d, err = e.CreateGrowthRoles(ctx, d); err != nil {
		t.Fatalf("growth roles: %v", err)
	}
	if d, err = e.CreatePersonas(ctx, d); err != nil {
		t.Fatalf("personas: %v", err)
	}
	if d, err = e.DefineTriggers(d, []DraftTrigger{{
		Type:        entity.TriggerRoleChange,
		Description: "role changed",
		Condition:   "a new role or employer",
		Action:      "re-run setup",
	}}); err != nil {
		t.Fatalf("triggers: %v", err)
	}
	if d.CurrentState != governance.StatePublish {
		t.Fatalf("expected publish, got %s", d.CurrentState)
	}
	return d
}

func TestSetupHappyPath(t *testing.T) {
	d := runToPublish(t, testEngine())

	if len(d.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %d", len(d.Problems))
	}
	// 5 core members plus 2 growth members, appreciating problem present.
	if len(d.Board) != 7 {
		t.Fatalf("expected 7 board members, got %d", len(d.Board))
	}
	core, growth := 0, 0
	for _, m := range d.Board {
		switch m.Partition {
		case entity.PartitionCore:
			core++
		case entity.PartitionGrowth:
			growth++
		}
		if m.Persona.Name == "" {
			t.Fatalf("member %s has no persona", m.Role)
		}
	}
	if core != 5 || growth != 2 {
		t.Fatalf("partition split core=%d growth=%d", core, growth)
	}
	// User trigger plus the appended annual trigger.
	if len(d.Triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(d.Triggers))
	}
	annual := d.Triggers[len(d.Triggers)-1]
	if annual.Type != entity.TriggerAnnual || annual.DueAt == nil {
		t.Fatalf("last trigger must be the annual rule: %+v", annual)
	}
	if want := d.StartedAt.Add(365 * 24 * time.Hour); !annual.DueAt.Equal(want) {
		t.Fatalf("annual due %v, want %v", annual.DueAt, want)
	}
	if d.Health.AppreciatingPct != 40 || d.Health.DepreciatingPct != 35 || d.Health.StablePct != 25 {
		t.Fatalf("health split: %+v", d.Health)
	}
}

func TestSetupNoGrowthRolesWithoutAppreciating(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	d := New(time.Now())

	d, _ = e.SetSensitivityGate(d, false, false)
	drafts := []DraftProblem{
		draftProblem("a", entity.DirectionDepreciating, 40),
		draftProblem("b", entity.DirectionDepreciating, 30),
		draftProblem("c", entity.DirectionStable, 30),
	}
	var err error
	for _, p := range drafts {
		if d, err = e.SaveProblem(d, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	d, _ = e.ProceedToTimeAllocation(d)
	d, _ = e.UpdateAllocations(d, []int{40, 30, 30})
	d, _ = e.ProceedFromTimeAllocation(d)
	if d, err = e.CalculateHealth(ctx, d); err != nil {
		t.Fatalf("health: %v", err)
	}
	if d, err = e.CreateCoreRoles(ctx, d); err != nil {
		t.Fatalf("core: %v", err)
	}
	if d, err = e.CreateGrowthRoles(ctx, d); err != nil {
		t.Fatalf("growth: %v", err)
	}
	if len(d.Board) != 5 {
		t.Fatalf("expected core board only, got %d members", len(d.Board))
	}
	if d.CurrentState != governance.StateCreatePersonas {
		t.Fatalf("growth step must still advance, got %s", d.CurrentState)
	}
}

func TestSetupIncompleteDraftRejected(t *testing.T) {
	e := testEngine()
	d := New(time.Now())
	d, _ = e.SetSensitivityGate(d, false, false)

	p := draftProblem("x", entity.DirectionStable, 10)
	p.Evidence = []string{"only one"}
	d, err := e.SaveProblem(d, p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := e.ValidateAndAdvance(d); !governance.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if d.CurrentState != governance.StateCollectProblem1 {
		t.Fatalf("state must not move on rejection, got %s", d.CurrentState)
	}
}

func TestSetupAllocationTiers(t *testing.T) {
	cases := []struct {
		sum  int
		want AllocationStatus
	}{
		{100, AllocationIdeal},
		{95, AllocationIdeal},
		{105, AllocationIdeal},
		{94, AllocationAcceptable},
		{90, AllocationAcceptable},
		{110, AllocationAcceptable},
		{89, AllocationBlocked},
		{111, AllocationBlocked},
		{0, AllocationBlocked},
	}
	for _, c := range cases {
		if got := StatusForSum(c.sum); got != c.want {
			t.Fatalf("sum %d: got %s want %s", c.sum, got, c.want)
		}
	}
}

func TestSetupBlockedAllocationCannotProceed(t *testing.T) {
	e := testEngine()
	d := New(time.Now())
	d, _ = e.SetSensitivityGate(d, false, false)
	var err error
	for _, p := range []DraftProblem{
		draftProblem("a", entity.DirectionStable, 10),
		draftProblem("b", entity.DirectionStable, 10),
		draftProblem("c", entity.DirectionStable, 10),
	} {
		if d, err = e.SaveProblem(d, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	d, _ = e.ProceedToTimeAllocation(d)
	if _, err := e.ProceedFromTimeAllocation(d); !governance.IsValidation(err) {
		t.Fatalf("expected blocked sum to be rejected, got %v", err)
	}
}

func TestSetupAllocationValueOutOfRange(t *testing.T) {
	e := testEngine()
	d := New(time.Now())
	d, _ = e.SetSensitivityGate(d, false, false)
	var err error
	for _, p := range []DraftProblem{
		draftProblem("a", entity.DirectionStable, 40),
		draftProblem("b", entity.DirectionStable, 35),
		draftProblem("c", entity.DirectionStable, 25),
	} {
		if d, err = e.SaveProblem(d, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	d, _ = e.ProceedToTimeAllocation(d)

	_, err = e.UpdateAllocations(d, []int{40, 135, 25})
	if !governance.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// The message names the offending value and where it sits.
	if !strings.Contains(err.Error(), "135") || !strings.Contains(err.Error(), "index 1") {
		t.Fatalf("unhelpful message: %v", err)
	}
}

func TestSetupFourthAndFifthProblem(t *testing.T) {
	e := testEngine()
	d := New(time.Now())
	d, _ = e.SetSensitivityGate(d, false, false)
	var err error
	for i := 0; i < MinProblems; i++ {
		if d, err = e.SaveProblem(d, draftProblem("p", entity.DirectionStable, 20)); err != nil {
			t.Fatalf("save: %v", err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	for i := MinProblems; i < MaxProblems; i++ {
		if d, err = e.AddAnotherProblem(d); err != nil {
			t.Fatalf("add problem %d: %v", i, err)
		}
		if d, err = e.SaveProblem(d, draftProblem("p", entity.DirectionStable, 20)); err != nil {
			t.Fatalf("save: %v", err)
		}
		if d, err = e.ValidateAndAdvance(d); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if len(d.Problems) != MaxProblems {
		t.Fatalf("expected %d problems, got %d", MaxProblems, len(d.Problems))
	}
	if _, err := e.AddAnotherProblem(d); !governance.IsValidation(err) {
		t.Fatalf("sixth problem must be rejected, got %v", err)
	}
}

func TestSetupInvalidTransition(t *testing.T) {
	e := testEngine()
	d := New(time.Now())
	_, err := e.DefineTriggers(d, nil)
	var transition *governance.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if transition.State != governance.StateSensitivityGate {
		t.Fatalf("unexpected state in error: %s", transition.State)
	}
}

func TestSetupReloadIdentity(t *testing.T) {
	d := runToPublish(t, testEngine())

	env, err := d.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := FromEnvelope(env)
	if err != nil {
		t.Fatalf("from envelope: %v", err)
	}
	if got.CurrentState != d.CurrentState {
		t.Fatalf("state: got %s want %s", got.CurrentState, d.CurrentState)
	}
	if len(got.Problems) != len(d.Problems) || len(got.Board) != len(d.Board) {
		t.Fatalf("reload lost drafts: %d/%d problems, %d/%d members",
			len(got.Problems), len(d.Problems), len(got.Board), len(d.Board))
	}
	if got.AllocationSum() != d.AllocationSum() {
		t.Fatalf("allocation sum drifted on reload")
	}
}
