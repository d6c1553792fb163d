package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"steward/internal/collab"
	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/governance/quarterly"
	"steward/internal/governance/setup"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
	"steward/internal/repository/session"
)

// recordingNotifier captures session events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (n *recordingNotifier) SessionChanged(_ string, ev SessionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) last(t *testing.T) SessionEvent {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		t.Fatalf("no session events recorded")
	}
	return n.events[len(n.events)-1]
}

type fixture struct {
	setup     *SetupService
	quarterly *QuarterlyService
	sessions  *session.MemoryStore
	store     *portfolio.MemoryStore
	docs      *document.MemoryStore
	notifier  *recordingNotifier
}

func newFixture() *fixture {
	suite := collab.NewSuite(collab.NewFakeClient())
	f := &fixture{
		sessions: session.NewMemoryStore(),
		store:    portfolio.NewMemoryStore(),
		docs:     document.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	f.setup = NewSetupService(setup.NewEngine(suite), f.sessions, f.store, f.docs, f.notifier)
	f.quarterly = NewQuarterlyService(quarterly.NewEngine(suite, suite), f.sessions, f.store, f.docs, f.notifier)
	return f
}

func draft(name string, dir entity.Direction, alloc int) setup.DraftProblem {
	return setup.DraftProblem{
		Name:               name,
		FailureDescription: "what failure looks like for " + name,
		Direction:          dir,
		Rationale:          "why " + name + " matters",
		Evidence:           []string{"evidence one", "evidence two", "evidence three"},
		AllocationPct:      alloc,
	}
}

// publishPortfolio walks a setup session end to end through the service.
func publishPortfolio(t *testing.T, f *fixture, userID entity.UserID) setup.PublishResult {
	t.Helper()
	ctx := context.Background()

	rec, _, err := f.setup.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start setup: %v", err)
	}
	id := rec.ID

	step := func(name string, fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	step("sensitivity", func() error { _, _, err := f.setup.SetSensitivityGate(ctx, id, false, true); return err })
	drafts := []setup.DraftProblem{
		draft("career platform", entity.DirectionAppreciating, 40),
		draft("legacy obligations", entity.DirectionDepreciating, 35),
		draft("health routine", entity.DirectionStable, 25),
	}
	for _, p := range drafts {
		step("save problem", func() error { _, _, err := f.setup.SaveProblem(ctx, id, p); return err })
		step("advance", func() error { _, _, err := f.setup.ValidateAndAdvance(ctx, id); return err })
	}
	step("to allocation", func() error { _, _, err := f.setup.ProceedToTimeAllocation(ctx, id); return err })
	step("allocations", func() error { _, _, err := f.setup.UpdateAllocations(ctx, id, []int{40, 35, 25}); return err })
	step("from allocation", func() error { _, _, err := f.setup.ProceedFromTimeAllocation(ctx, id); return err })
	step("health", func() error { _, _, err := f.setup.CalculateHealth(ctx, id); return err })
	step("core roles", func() error { _, _, err := f.setup.CreateCoreRoles(ctx, id); return err })
	step("growth roles", func() error { _, _, err := f.setup.CreateGrowthRoles(ctx, id); return err })
	step("personas", func() error { _, _, err := f.setup.CreatePersonas(ctx, id); return err })
	step("triggers", func() error {
		_, _, err := f.setup.DefineTriggers(ctx, id, []setup.DraftTrigger{{
			Type:        entity.TriggerRoleChange,
			Description: "role changed",
			Condition:   "a new role or employer",
			Action:      "re-run setup",
		}})
		return err
	})

	rec, result, err := f.setup.Publish(ctx, id)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rec.Status != session.StatusCompleted {
		t.Fatalf("session after publish: %s", rec.Status)
	}
	return result
}

func TestSetupServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := entity.NormalizeUserID("alice")

	rec, d, err := f.setup.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.CurrentState != governance.StateSensitivityGate {
		t.Fatalf("fresh session state: %s", d.CurrentState)
	}

	// A second start for the same user collides.
	if _, _, err := f.setup.Start(ctx, userID); !errors.Is(err, session.ErrSessionInProgress) {
		t.Fatalf("expected in-progress conflict, got %v", err)
	}

	// Resume finds the same record.
	got, _, ok, err := f.setup.Resume(ctx, userID)
	if err != nil || !ok || got.ID != rec.ID {
		t.Fatalf("resume: id=%s ok=%v err=%v", got.ID, ok, err)
	}

	if err := f.setup.Abandon(ctx, rec.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, _, ok, _ := f.setup.Resume(ctx, userID); ok {
		t.Fatalf("abandoned session must not resume")
	}
	if ev := f.notifier.last(t); ev.Status != string(session.StatusAbandoned) {
		t.Fatalf("last event: %+v", ev)
	}

	// Operations on the abandoned session are refused.
	if _, _, err := f.setup.SetSensitivityGate(ctx, rec.ID, false, false); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
}

func TestSetupServicePublishSeedsPortfolio(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := entity.NormalizeUserID("alice")

	result := publishPortfolio(t, f, userID)
	if result.Version.Version != 1 {
		t.Fatalf("first publish version: %d", result.Version.Version)
	}

	problems, _ := f.store.Problems(ctx, userID)
	if len(problems) != 3 {
		t.Fatalf("published problems: %d", len(problems))
	}
	members, _ := f.store.BoardMembers(ctx, userID)
	if len(members) != 7 {
		t.Fatalf("published members: %d", len(members))
	}
	done, _ := f.store.OnboardingComplete(ctx, userID)
	if !done {
		t.Fatalf("onboarding incomplete after publish")
	}
	if ev := f.notifier.last(t); ev.Status != string(session.StatusCompleted) || ev.State != governance.StateFinalized {
		t.Fatalf("last event: %+v", ev)
	}
}

func TestQuarterlyServiceFullReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := entity.NormalizeUserID("alice")
	publishPortfolio(t, f, userID)

	rec, _, err := f.quarterly.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start quarterly: %v", err)
	}
	id := rec.ID
	answer := "On March 3rd I shipped the migration and closed the deal."

	if _, _, err := f.quarterly.SetSensitivityGate(ctx, id, false, false); err != nil {
		t.Fatalf("sensitivity: %v", err)
	}
	if _, _, err := f.quarterly.CheckPrerequisites(ctx, id); err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if _, _, err := f.quarterly.AcknowledgeRecentReport(ctx, id); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	// Fresh portfolio, no open bet yet.
	if _, _, err := f.quarterly.EvaluateBet(ctx, id, "", ""); err != nil {
		t.Fatalf("evaluate bet: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, _, err := f.quarterly.AnswerReflection(ctx, id, answer); err != nil {
			t.Fatalf("reflection %d: %v", i, err)
		}
	}
	rec, d, err := f.quarterly.ComputeHealthTrend(ctx, id)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if !d.HasAppreciating {
		t.Fatalf("published portfolio has an appreciating problem")
	}
	for d.CurrentState == governance.StateQ6ProtectionCheck || d.CurrentState == governance.StateQ7OpportunityCheck {
		if rec, d, err = f.quarterly.AnswerReflection(ctx, id, answer); err != nil {
			t.Fatalf("growth reflection: %v", err)
		}
	}
	if _, _, statuses, err := f.quarterly.ReviewTriggers(ctx, id); err != nil || len(statuses) == 0 {
		t.Fatalf("triggers: statuses=%d err=%v", len(statuses), err)
	}
	if rec, d, err = f.quarterly.CreateNewBet(ctx, id, "ship the platform rebuild by June"); err != nil {
		t.Fatalf("new bet: %v", err)
	}
	for d.CurrentState == governance.StateBoardCore || d.CurrentState == governance.StateBoardGrowth {
		if _, _, q, err := f.quarterly.AskBoard(ctx, id); err != nil || q == "" {
			t.Fatalf("ask board: q=%q err=%v", q, err)
		}
		if rec, d, err = f.quarterly.AnswerBoard(ctx, id, answer); err != nil {
			t.Fatalf("answer board: %v", err)
		}
	}

	rec, result, err := f.quarterly.Finalize(ctx, id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rec.Status != session.StatusCompleted || rec.BetID != result.NewBet.ID {
		t.Fatalf("finalized record: status=%s bet=%s", rec.Status, rec.BetID)
	}

	// The review's consequences are visible through the stores.
	open, ok, _ := f.store.OpenBet(ctx, userID)
	if !ok || open.ID != result.NewBet.ID {
		t.Fatalf("open bet after review: %+v ok=%v", open, ok)
	}
	report, ok, _ := f.store.LastReport(ctx, userID)
	if !ok {
		t.Fatalf("report row missing")
	}
	if _, err := f.docs.Get(ctx, userID.String(), report.Path); err != nil {
		t.Fatalf("report markdown: %v", err)
	}

	// The finished session no longer accepts events.
	if _, _, err := f.quarterly.AnswerReflection(ctx, id, answer); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
}

func TestQuarterlyServiceReloadServesHeldQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := entity.NormalizeUserID("alice")
	publishPortfolio(t, f, userID)

	rec, _, err := f.quarterly.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := rec.ID
	answer := "On March 3rd I shipped the migration and closed the deal."

	mustStep := func(name string, fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	mustStep("sensitivity", func() error { _, _, err := f.quarterly.SetSensitivityGate(ctx, id, false, false); return err })
	mustStep("prerequisites", func() error { _, _, err := f.quarterly.CheckPrerequisites(ctx, id); return err })
	mustStep("acknowledge", func() error { _, _, err := f.quarterly.AcknowledgeRecentReport(ctx, id); return err })
	mustStep("bet", func() error { _, _, err := f.quarterly.EvaluateBet(ctx, id, "", ""); return err })
	for i := 0; i < 4; i++ {
		mustStep("reflection", func() error { _, _, err := f.quarterly.AnswerReflection(ctx, id, answer); return err })
	}
	mustStep("trend", func() error { _, _, err := f.quarterly.ComputeHealthTrend(ctx, id); return err })
	mustStep("q6", func() error { _, _, err := f.quarterly.AnswerReflection(ctx, id, answer); return err })
	mustStep("q7", func() error { _, _, err := f.quarterly.AnswerReflection(ctx, id, answer); return err })
	mustStep("triggers", func() error { _, _, _, err := f.quarterly.ReviewTriggers(ctx, id); return err })
	mustStep("new bet", func() error { _, _, err := f.quarterly.CreateNewBet(ctx, id, "ship the platform rebuild"); return err })

	_, _, first, err := f.quarterly.AskBoard(ctx, id)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	// Asking again, as a client would after a reload, serves the same question.
	_, _, second, err := f.quarterly.AskBoard(ctx, id)
	if err != nil {
		t.Fatalf("re-ask: %v", err)
	}
	if first != second {
		t.Fatalf("held question lost across reload: %q vs %q", first, second)
	}
}
