package quarterly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
)

func runToReport(t *testing.T, e *Engine, snap Snapshot) Data {
	t.Helper()
	ctx := context.Background()
	d := runToBoard(t, e, snap)
	for d.CurrentState == governance.StateBoardCore || d.CurrentState == governance.StateBoardGrowth {
		var err error
		if d, _, err = e.AskBoard(ctx, d); err != nil {
			t.Fatalf("ask: %v", err)
		}
		if d, err = e.AnswerBoard(ctx, d, concreteAnswer); err != nil {
			t.Fatalf("answer: %v", err)
		}
	}
	if d.CurrentState != governance.StateReportGeneration {
		t.Fatalf("expected report generation, got %s", d.CurrentState)
	}
	return d
}

func seedOpenBet(t *testing.T, store *portfolio.MemoryStore, userID entity.UserID) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx portfolio.Tx) error {
		return tx.CreateBet(context.Background(), entity.Bet{
			ID: "bet-1", UserID: userID,
			Description: "double down on the platform",
			Status:      entity.BetOpen,
			CreatedAt:   time.Now().Add(-90 * 24 * time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed bet: %v", err)
	}
}

func TestFinalizeCommitsReviewConsequences(t *testing.T) {
	ctx := context.Background()
	e := testEngine()
	userID := entity.NormalizeUserID("alice")
	store := portfolio.NewMemoryStore()
	docs := document.NewMemoryStore()
	seedOpenBet(t, store, userID)

	d := runToReport(t, e, testSnapshot(userID))
	d, result, err := e.Finalize(ctx, userID, "sess-1", d, store, docs)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if d.CurrentState != governance.StateFinalized {
		t.Fatalf("expected finalized, got %s", d.CurrentState)
	}

	// The evaluated bet is closed and the new bet is the open one.
	open, ok, err := store.OpenBet(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("open bet after finalize: ok=%v err=%v", ok, err)
	}
	if open.ID != result.NewBet.ID || open.Description != "ship the platform rebuild by June" {
		t.Fatalf("wrong open bet after finalize: %+v", open)
	}

	report, ok, err := store.LastReport(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("report row missing: ok=%v err=%v", ok, err)
	}
	if report.SessionID != "sess-1" {
		t.Fatalf("report session: %q", report.SessionID)
	}
	content, err := docs.Get(ctx, userID.String(), report.Path)
	if err != nil {
		t.Fatalf("report markdown: %v", err)
	}
	if !strings.HasPrefix(string(content), "# Quarterly Report") {
		t.Fatalf("unexpected markdown: %q", content)
	}

	health, ok, err := store.LatestHealth(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("health after finalize: ok=%v err=%v", ok, err)
	}
	if health.AppreciatingPct != 40 || health.Version != 2 {
		t.Fatalf("health not refreshed: %+v", health)
	}
	if result.Summary == "" {
		t.Fatalf("summary missing")
	}
}

type failingPortfolioStore struct {
	portfolio.Store
}

func (s failingPortfolioStore) InTx(context.Context, func(portfolio.Tx) error) error {
	return errors.New("connection lost")
}

func TestFinalizeRollsBackAsOneUnit(t *testing.T) {
	ctx := context.Background()
	e := testEngine()
	userID := entity.NormalizeUserID("alice")
	store := portfolio.NewMemoryStore()
	docs := document.NewMemoryStore()
	seedOpenBet(t, store, userID)

	d := runToReport(t, e, testSnapshot(userID))
	_, _, err := e.Finalize(ctx, userID, "sess-1", d, failingPortfolioStore{store}, docs)
	if err == nil {
		t.Fatalf("expected finalize failure")
	}

	open, ok, err := store.OpenBet(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("open bet: ok=%v err=%v", ok, err)
	}
	if open.ID != "bet-1" {
		t.Fatalf("evaluated bet must stay open on rollback, got %+v", open)
	}
	if _, ok, _ := store.LastReport(ctx, userID); ok {
		t.Fatalf("report row must not exist after rollback")
	}
	if d.CurrentState != governance.StateReportGeneration {
		t.Fatalf("session must stay in report generation, got %s", d.CurrentState)
	}
}

func TestFinalizeRequiresReportState(t *testing.T) {
	e := testEngine()
	userID := entity.NormalizeUserID("alice")
	d := New(time.Now())

	_, _, err := e.Finalize(context.Background(), userID, "sess-1", d,
		portfolio.NewMemoryStore(), document.NewMemoryStore())
	var invalid *governance.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
