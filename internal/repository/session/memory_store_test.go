package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"steward/internal/entity"
	"steward/internal/governance"
)

func testRecord(id string, w governance.Workflow) Record {
	return Record{
		ID:           id,
		UserID:       entity.NormalizeUserID("alice"),
		Workflow:     w,
		CurrentState: governance.StateSensitivityGate,
		Document:     json.RawMessage(`{"current_state":"sensitivityGate"}`),
	}
}

func TestCreateEnforcesSingleInProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, testRecord("s1", governance.WorkflowSetup)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, testRecord("s2", governance.WorkflowSetup))
	if !errors.Is(err, ErrSessionInProgress) {
		t.Fatalf("expected in-progress conflict, got %v", err)
	}

	// A different workflow for the same user is fine.
	if err := store.Create(ctx, testRecord("q1", governance.WorkflowQuarterly)); err != nil {
		t.Fatalf("create quarterly: %v", err)
	}
}

func TestCreateAllowedAfterAbandon(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, testRecord("s1", governance.WorkflowSetup)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Abandon(ctx, "s1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if err := store.Create(ctx, testRecord("s2", governance.WorkflowSetup)); err != nil {
		t.Fatalf("create after abandon: %v", err)
	}
	rec, ok, _ := store.Get(ctx, "s1")
	if !ok || rec.Status != StatusAbandoned {
		t.Fatalf("abandoned record: ok=%v status=%s", ok, rec.Status)
	}
}

func TestGetInProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, testRecord("s1", governance.WorkflowSetup)); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, ok, err := store.GetInProgress(ctx, entity.NormalizeUserID("alice"), governance.WorkflowSetup)
	if err != nil || !ok {
		t.Fatalf("get in progress: ok=%v err=%v", ok, err)
	}
	if rec.ID != "s1" {
		t.Fatalf("got %q", rec.ID)
	}
	if _, ok, _ := store.GetInProgress(ctx, entity.NormalizeUserID("bob"), governance.WorkflowSetup); ok {
		t.Fatalf("bob has no session")
	}
}

func TestPutRequiresExistingRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, testRecord("ghost", governance.WorkflowSetup)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutUpdatesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := testRecord("s1", governance.WorkflowSetup)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.CurrentState = governance.StateFinalized
	rec.Status = StatusCompleted
	rec.VaguenessSkipCount = 1
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, _ := store.Get(ctx, "s1")
	if !ok {
		t.Fatalf("record missing after put")
	}
	if got.CurrentState != governance.StateFinalized || got.Status != StatusCompleted || got.VaguenessSkipCount != 1 {
		t.Fatalf("update lost: %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, testRecord("s1", governance.WorkflowSetup)); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, _, _ := store.Get(ctx, "s1")
	rec.Document[0] = 'X'

	again, _, _ := store.Get(ctx, "s1")
	if again.Document[0] == 'X' {
		t.Fatalf("returned document aliases the stored one")
	}
}

func TestCachedStoreWriteThrough(t *testing.T) {
	ctx := context.Background()
	origin := NewMemoryStore()
	store, err := NewCachedStore(origin, 4)
	if err != nil {
		t.Fatalf("cached store: %v", err)
	}

	rec := testRecord("s1", governance.WorkflowSetup)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "s1"); !ok {
		t.Fatalf("record missing")
	}

	rec.CurrentState = governance.StateFinalized
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, _ := store.Get(ctx, "s1")
	if !ok || got.CurrentState != governance.StateFinalized {
		t.Fatalf("cache served a stale record: %+v", got)
	}

	if err := store.Abandon(ctx, "s1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	got, ok, _ = store.Get(ctx, "s1")
	if !ok || got.Status != StatusAbandoned {
		t.Fatalf("abandon not visible through cache: %+v", got)
	}
}
