package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"steward/internal/entity"
)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := entity.NormalizeUserID("alice")

	boom := errors.New("midway failure")
	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateProblem(ctx, entity.Problem{ID: "p1", UserID: userID, Active: true}); err != nil {
			return err
		}
		if err := tx.UpsertHealth(ctx, entity.PortfolioHealth{UserID: userID, Version: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected staged error, got %v", err)
	}

	problems, _ := store.Problems(ctx, userID)
	if len(problems) != 0 {
		t.Fatalf("rolled-back problem leaked: %+v", problems)
	}
	if _, ok, _ := store.LatestHealth(ctx, userID); ok {
		t.Fatalf("rolled-back health leaked")
	}
}

func TestInTxCommitIsVisible(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := entity.NormalizeUserID("alice")

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateProblem(ctx, entity.Problem{ID: "p1", UserID: userID, Active: true, DisplayOrder: 1}); err != nil {
			return err
		}
		if err := tx.CreateProblem(ctx, entity.Problem{ID: "p0", UserID: userID, Active: true, DisplayOrder: 0}); err != nil {
			return err
		}
		return tx.MarkOnboardingComplete(ctx, userID)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	problems, _ := store.Problems(ctx, userID)
	if len(problems) != 2 || problems[0].ID != "p0" {
		t.Fatalf("problems in display order: %+v", problems)
	}
	done, _ := store.OnboardingComplete(ctx, userID)
	if !done {
		t.Fatalf("onboarding flag lost")
	}
}

func TestCreateVersionMustBeSuccessor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := entity.NormalizeUserID("alice")

	err := store.InTx(ctx, func(tx Tx) error {
		return tx.CreateVersion(ctx, entity.PortfolioVersion{UserID: userID, Version: 2})
	})
	if err == nil {
		t.Fatalf("version 2 with no version 1 must fail")
	}

	for v := 1; v <= 2; v++ {
		err := store.InTx(ctx, func(tx Tx) error {
			return tx.CreateVersion(ctx, entity.PortfolioVersion{UserID: userID, Version: v})
		})
		if err != nil {
			t.Fatalf("version %d: %v", v, err)
		}
	}
	latest, _ := store.LatestVersion(ctx, userID)
	if latest != 2 {
		t.Fatalf("latest version: %d", latest)
	}
}

func TestInvalidatePortfolioHidesPriorRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := entity.NormalizeUserID("alice")

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateProblem(ctx, entity.Problem{ID: "p1", UserID: userID, Active: true}); err != nil {
			return err
		}
		return tx.CreateBoardMember(ctx, entity.BoardMember{ID: "m1", UserID: userID, Active: true})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.InTx(ctx, func(tx Tx) error {
		if err := tx.InvalidatePortfolio(ctx, userID); err != nil {
			return err
		}
		return tx.CreateProblem(ctx, entity.Problem{ID: "p2", UserID: userID, Active: true})
	})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}

	problems, _ := store.Problems(ctx, userID)
	if len(problems) != 1 || problems[0].ID != "p2" {
		t.Fatalf("only the new portfolio must be live: %+v", problems)
	}
	members, _ := store.BoardMembers(ctx, userID)
	if len(members) != 0 {
		t.Fatalf("superseded members must be inactive: %+v", members)
	}
}

func TestSetBetStatusUnknownBet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.InTx(ctx, func(tx Tx) error {
		return tx.SetBetStatus(ctx, "ghost", entity.BetCorrect, time.Now())
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetBetStatusRecordsEvaluation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := entity.NormalizeUserID("alice")
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateBet(ctx, entity.Bet{ID: "b1", UserID: userID, Status: entity.BetOpen}); err != nil {
			return err
		}
		return tx.SetBetStatus(ctx, "b1", entity.BetPartial, at)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	if _, ok, _ := store.OpenBet(ctx, userID); ok {
		t.Fatalf("evaluated bet must not be open")
	}
}
