package portfolio

import (
	"context"
	"errors"
	"time"

	"steward/internal/entity"
)

var ErrNotFound = errors.New("portfolio record not found")

// Store reads the persisted portfolio and opens write transactions. Reads
// only ever see active (non-superseded) entities.
type Store interface {
	Problems(ctx context.Context, userID entity.UserID) ([]entity.Problem, error)
	BoardMembers(ctx context.Context, userID entity.UserID) ([]entity.BoardMember, error)
	Triggers(ctx context.Context, userID entity.UserID) ([]entity.Trigger, error)
	LatestHealth(ctx context.Context, userID entity.UserID) (entity.PortfolioHealth, bool, error)
	LatestVersion(ctx context.Context, userID entity.UserID) (int, error)
	OpenBet(ctx context.Context, userID entity.UserID) (entity.Bet, bool, error)
	LastReport(ctx context.Context, userID entity.UserID) (entity.Report, bool, error)
	OnboardingComplete(ctx context.Context, userID entity.UserID) (bool, error)

	// InTx runs fn against a transaction-scoped writer. Any error rolls the
	// whole unit of work back; the publish pipeline is all-or-nothing.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface available inside a unit of work.
type Tx interface {
	InvalidatePortfolio(ctx context.Context, userID entity.UserID) error
	CreateProblem(ctx context.Context, p entity.Problem) error
	CreateBoardMember(ctx context.Context, m entity.BoardMember) error
	CreateTrigger(ctx context.Context, t entity.Trigger) error
	UpsertHealth(ctx context.Context, h entity.PortfolioHealth) error
	CreateVersion(ctx context.Context, v entity.PortfolioVersion) error
	CreateBet(ctx context.Context, b entity.Bet) error
	SetBetStatus(ctx context.Context, betID string, status entity.BetStatus, at time.Time) error
	CreateReport(ctx context.Context, r entity.Report) error
	MarkOnboardingComplete(ctx context.Context, userID entity.UserID) error
}
