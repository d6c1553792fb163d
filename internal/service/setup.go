package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/governance/setup"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
	"steward/internal/repository/session"
)

// ErrSessionClosed rejects transitions against a completed or abandoned
// session.
var ErrSessionClosed = errors.New("session is not in progress")

// SetupService runs the setup interview: one persisted session per user at a
// time, resumable from the stored envelope after any interruption.
type SetupService struct {
	engine     *setup.Engine
	sessions   session.Store
	portfolios portfolio.Store
	docs       document.Store
	notifier   Notifier
	now        func() time.Time
}

func NewSetupService(engine *setup.Engine, sessions session.Store, portfolios portfolio.Store, docs document.Store, notifier Notifier) *SetupService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SetupService{
		engine:     engine,
		sessions:   sessions,
		portfolios: portfolios,
		docs:       docs,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Start opens a fresh setup session. A user can hold at most one in-progress
// session per workflow; the store enforces it.
func (s *SetupService) Start(ctx context.Context, userID entity.UserID) (session.Record, setup.Data, error) {
	now := s.now()
	d := setup.New(now)
	env, err := d.Seal()
	if err != nil {
		return session.Record{}, setup.Data{}, err
	}
	rec := session.Record{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Workflow:           governance.WorkflowSetup,
		CurrentState:       env.CurrentState,
		AbstractionMode:    env.AbstractionMode,
		VaguenessSkipCount: env.VaguenessSkipCount,
		Document:           env.Document,
		Status:             session.StatusInProgress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return session.Record{}, setup.Data{}, err
	}
	s.notify(rec)
	return rec, d, nil
}

// Resume returns the user's in-progress setup session, if any.
func (s *SetupService) Resume(ctx context.Context, userID entity.UserID) (session.Record, setup.Data, bool, error) {
	rec, ok, err := s.sessions.GetInProgress(ctx, userID, governance.WorkflowSetup)
	if err != nil || !ok {
		return session.Record{}, setup.Data{}, false, err
	}
	d, err := setup.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, setup.Data{}, false, err
	}
	return rec, d, true, nil
}

// Get loads one setup session by id.
func (s *SetupService) Get(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, setup.Data{}, err
	}
	d, err := setup.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, setup.Data{}, err
	}
	return rec, d, nil
}

// Abandon soft-deletes an in-progress setup session.
func (s *SetupService) Abandon(ctx context.Context, sessionID string) error {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Abandon(ctx, sessionID); err != nil {
		return err
	}
	rec.Status = session.StatusAbandoned
	s.notify(rec)
	return nil
}

func (s *SetupService) SetSensitivityGate(ctx context.Context, sessionID string, abstraction, remember bool) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.SetSensitivityGate(d, abstraction, remember)
	})
}

func (s *SetupService) SaveProblem(ctx context.Context, sessionID string, p setup.DraftProblem) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.SaveProblem(d, p)
	})
}

func (s *SetupService) ValidateAndAdvance(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, s.engine.ValidateAndAdvance)
}

func (s *SetupService) AddAnotherProblem(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, s.engine.AddAnotherProblem)
}

func (s *SetupService) ProceedToTimeAllocation(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, s.engine.ProceedToTimeAllocation)
}

func (s *SetupService) UpdateAllocations(ctx context.Context, sessionID string, allocations []int) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.UpdateAllocations(d, allocations)
	})
}

// AllocationStatus classifies the session's current allocation sum without
// transitioning.
func (s *SetupService) AllocationStatus(ctx context.Context, sessionID string) (setup.AllocationStatus, int, error) {
	_, d, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}
	return s.engine.AllocationStatus(d), d.AllocationSum(), nil
}

func (s *SetupService) ProceedFromTimeAllocation(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, s.engine.ProceedFromTimeAllocation)
}

func (s *SetupService) CalculateHealth(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.CalculateHealth(ctx, d)
	})
}

func (s *SetupService) CreateCoreRoles(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.CreateCoreRoles(ctx, d)
	})
}

func (s *SetupService) CreateGrowthRoles(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.CreateGrowthRoles(ctx, d)
	})
}

func (s *SetupService) CreatePersonas(ctx context.Context, sessionID string) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.CreatePersonas(ctx, d)
	})
}

func (s *SetupService) DefineTriggers(ctx context.Context, sessionID string, triggers []setup.DraftTrigger) (session.Record, setup.Data, error) {
	return s.apply(ctx, sessionID, func(d setup.Data) (setup.Data, error) {
		return s.engine.DefineTriggers(d, triggers)
	})
}

// Publish commits the drafts through the transactional pipeline and closes
// the session.
func (s *SetupService) Publish(ctx context.Context, sessionID string) (session.Record, setup.PublishResult, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, setup.PublishResult{}, err
	}
	d, err := setup.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, setup.PublishResult{}, err
	}
	out, result, err := s.engine.Publish(ctx, rec.UserID, d, s.portfolios, s.docs)
	if err != nil {
		return rec, setup.PublishResult{}, err
	}
	rec.Summary = result.Summary
	rec, err = s.persist(ctx, rec, out)
	if err != nil {
		// The portfolio already committed; the session record is the only
		// thing left dangling and a retry of Publish is rejected by state.
		return rec, result, fmt.Errorf("close session after publish: %w", err)
	}
	return rec, result, nil
}

func (s *SetupService) apply(ctx context.Context, sessionID string, op func(setup.Data) (setup.Data, error)) (session.Record, setup.Data, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, setup.Data{}, err
	}
	d, err := setup.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, setup.Data{}, err
	}
	out, err := op(d)
	if err != nil {
		return rec, d, err
	}
	rec, err = s.persist(ctx, rec, out)
	if err != nil {
		return rec, d, err
	}
	return rec, out, nil
}

func (s *SetupService) load(ctx context.Context, sessionID string) (session.Record, error) {
	rec, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return session.Record{}, err
	}
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	if rec.Workflow != governance.WorkflowSetup {
		return session.Record{}, session.ErrNotFound
	}
	if rec.Status != session.StatusInProgress {
		return session.Record{}, ErrSessionClosed
	}
	return rec, nil
}

func (s *SetupService) persist(ctx context.Context, rec session.Record, d setup.Data) (session.Record, error) {
	env, err := d.Seal()
	if err != nil {
		return rec, err
	}
	rec.CurrentState = env.CurrentState
	rec.AbstractionMode = env.AbstractionMode
	rec.VaguenessSkipCount = env.VaguenessSkipCount
	rec.Document = env.Document
	rec.UpdatedAt = s.now()
	if env.CurrentState == governance.StateFinalized {
		rec.Status = session.StatusCompleted
	}
	if err := s.sessions.Put(ctx, rec); err != nil {
		return rec, err
	}
	s.notify(rec)
	return rec, nil
}

func (s *SetupService) notify(rec session.Record) {
	s.notifier.SessionChanged(rec.UserID.String(), SessionEvent{
		SessionID: rec.ID,
		Workflow:  rec.Workflow,
		State:     rec.CurrentState,
		Status:    string(rec.Status),
		At:        rec.UpdatedAt,
	})
}
