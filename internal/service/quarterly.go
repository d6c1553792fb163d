package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/governance/quarterly"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
	"steward/internal/repository/session"
)

// QuarterlyService runs the quarterly review interview against the published
// portfolio.
type QuarterlyService struct {
	engine     *quarterly.Engine
	sessions   session.Store
	portfolios portfolio.Store
	docs       document.Store
	notifier   Notifier
	now        func() time.Time
}

func NewQuarterlyService(engine *quarterly.Engine, sessions session.Store, portfolios portfolio.Store, docs document.Store, notifier Notifier) *QuarterlyService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &QuarterlyService{
		engine:     engine,
		sessions:   sessions,
		portfolios: portfolios,
		docs:       docs,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Start opens a fresh quarterly session at the sensitivity gate.
func (s *QuarterlyService) Start(ctx context.Context, userID entity.UserID) (session.Record, quarterly.Data, error) {
	now := s.now()
	d := quarterly.New(now)
	env, err := d.Seal()
	if err != nil {
		return session.Record{}, quarterly.Data{}, err
	}
	rec := session.Record{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Workflow:           governance.WorkflowQuarterly,
		CurrentState:       env.CurrentState,
		AbstractionMode:    env.AbstractionMode,
		VaguenessSkipCount: env.VaguenessSkipCount,
		Document:           env.Document,
		Status:             session.StatusInProgress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return session.Record{}, quarterly.Data{}, err
	}
	s.notify(rec)
	return rec, d, nil
}

// Resume returns the user's in-progress quarterly session, if any.
func (s *QuarterlyService) Resume(ctx context.Context, userID entity.UserID) (session.Record, quarterly.Data, bool, error) {
	rec, ok, err := s.sessions.GetInProgress(ctx, userID, governance.WorkflowQuarterly)
	if err != nil || !ok {
		return session.Record{}, quarterly.Data{}, false, err
	}
	d, err := quarterly.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, quarterly.Data{}, false, err
	}
	return rec, d, true, nil
}

// Get loads one quarterly session by id.
func (s *QuarterlyService) Get(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, quarterly.Data{}, err
	}
	d, err := quarterly.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, quarterly.Data{}, err
	}
	return rec, d, nil
}

// Question returns the prompt the session is waiting on, empty for
// non-question states.
func (s *QuarterlyService) Question(ctx context.Context, sessionID string) (string, error) {
	_, d, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.engine.Question(d), nil
}

// Abandon soft-deletes an in-progress quarterly session.
func (s *QuarterlyService) Abandon(ctx context.Context, sessionID string) error {
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

func (s *QuarterlyService) SetSensitivityGate(ctx context.Context, sessionID string, abstraction, remember bool) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.SetSensitivityGate(d, abstraction, remember)
	})
}

// CheckPrerequisites loads the published portfolio and runs the gate. The
// missing pieces, if any, come back aggregated in one PrerequisiteError.
func (s *QuarterlyService) CheckPrerequisites(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		rec, err := s.load(ctx, sessionID)
		if err != nil {
			return d, err
		}
		snap, err := s.loadSnapshot(ctx, rec.UserID)
		if err != nil {
			return d, err
		}
		return s.engine.CheckPrerequisites(d, snap)
	})
}

func (s *QuarterlyService) AcknowledgeRecentReport(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, s.engine.AcknowledgeRecentReport)
}

func (s *QuarterlyService) EvaluateBet(ctx context.Context, sessionID string, outcome entity.BetStatus, note string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.EvaluateBet(d, outcome, note)
	})
}

func (s *QuarterlyService) AnswerReflection(ctx context.Context, sessionID, answer string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.AnswerReflection(ctx, d, answer)
	})
}

func (s *QuarterlyService) AnswerClarify(ctx context.Context, sessionID, answer string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.AnswerClarify(ctx, d, answer)
	})
}

func (s *QuarterlyService) SkipClarify(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, s.engine.SkipClarify)
}

// ComputeHealthTrend runs the trend step against the live portfolio.
func (s *QuarterlyService) ComputeHealthTrend(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		rec, err := s.load(ctx, sessionID)
		if err != nil {
			return d, err
		}
		problems, err := s.portfolios.Problems(ctx, rec.UserID)
		if err != nil {
			return d, err
		}
		return s.engine.ComputeHealthTrend(ctx, d, problems)
	})
}

func (s *QuarterlyService) ReviewTriggers(ctx context.Context, sessionID string) (session.Record, quarterly.Data, []quarterly.TriggerStatus, error) {
	var statuses []quarterly.TriggerStatus
	rec, d, err := s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		out, st, err := s.engine.ReviewTriggers(d)
		statuses = st
		return out, err
	})
	return rec, d, statuses, err
}

func (s *QuarterlyService) CreateNewBet(ctx context.Context, sessionID, description string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.CreateNewBet(d, description)
	})
}

// AskBoard generates (or re-serves) the current member's question.
func (s *QuarterlyService) AskBoard(ctx context.Context, sessionID string) (session.Record, quarterly.Data, string, error) {
	var question string
	rec, d, err := s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		out, q, err := s.engine.AskBoard(ctx, d)
		question = q
		return out, err
	})
	return rec, d, question, err
}

func (s *QuarterlyService) AnswerBoard(ctx context.Context, sessionID, answer string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, func(d quarterly.Data) (quarterly.Data, error) {
		return s.engine.AnswerBoard(ctx, d, answer)
	})
}

func (s *QuarterlyService) SkipBoardClarify(ctx context.Context, sessionID string) (session.Record, quarterly.Data, error) {
	return s.apply(ctx, sessionID, s.engine.SkipBoardClarify)
}

// Finalize generates the report, commits the review's consequences and
// closes the session.
func (s *QuarterlyService) Finalize(ctx context.Context, sessionID string) (session.Record, quarterly.ReviewResult, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, quarterly.ReviewResult{}, err
	}
	d, err := quarterly.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, quarterly.ReviewResult{}, err
	}
	out, result, err := s.engine.Finalize(ctx, rec.UserID, rec.ID, d, s.portfolios, s.docs)
	if err != nil {
		return rec, quarterly.ReviewResult{}, err
	}
	rec.Summary = result.Summary
	rec.BetID = result.NewBet.ID
	rec, err = s.persist(ctx, rec, out)
	if err != nil {
		return rec, result, fmt.Errorf("close session after finalize: %w", err)
	}
	return rec, result, nil
}

func (s *QuarterlyService) apply(ctx context.Context, sessionID string, op func(quarterly.Data) (quarterly.Data, error)) (session.Record, quarterly.Data, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return session.Record{}, quarterly.Data{}, err
	}
	d, err := quarterly.FromEnvelope(rec.Envelope())
	if err != nil {
		return session.Record{}, quarterly.Data{}, err
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

func (s *QuarterlyService) load(ctx context.Context, sessionID string) (session.Record, error) {
	rec, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return session.Record{}, err
	}
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	if rec.Workflow != governance.WorkflowQuarterly {
		return session.Record{}, session.ErrNotFound
	}
	if rec.Status != session.StatusInProgress {
		return session.Record{}, ErrSessionClosed
	}
	return rec, nil
}

func (s *QuarterlyService) loadSnapshot(ctx context.Context, userID entity.UserID) (quarterly.Snapshot, error) {
	snap := quarterly.Snapshot{}
	var err error
	if snap.Problems, err = s.portfolios.Problems(ctx, userID); err != nil {
		return snap, err
	}
	if snap.Members, err = s.portfolios.BoardMembers(ctx, userID); err != nil {
		return snap, err
	}
	if snap.Triggers, err = s.portfolios.Triggers(ctx, userID); err != nil {
		return snap, err
	}
	if health, ok, err := s.portfolios.LatestHealth(ctx, userID); err != nil {
		return snap, err
	} else if ok {
		snap.LastHealth = &health
	}
	if bet, ok, err := s.portfolios.OpenBet(ctx, userID); err != nil {
		return snap, err
	} else if ok {
		snap.OpenBet = &bet
	}
	if report, ok, err := s.portfolios.LastReport(ctx, userID); err != nil {
		return snap, err
	} else if ok {
		at := report.CreatedAt
		snap.LastReportAt = &at
	}
	return snap, nil
}

func (s *QuarterlyService) persist(ctx context.Context, rec session.Record, d quarterly.Data) (session.Record, error) {
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

func (s *QuarterlyService) notify(rec session.Record) {
	s.notifier.SessionChanged(rec.UserID.String(), SessionEvent{
		SessionID: rec.ID,
		Workflow:  rec.Workflow,
		State:     rec.CurrentState,
		Status:    string(rec.Status),
		At:        rec.UpdatedAt,
	})
}
