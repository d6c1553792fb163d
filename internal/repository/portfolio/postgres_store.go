package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"steward/internal/entity"
)

// PostgresStore persists the portfolio in postgres via database/sql on the
// pgx driver.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS problems (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  failure_description TEXT NOT NULL DEFAULT '',
  direction TEXT NOT NULL,
  rationale TEXT NOT NULL DEFAULT '',
  evidence JSONB NOT NULL DEFAULT '[]',
  allocation_pct INT NOT NULL DEFAULT 0,
  display_order INT NOT NULL DEFAULT 0,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_problems_user ON problems (user_id, active);

CREATE TABLE IF NOT EXISTS board_members (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL,
  partition TEXT NOT NULL,
  problem_id TEXT NOT NULL DEFAULT '',
  demand TEXT NOT NULL DEFAULT '',
  persona JSONB NOT NULL DEFAULT '{}',
  display_order INT NOT NULL DEFAULT 0,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_board_members_user ON board_members (user_id, active);

CREATE TABLE IF NOT EXISTS triggers (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  condition TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL DEFAULT '',
  due_at TIMESTAMP WITH TIME ZONE,
  met BOOLEAN NOT NULL DEFAULT FALSE,
  met_at TIMESTAMP WITH TIME ZONE,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_triggers_user ON triggers (user_id, active);

CREATE TABLE IF NOT EXISTS portfolio_health (
  user_id TEXT PRIMARY KEY,
  version INT NOT NULL DEFAULT 0,
  appreciating_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
  depreciating_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
  stable_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
  risk_statement TEXT NOT NULL DEFAULT '',
  opportunity_statement TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS portfolio_versions (
  user_id TEXT NOT NULL,
  version INT NOT NULL,
  snapshot JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  PRIMARY KEY (user_id, version)
);

CREATE TABLE IF NOT EXISTS bets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'OPEN',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  evaluated_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_bets_user ON bets (user_id, status);

CREATE TABLE IF NOT EXISTS reports (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL DEFAULT '',
  path TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_user ON reports (user_id, created_at);

CREATE TABLE IF NOT EXISTS user_flags (
  user_id TEXT PRIMARY KEY,
  onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE
);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Problems(ctx context.Context, userID entity.UserID) ([]entity.Problem, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, name, failure_description, direction, rationale, evidence,
  allocation_pct, display_order, active, created_at
FROM problems WHERE user_id = $1 AND active ORDER BY display_order`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Problem
	for rows.Next() {
		var p entity.Problem
		var uid string
		var evidence []byte
		if err := rows.Scan(&p.ID, &uid, &p.Name, &p.FailureDescription, &p.Direction,
			&p.Rationale, &evidence, &p.AllocationPct, &p.DisplayOrder, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.UserID = entity.NormalizeUserID(uid)
		if err := json.Unmarshal(evidence, &p.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence for problem %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BoardMembers(ctx context.Context, userID entity.UserID) ([]entity.BoardMember, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, role, partition, problem_id, demand, persona, display_order, active, created_at
FROM board_members WHERE user_id = $1 AND active ORDER BY display_order`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.BoardMember
	for rows.Next() {
		var m entity.BoardMember
		var uid string
		var persona []byte
		if err := rows.Scan(&m.ID, &uid, &m.Role, &m.Partition, &m.ProblemID,
			&m.Demand, &persona, &m.DisplayOrder, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.UserID = entity.NormalizeUserID(uid)
		if err := json.Unmarshal(persona, &m.Persona); err != nil {
			return nil, fmt.Errorf("decode persona for member %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Triggers(ctx context.Context, userID entity.UserID) ([]entity.Trigger, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, type, description, condition, action, due_at, met, met_at, active, created_at
FROM triggers WHERE user_id = $1 AND active ORDER BY created_at`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Trigger
	for rows.Next() {
		var t entity.Trigger
		var uid string
		var dueAt, metAt sql.NullTime
		if err := rows.Scan(&t.ID, &uid, &t.Type, &t.Description, &t.Condition,
			&t.Action, &dueAt, &t.Met, &metAt, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.UserID = entity.NormalizeUserID(uid)
		if dueAt.Valid {
			due := dueAt.Time
			t.DueAt = &due
		}
		if metAt.Valid {
			met := metAt.Time
			t.MetAt = &met
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LatestHealth(ctx context.Context, userID entity.UserID) (entity.PortfolioHealth, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.PortfolioHealth{}, false, err
	}
	var h entity.PortfolioHealth
	var uid string
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, version, appreciating_pct, depreciating_pct, stable_pct,
  risk_statement, opportunity_statement, updated_at
FROM portfolio_health WHERE user_id = $1`, userID.String()).Scan(
		&uid, &h.Version, &h.AppreciatingPct, &h.DepreciatingPct, &h.StablePct,
		&h.RiskStatement, &h.OpportunityStatement, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.PortfolioHealth{}, false, nil
	}
	if err != nil {
		return entity.PortfolioHealth{}, false, err
	}
	h.UserID = entity.NormalizeUserID(uid)
	return h, true, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, userID entity.UserID) (int, error) {
	if err := s.ensureSchema(); err != nil {
		return 0, err
	}
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM portfolio_versions WHERE user_id = $1`,
		userID.String()).Scan(&v)
	return v, err
}

func (s *PostgresStore) OpenBet(ctx context.Context, userID entity.UserID) (entity.Bet, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Bet{}, false, err
	}
	var b entity.Bet
	var uid string
	var evaluatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, description, status, created_at, evaluated_at
FROM bets WHERE user_id = $1 AND status = 'OPEN'
ORDER BY created_at DESC LIMIT 1`, userID.String()).Scan(
		&b.ID, &uid, &b.Description, &b.Status, &b.CreatedAt, &evaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Bet{}, false, nil
	}
	if err != nil {
		return entity.Bet{}, false, err
	}
	b.UserID = entity.NormalizeUserID(uid)
	if evaluatedAt.Valid {
		at := evaluatedAt.Time
		b.EvaluatedAt = &at
	}
	return b, true, nil
}

func (s *PostgresStore) LastReport(ctx context.Context, userID entity.UserID) (entity.Report, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Report{}, false, err
	}
	var r entity.Report
	var uid string
	err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, session_id, path, created_at
FROM reports WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID.String()).Scan(
		&r.ID, &uid, &r.SessionID, &r.Path, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Report{}, false, nil
	}
	if err != nil {
		return entity.Report{}, false, err
	}
	r.UserID = entity.NormalizeUserID(uid)
	return r, true, nil
}

func (s *PostgresStore) OnboardingComplete(ctx context.Context, userID entity.UserID) (bool, error) {
	if err := s.ensureSchema(); err != nil {
		return false, err
	}
	var done bool
	err := s.db.QueryRowContext(ctx,
		`SELECT onboarding_complete FROM user_flags WHERE user_id = $1`,
		userID.String()).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return done, err
}

// InTx opens one database transaction for the whole unit of work.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) InvalidatePortfolio(ctx context.Context, userID entity.UserID) error {
	for _, table := range []string{"problems", "board_members", "triggers"} {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE `+table+` SET active = FALSE WHERE user_id = $1`, userID.String()); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreateProblem(ctx context.Context, p entity.Problem) error {
	evidence, err := json.Marshal(p.Evidence)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO problems (id, user_id, name, failure_description, direction, rationale,
  evidence, allocation_pct, display_order, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.UserID.String(), p.Name, p.FailureDescription, p.Direction, p.Rationale,
		evidence, p.AllocationPct, p.DisplayOrder, p.Active, p.CreatedAt)
	return err
}

func (t *pgTx) CreateBoardMember(ctx context.Context, m entity.BoardMember) error {
	persona, err := json.Marshal(m.Persona)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO board_members (id, user_id, role, partition, problem_id, demand,
  persona, display_order, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.UserID.String(), m.Role, m.Partition, m.ProblemID, m.Demand,
		persona, m.DisplayOrder, m.Active, m.CreatedAt)
	return err
}

func (t *pgTx) CreateTrigger(ctx context.Context, tr entity.Trigger) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO triggers (id, user_id, type, description, condition, action,
  due_at, met, met_at, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		tr.ID, tr.UserID.String(), tr.Type, tr.Description, tr.Condition, tr.Action,
		tr.DueAt, tr.Met, tr.MetAt, tr.Active, tr.CreatedAt)
	return err
}

func (t *pgTx) UpsertHealth(ctx context.Context, h entity.PortfolioHealth) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO portfolio_health (user_id, version, appreciating_pct, depreciating_pct,
  stable_pct, risk_statement, opportunity_statement, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id)
DO UPDATE SET version=EXCLUDED.version,
  appreciating_pct=EXCLUDED.appreciating_pct,
  depreciating_pct=EXCLUDED.depreciating_pct,
  stable_pct=EXCLUDED.stable_pct,
  risk_statement=EXCLUDED.risk_statement,
  opportunity_statement=EXCLUDED.opportunity_statement,
  updated_at=EXCLUDED.updated_at`,
		h.UserID.String(), h.Version, h.AppreciatingPct, h.DepreciatingPct,
		h.StablePct, h.RiskStatement, h.OpportunityStatement, h.UpdatedAt)
	return err
}

func (t *pgTx) CreateVersion(ctx context.Context, v entity.PortfolioVersion) error {
	snapshot, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO portfolio_versions (user_id, version, snapshot, created_at)
VALUES ($1,$2,$3,$4)`,
		v.UserID.String(), v.Version, snapshot, v.CreatedAt)
	return err
}

func (t *pgTx) CreateBet(ctx context.Context, b entity.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO bets (id, user_id, description, status, created_at, evaluated_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.UserID.String(), b.Description, b.Status, b.CreatedAt, b.EvaluatedAt)
	return err
}

func (t *pgTx) SetBetStatus(ctx context.Context, betID string, status entity.BetStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bets SET status = $2, evaluated_at = $3 WHERE id = $1`, betID, status, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) CreateReport(ctx context.Context, r entity.Report) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO reports (id, user_id, session_id, path, created_at)
VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.UserID.String(), r.SessionID, r.Path, r.CreatedAt)
	return err
}

func (t *pgTx) MarkOnboardingComplete(ctx context.Context, userID entity.UserID) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO user_flags (user_id, onboarding_complete)
VALUES ($1, TRUE)
ON CONFLICT (user_id) DO UPDATE SET onboarding_complete = TRUE`, userID.String())
	return err
}
