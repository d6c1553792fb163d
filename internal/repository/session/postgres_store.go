package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"steward/internal/entity"
	"steward/internal/governance"
)

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
CREATE TABLE IF NOT EXISTS governance_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  workflow TEXT NOT NULL,
  current_state TEXT NOT NULL,
  abstraction_mode BOOLEAN NOT NULL DEFAULT FALSE,
  vagueness_skip_count INT NOT NULL DEFAULT 0,
  document JSONB NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'inProgress',
  summary TEXT NOT NULL DEFAULT '',
  bet_id TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_in_progress
  ON governance_sessions (user_id, workflow) WHERE status = 'inProgress';
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO governance_sessions (
  id, user_id, workflow, current_state, abstraction_mode,
  vagueness_skip_count, document, status, summary, bet_id, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,'inProgress','','',$8,$8)`,
		rec.ID, rec.UserID.String(), rec.Workflow, rec.CurrentState, rec.AbstractionMode,
		rec.VaguenessSkipCount, documentOrEmpty(rec.Document), rec.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "idx_sessions_one_in_progress") {
		return ErrSessionInProgress
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return Record{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, workflow, current_state, abstraction_mode,
  vagueness_skip_count, document, status, summary, bet_id, created_at, updated_at
FROM governance_sessions WHERE id = $1`, strings.TrimSpace(id))
	return scanRecord(row)
}

func (s *PostgresStore) GetInProgress(ctx context.Context, userID entity.UserID, w governance.Workflow) (Record, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return Record{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, workflow, current_state, abstraction_mode,
  vagueness_skip_count, document, status, summary, bet_id, created_at, updated_at
FROM governance_sessions
WHERE user_id = $1 AND workflow = $2 AND status = 'inProgress'`, userID.String(), w)
	return scanRecord(row)
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE governance_sessions
SET current_state=$2, abstraction_mode=$3, vagueness_skip_count=$4,
  document=$5, status=$6, summary=$7, bet_id=$8, updated_at=NOW()
WHERE id=$1`,
		rec.ID, rec.CurrentState, rec.AbstractionMode, rec.VaguenessSkipCount,
		documentOrEmpty(rec.Document), rec.Status, rec.Summary, rec.BetID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Abandon(ctx context.Context, id string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE governance_sessions SET status='abandoned', updated_at=NOW()
WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, bool, error) {
	var rec Record
	var uid string
	var doc []byte
	err := row.Scan(&rec.ID, &uid, &rec.Workflow, &rec.CurrentState, &rec.AbstractionMode,
		&rec.VaguenessSkipCount, &doc, &rec.Status, &rec.Summary, &rec.BetID,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.UserID = entity.NormalizeUserID(uid)
	rec.Document = json.RawMessage(doc)
	return rec, true, nil
}

func documentOrEmpty(doc json.RawMessage) []byte {
	if len(doc) == 0 {
		return []byte("{}")
	}
	return doc
}
