// Package session persists governance session records: the state tag and
// discrete gate fields beside one serialized session document.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"steward/internal/entity"
	"steward/internal/governance"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrSessionInProgress rejects starting a second in-progress session of
	// the same workflow for the same user.
	ErrSessionInProgress = errors.New("a session of this workflow is already in progress")
)

// Status is the session record lifecycle.
type Status string

const (
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Record is the persisted representation of one governance session.
type Record struct {
	ID                 string              `json:"id"`
	UserID             entity.UserID       `json:"user_id"`
	Workflow           governance.Workflow `json:"workflow"`
	CurrentState       governance.State    `json:"current_state"`
	AbstractionMode    bool                `json:"abstraction_mode"`
	VaguenessSkipCount int                 `json:"vagueness_skip_count"`
	Document           json.RawMessage     `json:"document"`
	Status             Status              `json:"status"`
	Summary            string              `json:"summary,omitempty"`
	BetID              string              `json:"bet_id,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Envelope projects the record into the engine-facing persisted shape.
func (r Record) Envelope() governance.Envelope {
	return governance.Envelope{
		CurrentState:       r.CurrentState,
		AbstractionMode:    r.AbstractionMode,
		VaguenessSkipCount: r.VaguenessSkipCount,
		Document:           r.Document,
	}
}

// Store persists session records. Writes are last-write-wins, safe only
// under the single-active-session rule Create enforces.
type Store interface {
	// Create inserts a fresh in-progress record, failing with
	// ErrSessionInProgress when one already exists for (user, workflow).
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	GetInProgress(ctx context.Context, userID entity.UserID, w governance.Workflow) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	// Abandon soft-deletes an in-progress session.
	Abandon(ctx context.Context, id string) error
}
