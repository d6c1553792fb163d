// Package service coordinates the governance engines with the persistence
// layer: load the session record, run one pure transition, write the result
// back, tell watchers.
package service

import (
	"time"

	"steward/internal/governance"
)

// SessionEvent describes one persisted session change.
type SessionEvent struct {
	SessionID string              `json:"session_id"`
	Workflow  governance.Workflow `json:"workflow"`
	State     governance.State    `json:"state"`
	Status    string              `json:"status"`
	At        time.Time           `json:"at"`
}

// Notifier receives session change events. Implementations must not block;
// delivery is best effort.
type Notifier interface {
	SessionChanged(userID string, ev SessionEvent)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) SessionChanged(string, SessionEvent) {}
