// Package handler exposes the governance services over JSON HTTP plus one
// websocket for session watching.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/repository/document"
	"steward/internal/repository/session"
	"steward/internal/service"
)

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

// writeError maps the engine error taxonomy onto HTTP statuses. Retryable
// collaborator failures come back as 502 so clients re-send the same
// transition.
func writeError(w http.ResponseWriter, err error) {
	var validation *governance.ValidationError
	var prereq *governance.PrerequisiteError
	var transition *governance.InvalidTransitionError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: validation.Error()})
	case errors.As(err, &prereq):
		writeJSON(w, http.StatusPreconditionFailed, errorBody{
			Code:    "missing_prerequisites",
			Message: prereq.Error(),
			Missing: prereq.Missing,
		})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorBody{Code: "invalid_transition", Message: transition.Error()})
	case errors.Is(err, governance.ErrSkipQuotaExceeded):
		writeJSON(w, http.StatusConflict, errorBody{Code: "skip_quota_exceeded", Message: err.Error()})
	case errors.Is(err, session.ErrSessionInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Code: "session_in_progress", Message: err.Error()})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, document.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
	case errors.Is(err, service.ErrSessionClosed):
		writeJSON(w, http.StatusGone, errorBody{Code: "session_closed", Message: err.Error()})
	case governance.IsRetryable(err):
		writeJSON(w, http.StatusBadGateway, errorBody{Code: "collaborator_unavailable", Message: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// userIDFrom resolves the acting user from header or query.
func userIDFrom(r *http.Request) (entity.UserID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	id := entity.NormalizeUserID(raw)
	return id, !id.IsZero()
}

// sessionView is the wire shape of one session: the record columns plus the
// full decoded document.
type sessionView struct {
	ID                 string              `json:"id"`
	Workflow           governance.Workflow `json:"workflow"`
	State              governance.State    `json:"state"`
	AbstractionMode    bool                `json:"abstraction_mode"`
	VaguenessSkipCount int                 `json:"vagueness_skip_count"`
	Status             session.Status      `json:"status"`
	Summary            string              `json:"summary,omitempty"`
	BetID              string              `json:"bet_id,omitempty"`
	Document           json.RawMessage     `json:"document"`
}

func viewOf(rec session.Record) sessionView {
	return sessionView{
		ID:                 rec.ID,
		Workflow:           rec.Workflow,
		State:              rec.CurrentState,
		AbstractionMode:    rec.AbstractionMode,
		VaguenessSkipCount: rec.VaguenessSkipCount,
		Status:             rec.Status,
		Summary:            rec.Summary,
		BetID:              rec.BetID,
		Document:           rec.Document,
	}
}
