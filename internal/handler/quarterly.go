package handler

import (
	"net/http"

	"steward/internal/entity"
	"steward/internal/repository/session"
	"steward/internal/service"
)

// QuarterlyHandler serves the quarterly review endpoints.
type QuarterlyHandler struct {
	svc *service.QuarterlyService
}

func NewQuarterlyHandler(svc *service.QuarterlyService) *QuarterlyHandler {
	return &QuarterlyHandler{svc: svc}
}

func (h *QuarterlyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/governance/quarterly", h.start)
	mux.HandleFunc("GET /api/governance/quarterly/active", h.resume)
	mux.HandleFunc("GET /api/governance/quarterly/{id}", h.get)
	mux.HandleFunc("DELETE /api/governance/quarterly/{id}", h.abandon)
	mux.HandleFunc("GET /api/governance/quarterly/{id}/question", h.question)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/sensitivity", h.sensitivity)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/prerequisites", h.prerequisites)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/acknowledge", h.acknowledge)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/bet-evaluation", h.evaluateBet)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/answer", h.answer)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/clarify", h.clarify)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/clarify/skip", h.skipClarify)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/health-trend", h.healthTrend)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/triggers", h.reviewTriggers)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/new-bet", h.newBet)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/board/question", h.askBoard)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/board/answer", h.answerBoard)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/board/skip", h.skipBoard)
	mux.HandleFunc("POST /api/governance/quarterly/{id}/finalize", h.finalize)
}

func (h *QuarterlyHandler) start(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: "user id is required"})
		return
	}
	rec, _, err := h.svc.Start(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(rec))
}

func (h *QuarterlyHandler) resume(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: "user id is required"})
		return
	}
	rec, _, found, err := h.svc.Resume(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, session.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *QuarterlyHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *QuarterlyHandler) abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Abandon(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuarterlyHandler) question(w http.ResponseWriter, r *http.Request) {
	question, err := h.svc.Question(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": question})
}

func (h *QuarterlyHandler) sensitivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AbstractionMode bool `json:"abstraction_mode"`
		Remember        bool `json:"remember"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.SetSensitivityGate(r.Context(), r.PathValue("id"), req.AbstractionMode, req.Remember)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) prerequisites(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.CheckPrerequisites(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) acknowledge(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.AcknowledgeRecentReport(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) evaluateBet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome entity.BetStatus `json:"outcome"`
		Note    string           `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.EvaluateBet(r.Context(), r.PathValue("id"), req.Outcome, req.Note)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) answer(w http.ResponseWriter, r *http.Request) {
	answer, ok := answerFrom(w, r)
	if !ok {
		return
	}
	rec, _, err := h.svc.AnswerReflection(r.Context(), r.PathValue("id"), answer)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) clarify(w http.ResponseWriter, r *http.Request) {
	answer, ok := answerFrom(w, r)
	if !ok {
		return
	}
	rec, _, err := h.svc.AnswerClarify(r.Context(), r.PathValue("id"), answer)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) skipClarify(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.SkipClarify(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) healthTrend(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.ComputeHealthTrend(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) reviewTriggers(w http.ResponseWriter, r *http.Request) {
	rec, _, statuses, err := h.svc.ReviewTriggers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  viewOf(rec),
		"triggers": statuses,
	})
}

func (h *QuarterlyHandler) newBet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.CreateNewBet(r.Context(), r.PathValue("id"), req.Description)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) askBoard(w http.ResponseWriter, r *http.Request) {
	rec, _, question, err := h.svc.AskBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  viewOf(rec),
		"question": question,
	})
}

func (h *QuarterlyHandler) answerBoard(w http.ResponseWriter, r *http.Request) {
	answer, ok := answerFrom(w, r)
	if !ok {
		return
	}
	rec, _, err := h.svc.AnswerBoard(r.Context(), r.PathValue("id"), answer)
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) skipBoard(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.SkipBoardClarify(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *QuarterlyHandler) finalize(w http.ResponseWriter, r *http.Request) {
	rec, result, err := h.svc.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     viewOf(rec),
		"report_path": result.Report.Path,
		"markdown":    result.Markdown,
		"new_bet_id":  result.NewBet.ID,
		"summary":     result.Summary,
	})
}

func (h *QuarterlyHandler) respond(w http.ResponseWriter, rec session.Record, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func answerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return "", false
	}
	return req.Answer, true
}
