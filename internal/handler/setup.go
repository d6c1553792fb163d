package handler

import (
	"net/http"

	"steward/internal/governance/setup"
	"steward/internal/repository/session"
	"steward/internal/service"
)

// SetupHandler serves the setup interview endpoints.
type SetupHandler struct {
	svc *service.SetupService
}

func NewSetupHandler(svc *service.SetupService) *SetupHandler {
	return &SetupHandler{svc: svc}
}

func (h *SetupHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/governance/setup", h.start)
	mux.HandleFunc("GET /api/governance/setup/active", h.resume)
	mux.HandleFunc("GET /api/governance/setup/{id}", h.get)
	mux.HandleFunc("DELETE /api/governance/setup/{id}", h.abandon)
	mux.HandleFunc("POST /api/governance/setup/{id}/sensitivity", h.sensitivity)
	mux.HandleFunc("PUT /api/governance/setup/{id}/problem", h.saveProblem)
	mux.HandleFunc("POST /api/governance/setup/{id}/advance", h.advance)
	mux.HandleFunc("POST /api/governance/setup/{id}/problems", h.addProblem)
	mux.HandleFunc("POST /api/governance/setup/{id}/to-allocation", h.toAllocation)
	mux.HandleFunc("PUT /api/governance/setup/{id}/allocations", h.updateAllocations)
	mux.HandleFunc("GET /api/governance/setup/{id}/allocations", h.allocationStatus)
	mux.HandleFunc("POST /api/governance/setup/{id}/from-allocation", h.fromAllocation)
	mux.HandleFunc("POST /api/governance/setup/{id}/health", h.calculateHealth)
	mux.HandleFunc("POST /api/governance/setup/{id}/core-roles", h.coreRoles)
	mux.HandleFunc("POST /api/governance/setup/{id}/growth-roles", h.growthRoles)
	mux.HandleFunc("POST /api/governance/setup/{id}/personas", h.personas)
	mux.HandleFunc("POST /api/governance/setup/{id}/triggers", h.defineTriggers)
	mux.HandleFunc("POST /api/governance/setup/{id}/publish", h.publish)
}

func (h *SetupHandler) start(w http.ResponseWriter, r *http.Request) {
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

func (h *SetupHandler) resume(w http.ResponseWriter, r *http.Request) {
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

func (h *SetupHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *SetupHandler) abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Abandon(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SetupHandler) sensitivity(w http.ResponseWriter, r *http.Request) {
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

func (h *SetupHandler) saveProblem(w http.ResponseWriter, r *http.Request) {
	var req setup.DraftProblem
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.SaveProblem(r.Context(), r.PathValue("id"), req)
	h.respond(w, rec, err)
}

func (h *SetupHandler) advance(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.ValidateAndAdvance(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) addProblem(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.AddAnotherProblem(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) toAllocation(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.ProceedToTimeAllocation(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) updateAllocations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Allocations []int `json:"allocations"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.UpdateAllocations(r.Context(), r.PathValue("id"), req.Allocations)
	h.respond(w, rec, err)
}

func (h *SetupHandler) allocationStatus(w http.ResponseWriter, r *http.Request) {
	status, sum, err := h.svc.AllocationStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "sum": sum})
}

func (h *SetupHandler) fromAllocation(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.ProceedFromTimeAllocation(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) calculateHealth(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.CalculateHealth(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) coreRoles(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.CreateCoreRoles(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) growthRoles(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.CreateGrowthRoles(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) personas(w http.ResponseWriter, r *http.Request) {
	rec, _, err := h.svc.CreatePersonas(r.Context(), r.PathValue("id"))
	h.respond(w, rec, err)
}

func (h *SetupHandler) defineTriggers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Triggers []setup.DraftTrigger `json:"triggers"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()})
		return
	}
	rec, _, err := h.svc.DefineTriggers(r.Context(), r.PathValue("id"), req.Triggers)
	h.respond(w, rec, err)
}

func (h *SetupHandler) publish(w http.ResponseWriter, r *http.Request) {
	rec, result, err := h.svc.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": viewOf(rec),
		"version": result.Version.Version,
		"summary": result.Summary,
	})
}

func (h *SetupHandler) respond(w http.ResponseWriter, rec session.Record, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}
