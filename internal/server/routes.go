package server

import (
	"net/http"

	"steward/internal/handler"
	"steward/internal/middleware"
)

func NewMux(
	setupHandler *handler.SetupHandler,
	quarterlyHandler *handler.QuarterlyHandler,
	hub *handler.SessionHub,
) http.Handler {
	mux := http.NewServeMux()

	setupHandler.Register(mux)
	quarterlyHandler.Register(mux)

	mux.HandleFunc("/ws/session", hub.HandleSessionWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return middleware.CORS(mux)
}
