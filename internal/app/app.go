package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"steward/internal/collab"
	"steward/internal/config"
	"steward/internal/governance/quarterly"
	"steward/internal/governance/setup"
	"steward/internal/handler"
	"steward/internal/server"
	"steward/internal/service"
)

type App struct {
	server *server.Server
	client collab.Client
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}

	client, err := newCollabClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	suite := collab.NewSuite(client)

	hub := handler.NewSessionHub()
	setupSvc := service.NewSetupService(setup.NewEngine(suite), stores.sessions, stores.portfolios, stores.documents, hub)
	quarterlySvc := service.NewQuarterlyService(quarterly.NewEngine(suite, suite), stores.sessions, stores.portfolios, stores.documents, hub)

	mux := server.NewMux(
		handler.NewSetupHandler(setupSvc),
		handler.NewQuarterlyHandler(quarterlySvc),
		hub,
	)
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, client: client}, nil
}

func newCollabClient(ctx context.Context, cfg *config.Config) (collab.Client, error) {
	if strings.TrimSpace(os.Getenv("GEMINI_API_KEY")) == "" {
		log.Printf("collab client: fake (GEMINI_API_KEY not set)")
		return collab.NewFakeClient(), nil
	}
	client, err := collab.NewGeminiClient(ctx, cfg.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	log.Printf("collab client: %s", client.Name())
	return client, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.client.Close(); err != nil {
		log.Printf("close collab client: %v", err)
	}
	return a.server.Shutdown(ctx)
}
