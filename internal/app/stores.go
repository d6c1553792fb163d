package app

import (
	"fmt"
	"log"
	"strings"

	"steward/internal/config"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
	"steward/internal/repository/session"
)

const sessionCacheSize = 512

type appStores struct {
	sessions   session.Store
	portfolios portfolio.Store
	documents  document.Store
}

func initStores(cfg *config.Config) (*appStores, error) {
	docs, err := initDocumentStore(cfg)
	if err != nil {
		return nil, err
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		return initPostgresStores(dsn, docs)
	}
	return initInMemoryStores(docs)
}

func initDocumentStore(cfg *config.Config) (document.Store, error) {
	if !cfg.Report.Enabled {
		log.Printf("document store: in-memory")
		return document.NewMemoryStore(), nil
	}
	s3Store, err := document.NewS3Store(document.S3Config{
		Endpoint:  cfg.Report.Endpoint,
		Region:    cfg.Report.Region,
		AccessKey: cfg.Report.AccessKey,
		SecretKey: cfg.Report.SecretKey,
		Bucket:    cfg.Report.Bucket,
		UseSSL:    cfg.Report.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document s3 store: %w", err)
	}
	log.Printf("document store: s3 bucket=%s endpoint=%s", cfg.Report.Bucket, cfg.Report.Endpoint)
	return document.NewCachedStore(s3Store, document.DefaultCacheConfig()), nil
}

func initPostgresStores(dsn string, docs document.Store) (*appStores, error) {
	portfolios, err := portfolio.NewPostgresStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio store: %w", err)
	}
	sessions, err := session.NewPostgresStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	cached, err := session.NewCachedStore(sessions, sessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session cache: %w", err)
	}
	log.Printf("persistence: postgres")
	return &appStores{
		sessions:   cached,
		portfolios: portfolios,
		documents:  docs,
	}, nil
}

func initInMemoryStores(docs document.Store) (*appStores, error) {
	log.Printf("persistence: in-memory")
	return &appStores{
		sessions:   session.NewMemoryStore(),
		portfolios: portfolio.NewMemoryStore(),
		documents:  docs,
	}, nil
}
