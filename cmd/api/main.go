package main

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"convdep/adapters/llm"
	"convdep/adapters/llm/fallback"
	"convdep/adapters/postgres"
	"convdep/adapters/rng"
	"convdep/api"
	"convdep/internal"
	"convdep/internal/analyzer"
	"convdep/internal/anchors"
	"convdep/internal/config"
	"convdep/ports"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewDefaultLogger()

	adapter, err := buildAdapter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize model adapter: %v", err)
	}

	storeFactory, closeDB, err := buildStoreFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize anchor storage: %v", err)
	}
	if closeDB != nil {
		defer closeDB()
	}

	engine := analyzer.NewAnalyzer(adapter, rng.NewAdapter(), logger)
	app := api.NewApp(engine, cfg.Analyzer.Options, storeFactory, logger)

	logger.Info("model adapter: %s, anchor capacity: %d", cfg.AI.Adapter, cfg.Anchors.Capacity)
	if err := app.Start(cfg.Server.Port); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func buildAdapter(cfg *config.Config) (ports.ModelAdapter, error) {
	if cfg.AI.Adapter == config.AdapterFallback {
		return fallback.NewAdapter(), nil
	}
	return llm.NewAdapter(llm.Config{
		APIKey:      cfg.AI.OpenAIKey,
		Model:       cfg.AI.Model,
		EmbedModel:  cfg.AI.EmbedModel,
		Timeout:     cfg.AI.Timeout,
		Temperature: cfg.AI.Temperature,
	})
}

// buildStoreFactory picks anchor persistence: PostgreSQL when DATABASE_URL
// is configured, per-conversation process memory otherwise.
func buildStoreFactory(cfg *config.Config) (api.StoreFactory, func() error, error) {
	if cfg.Database.URL == "" {
		capacity := cfg.Anchors.Capacity
		return func(string) (ports.AnchorStore, error) {
			return anchors.NewMemory(capacity)
		}, nil, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, nil, err
	}

	capacity := cfg.Anchors.Capacity
	factory := func(conversationID string) (ports.AnchorStore, error) {
		return postgres.NewAnchorStore(db, conversationID, capacity)
	}
	return factory, db.Close, nil
}
