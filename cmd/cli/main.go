// Command cli analyzes a transcript file turn by turn and prints the final
// turn's dependency report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"convdep/adapters/excel"
	"convdep/adapters/llm"
	"convdep/adapters/llm/fallback"
	"convdep/adapters/rng"
	"convdep/domain/conversation"
	"convdep/internal"
	"convdep/internal/analyzer"
	"convdep/internal/anchors"
	"convdep/internal/config"
	"convdep/internal/report"
	"convdep/ports"
)

func main() {
	var (
		file     = flag.String("file", "", "transcript file: JSON array of utterances")
		seed     = flag.Int64("seed", 0, "fix null-sampling randomness (0 = unseeded)")
		exportTo = flag.String("export", "", "also save the final turn as an xlsx workbook")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	history, err := loadTranscript(*file)
	if err != nil {
		log.Fatalf("Failed to read transcript: %v", err)
	}
	if len(history) < 2 {
		log.Fatal("Transcript needs at least two utterances")
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize model adapter: %v", err)
	}

	opts := cfg.Analyzer.Options
	opts.Seed = *seed

	store, err := anchors.NewMemory(cfg.Anchors.Capacity)
	if err != nil {
		log.Fatalf("Failed to create anchor memory: %v", err)
	}

	engine := analyzer.NewAnalyzer(adapter, rng.NewAdapter(), internal.NewDefaultLogger())
	ctx := context.Background()

	// Replay the conversation so anchor memory accumulates across turns;
	// report only the final turn.
	var res *analyzer.Result
	var current conversation.Utterance
	for i := 1; i < len(history); i++ {
		current = history[i]
		res, err = engine.AnalyzeWithAnchors(ctx, history[:i], current, store, opts)
		if err != nil {
			log.Fatalf("Turn %d failed: %v", current.ID, err)
		}
	}

	fmt.Print(report.Markdown(current, res))

	if *exportTo != "" {
		if err := excel.NewExporter().Save(*exportTo, current, res); err != nil {
			log.Fatalf("Failed to export workbook: %v", err)
		}
		fmt.Fprintf(os.Stderr, "workbook written to %s\n", *exportTo)
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

func loadTranscript(path string) ([]conversation.Utterance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var history []conversation.Utterance
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, err
	}
	if err := conversation.ValidateHistory(history); err != nil {
		return nil, err
	}
	return history, nil
}
