package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"lifevault/internal/config"
	"lifevault/internal/http"
	"lifevault/internal/indexer"
	"lifevault/internal/llm"
	"lifevault/internal/service"
	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Initialize vault manager
	manager := vault.NewManager(cfg.VaultPath)
	if err := manager.EnsureLayout(); err != nil {
		log.Fatalf("Failed to initialize vault layout: %v", err)
	}
	slog.Info("Vault ready", "path", cfg.VaultPath)

	// Full-text search needs an FTS5-enabled SQLite driver. Degrade to a
	// disabled search endpoint when the virtual table cannot be created.
	ctx := context.Background()
	searchRepo := storage.NewSearchRepo(db)
	if err := searchRepo.EnsureIndex(ctx); err != nil {
		slog.Warn("Full-text search unavailable", "error", err)
		searchRepo = nil
	}

	ix := indexer.New(db, manager, searchRepo)

	// Create repository instances
	runs := storage.NewRunRepo(db)
	entries := storage.NewEntryRepo(db)
	goals := storage.NewGoalRepo(db)
	projects := storage.NewProjectRepo(db)
	tasks := storage.NewTaskRepo(db)
	improvements := storage.NewImprovementRepo(db)
	observations := storage.NewObservationRepo(db)
	chats := storage.NewChatRepo(db)
	conflicts := storage.NewConflictRepo(db)
	reviews := storage.NewReviewRepo(db)
	metrics := storage.NewMetricsRepo(db)
	insights := storage.NewInsightRepo(db)
	ideas := storage.NewIdeaRepo(db)

	// Create LLM client (external service layer)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	// Create service layer
	taskService := service.NewTaskService(tasks, goals, projects)
	deps := &http.Deps{
		DB:      db,
		Manager: manager,
		Indexer: ix,

		Captures:     service.NewCaptureService(manager, runs, ix),
		Entries:      service.NewEntryService(manager, entries, runs, observations, improvements, taskService, llmClient, ix, cfg.Timezone),
		Tasks:        taskService,
		Conflicts:    service.NewConflictService(manager, conflicts, entries, runs, ix),
		Goals:        service.NewGoalService(goals, tasks, metrics, reviews, conflicts, improvements, cfg.Timezone),
		Improvements: service.NewImprovementService(improvements, runs),
		Ideas:        service.NewIdeaService(ideas, entries, runs, taskService, manager, ix),
		Chats:        service.NewChatService(manager, chats, goals, runs, llmClient, taskService, ix),
		Search:       service.NewSearchService(searchRepo),

		Runs:     runs,
		Insights: insights,
	}
	router := http.NewRouter(deps)

	// Rebuild the index in the background after the router is ready
	go func() {
		slog.Info("Starting index rebuild from vault")
		stats, err := ix.Rebuild(context.Background())
		if err != nil {
			slog.Error("Index rebuild completed with errors", "error", err)
			return
		}
		slog.Info("Index rebuild completed",
			"files_scanned", stats.FilesScanned,
			"entries_indexed", stats.EntriesIndexed,
		)
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
