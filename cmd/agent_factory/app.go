package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/agent-factory/internal/config"
	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/fetch"
	"github.com/jonathan/agent-factory/internal/llm"
	"github.com/jonathan/agent-factory/internal/logging"
	"github.com/jonathan/agent-factory/internal/pipeline"
	"github.com/jonathan/agent-factory/internal/prompts"
	"github.com/jonathan/agent-factory/internal/runner"
	"github.com/jonathan/agent-factory/internal/schemas"
)

// loadConfig resolves configuration in order: defaults, config file,
// environment, then flags the user actually set.
func loadConfig(cmd *cobra.Command, g *globalFlags, getenv func(string) string) (*config.Config, error) {
	var cfg config.Config
	if g.configPath != "" {
		loaded, err := config.LoadConfig(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg = cfg.MergeWithDefaults(config.Default())
	cfg.ApplyEnv(getenv)

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabaseURL = g.dbURL
	}
	if flags.Changed("provider") {
		cfg.LLM.Provider = g.provider
		cfg.LLM.APIKey = ""
		cfg.ApplyEnv(getenv)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("verbose") {
		cfg.LogDevelopment = g.verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// app holds the long-lived dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *db.DB
	backend llm.Backend
	orch    *pipeline.Orchestrator
}

// openStore connects to the database only, for commands that never call a
// model.
func openStore(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*app, error) {
	cfg, err := loadConfig(cmd, g, os.Getenv)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	store, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

// openApp wires the store, the model backend and the orchestrator.
func openApp(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*app, error) {
	a, err := openStore(ctx, cmd, g)
	if err != nil {
		return nil, err
	}

	settings := a.cfg.LLMSettings()
	backend, err := llm.NewBackend(ctx, settings)
	if err != nil {
		// The run still completes with stub output.
		a.logger.Warn("model backend unavailable", zap.String("provider", string(settings.Provider)), zap.Error(err))
		backend = nil
	}
	a.backend = backend

	var render fetch.Renderer
	if a.cfg.Research.UseBrowser {
		render = fetch.ChromeRenderer(a.cfg.Research.FetchTimeout.Duration, a.logger)
	}
	fetchOpts := fetch.DefaultOptions()
	if a.cfg.Research.FetchTimeout.Duration > 0 {
		fetchOpts.Timeout = a.cfg.Research.FetchTimeout.Duration
	}

	deps := runner.Deps{
		Invoker:   llm.NewInvoker(backend, a.store, settings, a.logger),
		Prompts:   prompts.NewCache(nil),
		Validator: schemas.NewValidator(),
		Logger:    a.logger,
	}
	a.orch = pipeline.New(a.store, pipeline.Options{
		Deps:             deps,
		Fetcher:          fetch.NewJobPageFetcher(fetchOpts, render, a.logger),
		AgentConcurrency: a.cfg.Pipeline.AgentConcurrency,
		Logger:           a.logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.backend != nil {
		_ = a.backend.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logger.Sync()
}
