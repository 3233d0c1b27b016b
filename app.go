package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/builder"
	"github.com/APIExplore/api-explore-backend/internal/config"
	"github.com/APIExplore/api-explore-backend/internal/executor"
	"github.com/APIExplore/api-explore-backend/internal/hub"
	"github.com/APIExplore/api-explore-backend/internal/llm"
	"github.com/APIExplore/api-explore-backend/internal/logger"
	"github.com/APIExplore/api-explore-backend/internal/metrics"
	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/reporter"
	"github.com/APIExplore/api-explore-backend/internal/session"
	"github.com/APIExplore/api-explore-backend/internal/store"
	"github.com/APIExplore/api-explore-backend/internal/testdata"
)

// app holds the wired components shared by all commands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func()
	store    *store.SQLStore
	sessions *session.Registry
	fetcher  *parser.Fetcher
	runner   *executor.Runner
	reporter *reporter.Reporter
	hub      *hub.Hub
	metrics  *metrics.Recorder
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logging.Level, cfg.Logging.Dir)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}

	var summarizer reporter.Summarizer
	if cfg.LLM.Enabled {
		llmConfig := llm.NewDefaultConfig()
		llmConfig.Provider = cfg.LLM.Provider
		llmConfig.APIKey = cfg.LLM.APIKey
		llmConfig.Model = cfg.LLM.Model
		llmConfig.BaseURL = cfg.LLM.BaseURL

		client, err := llm.NewClient(llmConfig, log)
		if err != nil {
			db.Close()
			closeLog()
			return nil, err
		}
		summarizer = llm.NewSummarizer(client, log)
	}

	timeout := time.Duration(cfg.Explore.Timeout) * time.Second
	recorder := metrics.NewRecorder()
	live := hub.New(hub.DefaultConfig(), log)

	a := &app{
		cfg:      cfg,
		logger:   log,
		closeLog: closeLog,
		store:    db,
		sessions: session.NewRegistry(db, time.Duration(cfg.Explore.SessionTTL)*time.Minute, log),
		fetcher:  parser.NewFetcher(&http.Client{Timeout: timeout}, log),
		reporter: reporter.NewReporter(reporter.ReportingConfig{
			Format:    cfg.Reporting.Format,
			OutputDir: cfg.Reporting.OutputDir,
			Detailed:  cfg.Reporting.Detailed,
		}, summarizer, log),
		hub:     live,
		metrics: recorder,
	}
	a.runner = executor.NewRunner(
		builder.NewBuilder(testdata.NewGenerator(nil), log),
		executor.NewClient(executor.Config{
			Timeout:          timeout,
			RateLimit:        cfg.Explore.RateLimit,
			Burst:            cfg.Explore.Burst,
			AuthToken:        cfg.Environment.Auth.Token,
			MaxResponseBytes: cfg.Explore.MaxResponseBytes,
		}, log),
		db, live, recorder, log)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	a.closeLog()
}

// activate loads a schema from a file or, for http(s) sources, from a
// running service, and activates it under name
func (a *app) activate(ctx context.Context, source, name string) (*session.Session, error) {
	var (
		schema *parser.Schema
		err    error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		schema, err = a.fetcher.LoadFromURL(ctx, source)
	} else {
		schema, err = parser.LoadFromFile(source)
	}
	if err != nil {
		return nil, err
	}

	if a.cfg.Environment.BaseURL != "" {
		schema.BaseURL = a.cfg.Environment.BaseURL
	}
	if name == "" {
		name = defaultSchemaName(source, schema)
	}
	return a.sessions.Activate(ctx, name, schema)
}

// schemaID resolves a stored schema by name
func (a *app) schemaID(ctx context.Context, name string) (string, error) {
	rec, err := a.store.SchemaByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("API schema %q: %w", name, err)
	}
	return rec.ID, nil
}

func defaultSchemaName(source string, schema *parser.Schema) string {
	if schema.Doc.Info != nil && schema.Doc.Info.Title != "" {
		return schema.Doc.Info.Title
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
