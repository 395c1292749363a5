package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"ReviewPulse/internal/annotate"
	"ReviewPulse/internal/config"
	"ReviewPulse/internal/infrastructure/cache"
	"ReviewPulse/internal/infrastructure/ml"
	"ReviewPulse/internal/infrastructure/playstore"
	"ReviewPulse/internal/infrastructure/scheduler"
	"ReviewPulse/internal/infrastructure/source"
	"ReviewPulse/internal/infrastructure/storage"
	"ReviewPulse/internal/logging"
	"ReviewPulse/internal/normalize"
	"ReviewPulse/internal/ports"
	"ReviewPulse/internal/scanner"
	"ReviewPulse/internal/state"
	"ReviewPulse/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	db       *sql.DB
	cache    ports.SentimentCache
}

// New builds a runnable application instance. The sentiment scorer is
// bound here, once per process: the remote model is probed and the
// lexicon takes over when it is unavailable.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repository := storage.NewPostgresRepository(db, baseLogger.With("component", "storage"))
	if err := repository.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	verifier := storage.NewVerifier(db, baseLogger.With("component", "verifier"))

	var sentimentCache ports.SentimentCache
	if cfg.Sentiment.CachePath != "" {
		sentimentCache, err = cache.Open(cfg.Sentiment.CachePath)
		if err != nil {
			// The cache is advisory; a full recomputation run is
			// acceptable, losing the batch is not.
			baseLogger.Warn("sentiment cache unavailable, recomputing all scores", "error", err)
			sentimentCache = nil
		}
	}

	var checkpoints *state.Store
	if cfg.Data.Dir != "" {
		checkpoints = state.NewStore(filepath.Join(cfg.Data.Dir, "checkpoint.json"))
	}

	registry := scanner.NewRegistry()
	playScanner := playstore.NewScanner(cfg.Scrape.BaseURL, nil, cfg.Scrape.PageSize, cfg.Scrape.MaxRetries)
	registry.Register(playScanner)

	reviewSource := source.NewStrategySource(
		registry,
		playScanner.Name(),
		cfg.Banks,
		cfg.Scrape,
		checkpoints,
		baseLogger.With("component", "source"),
	)

	lexicon := annotate.NewLexiconScorer()
	scorer := bindScorer(ctx, cfg.Sentiment, lexicon, baseLogger)

	annotator := annotate.NewAnnotator(
		scorer,
		lexicon,
		sentimentCache,
		annotate.NewTopicModeler(cfg.Topics),
		baseLogger.With("component", "annotator"),
	)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:      reviewSource,
		Normalizer:  normalize.New(cfg.Quality, baseLogger.With("component", "normalizer")),
		Annotator:   annotator,
		Repository:  repository,
		Checker:     verifier,
		Checkpoints: checkpoints,
		DataDir:     cfg.Data.Dir,
		Logger:      baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		pipeline: pipeline,
		db:       db,
		cache:    sentimentCache,
	}, nil
}

// bindScorer probes the remote model once and selects the scorer for
// the whole run; per-record fallback branching stays out of the hot path.
func bindScorer(ctx context.Context, cfg config.SentimentConfig, lexicon ports.SentimentScorer, log *slog.Logger) ports.SentimentScorer {
	if cfg.InferenceURL == "" {
		return lexicon
	}

	client := ml.NewClient(cfg.InferenceURL, cfg.APIKey)
	if err := client.Probe(ctx); err != nil {
		log.Warn("degrading to lexicon scorer", "error", err)
		return lexicon
	}

	log.Info("remote sentiment model bound", "endpoint", cfg.InferenceURL)
	return client
}

// Run executes a single batch, or keeps batching on the configured
// interval when the scheduler is enabled.
func (a *Application) Run(ctx context.Context) error {
	if !a.cfg.Scheduler.Enabled {
		now := time.Now().In(a.cfg.Scheduler.Location())
		return a.pipeline.ProcessBatch(ctx, now)
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.IntervalDuration())
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	return sched.Stop(context.Background())
}

// Close releases the database and cache handles.
func (a *Application) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close sentiment cache", "error", err)
		}
	}
	return a.db.Close()
}
