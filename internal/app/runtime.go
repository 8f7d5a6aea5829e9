// Package app wires the batch scheduler and its collaborators from
// configuration. Both the API server and the batch CLI build on it.
package app

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"veobatch/internal/adapter/repo"
	"veobatch/internal/domain"
	"veobatch/internal/i18n"
	"veobatch/internal/infra"
	"veobatch/internal/infra/credentials"
	"veobatch/internal/metrics"
	"veobatch/internal/providers/genai"
	"veobatch/internal/providers/video"
	"veobatch/internal/scheduler"
	"veobatch/internal/storage"
)

// Runtime holds the long-lived components of a process.
type Runtime struct {
	Config    *infra.Config
	Logger    infra.Logger
	Store     *storage.FileStore
	Client    *genai.Client
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry
	// Journal is nil when no database is configured.
	Journal domain.JobJournal

	pool *pgxpool.Pool
}

// New builds a Runtime. A database is optional: without DATABASE_URL the
// journal and stored credentials are disabled. ctx bounds journal writes.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}

	var creds *credentials.Store
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		journal := repo.NewJobJournal(runner)
		if err := journal.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		rt.Journal = journal
		creds = credentials.NewStore(runner)
	} else {
		logger.Info().Msg("app: DATABASE_URL not set, job journal disabled")
	}

	apiKey, err := credentials.ResolveGeminiAPIKey(ctx, creds, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("app: failed to load gemini api key from store")
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	rt.Store, err = storage.NewFileStore(storagePath)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Client, err = genai.NewClient(genai.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.GeminiBaseURL,
		Model:          cfg.VideoModel,
		HTTPClient:     &http.Client{Timeout: 2 * time.Minute},
		Logger:         &logger,
		SyntheticPolls: cfg.SyntheticPolls,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	if rt.Client.Synthetic() {
		logger.Warn().Str("model", rt.Client.Model()).Msg("app: gemini api key missing, using synthetic video generation")
	}

	svc := video.NewService(rt.Client, rt.Store, cfg.StorageBaseURL, &logger)
	rt.Scheduler, err = scheduler.New(svc, scheduler.Options{
		MaxConcurrent:   cfg.BatchMaxConcurrent,
		RateLimitCount:  cfg.BatchRateLimitCount,
		RateLimitWindow: cfg.BatchRateLimitWindow,
		MaxJobs:         cfg.BatchMaxJobs,
		TickInterval:    cfg.BatchTickInterval,
		PollInterval:    cfg.BatchPollInterval,
		MaxPollDuration: cfg.BatchMaxPollDuration,
		Logger:          &logger,
		Messages:        i18n.New(cfg.Locale),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	collector, err := metrics.NewCollector(rt.Registry)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Scheduler.Subscribe(collector.Observe)
	if rt.Journal != nil {
		rt.Scheduler.Subscribe(scheduler.JournalListener(context.WithoutCancel(ctx), rt.Journal, logger))
	}
	return rt, nil
}

// DefaultModel is the model applied to jobs that do not name one.
func (rt *Runtime) DefaultModel() string {
	return rt.Client.Model()
}

// Close stops the scheduler and releases the database pool.
func (rt *Runtime) Close() {
	if rt.Scheduler != nil {
		rt.Scheduler.Stop()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
