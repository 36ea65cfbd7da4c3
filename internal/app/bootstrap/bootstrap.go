package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	electionservice "guildhall/contexts/governance/election-service"
	"guildhall/contexts/governance/election-service/adapters/cache"
	"guildhall/contexts/governance/election-service/adapters/membership"
	postgresadapter "guildhall/contexts/governance/election-service/adapters/postgres"
	"guildhall/contexts/governance/election-service/ports"
	"guildhall/internal/platform/config"
	"guildhall/internal/platform/db"
	"guildhall/internal/platform/httpserver"
	"guildhall/internal/platform/messaging"
	"guildhall/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	schedulerActorID = "system:election-scheduler"
	dedupTTL         = 7 * 24 * time.Hour
)

type APIApp struct {
	server   *httpserver.Server
	database *db.Database
	logger   *slog.Logger
}

type WorkerApp struct {
	database     *db.Database
	workers      electionservice.Workers
	cfg          config.Config
	pollInterval time.Duration
	logger       *slog.Logger
}

// Runtime is a connected election module with its backing repository, for
// processes that drive use cases directly.
type Runtime struct {
	Config     config.Config
	Database   *db.Database
	Repository *postgresadapter.Repository
	Module     electionservice.Module
	Logger     *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	rt, err := BuildRuntime(cfg, logger, metrics.PromElectionMetrics())
	if err != nil {
		return nil, err
	}

	server := httpserver.New(rt.Module, logger, httpserver.Options{
		Addr:               normalizeAddr(cfg.HTTPPort),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		EnableSwagger:      cfg.EnableSwagger,
		Metrics:            metrics.PromHTTPMetrics(),
		HealthCheck:        rt.Database.Ping,
	})
	return &APIApp{
		server:   server,
		database: rt.Database,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	rt, err := BuildRuntime(cfg, logger, metrics.PromElectionMetrics())
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(logger)
	workers := rt.Module.NewWorkers(electionservice.WorkerDependencies{
		Outbox:     rt.Repository,
		Publisher:  bus,
		Subscriber: bus,
		Dedup:      rt.Repository,
		Elections:  rt.Repository,
		Clock:      postgresadapter.SystemClock{},
		BatchSize:  cfg.OutboxBatchSize,
		Logger:     logger,
	})
	workers.Scheduler.ActorID = schedulerActorID
	workers.Tally.DedupTTL = dedupTTL

	return &WorkerApp{
		database:     rt.Database,
		workers:      workers,
		cfg:          cfg,
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

// BuildRuntime connects the configured database, migrates it when asked, and
// wires the election module over it.
func BuildRuntime(cfg config.Config, logger *slog.Logger, electionMetrics ports.Metrics) (*Runtime, error) {
	dsn := cfg.PostgresDSN
	if cfg.DBDriver == config.DBDriverSQLite {
		dsn = cfg.SQLitePath
	} else if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	database, err := db.Connect(cfg.DBDriver, dsn)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(database.DB, logger)
	if cfg.AutoMigrate {
		if err := repo.AutoMigrate(context.Background()); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	eligibility, err := buildEligibility(cfg, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	resultsCache, err := cache.NewResultsCache(cfg.ResultsCacheSize)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	module := electionservice.NewModule(electionservice.Dependencies{
		Elections:          repo,
		Ledger:             repo,
		Eligibility:        eligibility,
		Snapshots:          repo,
		Cache:              resultsCache,
		Clock:              postgresadapter.SystemClock{},
		IDGen:              postgresadapter.UUIDGenerator{},
		Metrics:            electionMetrics,
		EligibilityTimeout: cfg.EligibilityTimeout,
		PersistenceTimeout: cfg.PersistenceTimeout,
		Logger:             logger,
	})
	return &Runtime{
		Config:     cfg,
		Database:   database,
		Repository: repo,
		Module:     module,
		Logger:     logger,
	}, nil
}

func buildEligibility(cfg config.Config, logger *slog.Logger) (ports.EligibilityChecker, error) {
	if cfg.MembershipBaseURL != "" {
		return membership.NewClient(membership.Config{
			BaseURL:    cfg.MembershipBaseURL,
			Timeout:    cfg.EligibilityTimeout,
			MaxRetries: cfg.MembershipMaxRetries,
			Logger:     logger,
		}), nil
	}
	if cfg.OpenEligibility {
		logger.Warn("eligibility roll is open to every member",
			"event", "bootstrap_open_eligibility",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return membership.OpenRoll{}, nil
	}
	return nil, errors.New("MEMBERSHIP_BASE_URL is required unless OPEN_ELIGIBILITY is set")
}

func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start(ctx)
}

func (a *APIApp) Close() error {
	if a.database != nil {
		return a.database.Close()
	}
	return nil
}

// Run starts the tally consumer and polls the scheduler and outbox relay
// until ctx is cancelled. A failing loop stops the others.
func (w *WorkerApp) Run(ctx context.Context) error {
	if w.cfg.EnableTallyConsumer {
		if err := w.workers.Tally.Start(ctx); err != nil {
			return err
		}
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"scheduler_enabled", w.cfg.EnableScheduler,
		"tally_consumer_enabled", w.cfg.EnableTallyConsumer,
	)

	group, ctx := errgroup.WithContext(ctx)
	if w.cfg.EnableScheduler {
		group.Go(func() error {
			return w.poll(ctx, func(ctx context.Context) error {
				_, err := w.workers.Scheduler.RunOnce(ctx)
				return err
			})
		})
	}
	group.Go(func() error {
		return w.poll(ctx, func(ctx context.Context) error {
			_, err := w.workers.OutboxRelay.RunOnce(ctx)
			return err
		})
	})
	return group.Wait()
}

func (w *WorkerApp) poll(ctx context.Context, step func(context.Context) error) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.database != nil {
		return w.database.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
