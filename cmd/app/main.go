package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/config"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/adapter"
	"event-companion-sync/internal/domain/ports/repository"
	"event-companion-sync/internal/infra/adapters/source"
	"event-companion-sync/internal/infra/db/memory"
	pg "event-companion-sync/internal/infra/db/postgres"
	httpapi "event-companion-sync/internal/infra/http"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/infra/metrics"
	red "event-companion-sync/internal/infra/redis"
	"event-companion-sync/internal/infra/sched"
	"event-companion-sync/internal/infra/scheduler"
	"event-companion-sync/internal/infra/worker"
	"event-companion-sync/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to YAML config file (defaults + SYNC_* env when empty)")
	devMode := flag.Bool("dev", false, "console logs and debug level")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting sync service")

	// ---- Storage ----
	var (
		jobs repository.SyncJobRepository
		logs repository.SyncLogRepository
		tm   repository.TransactionManager
		pool *pgxpool.Pool
	)
	if cfg.Database.URL != "" {
		pool, err = pg.NewPgxPool(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres schema")
		}
		ptm := pg.NewTxManager(pool)
		tm = ptm
		jobs = pg.NewSyncJobRepo(pool, ptm)
		logs = pg.NewSyncLogRepo(pool, ptm)
		logger.Info().Int32("max_conns", cfg.Database.MaxConns).Msg("using postgres store")
	} else {
		jobs, logs, tm = memory.NewJobStore(), memory.NewLogStore(), memory.TxManager{}
		logger.Warn().Msg("database.url not set; jobs are kept in memory")
	}

	// ---- Redis (optional) ----
	var (
		redisClient *red.Client
		syncOpts    []usecase.SyncOption
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer func() { _ = redisClient.Close() }()
		syncOpts = append(syncOpts, usecase.WithLocker(red.NewLocker(redisClient), cfg.Redis.LockTTL))
		jobs = pg.NewSyncJobRepoCacheDecorator(jobs, redisClient, cfg.Redis.TTL, logger)
		logger.Info().Dur("lock_ttl", cfg.Redis.LockTTL).Dur("cache_ttl", cfg.Redis.TTL).Msg("redis lock and job cache enabled")
	}

	// ---- Use case ----
	syncUC := usecase.NewSyncUseCase(jobs, logs, tm, logger, syncOpts...)

	// ---- Content source + runner ----
	src, err := newContentSource(cfg.Source, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("content source")
	}
	workers := worker.NewPool(cfg.Sync.Workers, logger)
	workers.Start(ctx)
	var runnerOpts []worker.RunnerOption
	if cfg.Sync.AutoRequeueAfter > 0 {
		runnerOpts = append(runnerOpts, worker.WithAutoRequeue(cfg.Sync.AutoRequeueAfter))
	}
	runner := worker.NewSyncRunner(syncUC, src, workers, cfg.Sync.BatchSize, cfg.Sync.DefaultMaxRetries, logger, runnerOpts...)

	// ---- Cron schedules ----
	cronSched := scheduler.NewScheduler(runner, syncUC, logger)
	for name, spec := range cfg.Sync.Schedules {
		ot, err := model.ParseObjectType(name)
		if err != nil {
			logger.Fatal().Err(err).Str("object_type", name).Msg("sync.schedules")
		}
		if err := cronSched.Add(ot, spec); err != nil {
			logger.Fatal().Err(err).Msg("sync.schedules")
		}
	}
	cronSched.Start(ctx)

	// ---- Monitor poller ----
	poller := sched.NewSyncPoller(cfg.Sync.PollInterval, cfg.Sync.OverdueAfter, syncUC, logger)
	if pool != nil {
		poller.OnTick(func(context.Context) {
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		})
	}
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("sync poller stopped")
		}
	}()

	// ---- HTTP ----
	server := httpapi.NewServer(cfg, syncUC, logger).WithRunner(runner, cronSched)
	if pool != nil {
		server.WithHealthCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	}
	if redisClient != nil {
		server.WithLimiter(red.NewRateLimiter(redisClient))
		server.WithHealthCheck("redis", redisClient.Ping)
	}
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	cronSched.Stop()
	cancel()
	workers.Stop()
	logger.Info().Msg("bye")
}

func loadConfig(path string, dev bool) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return nil, err
		}
		cfg.Runtime.Dev = dev
		return cfg, nil
	}
	return config.LoadConfig(path, dev)
}

// demoCounts seeds the static source when source.counts is empty.
var demoCounts = map[model.ObjectType]int{
	model.ObjectTypeAgenda:     120,
	model.ObjectTypeSpeakers:   45,
	model.ObjectTypeExhibitors: 60,
	model.ObjectTypeUsers:      800,
	model.ObjectTypeContent:    30,
}

func newContentSource(cfg config.SourceConfig, logger *zerolog.Logger) (adapter.ContentSource, error) {
	switch cfg.Kind {
	case "wordpress":
		routes := make(map[model.ObjectType]string, len(cfg.Routes))
		for name, route := range cfg.Routes {
			ot, err := model.ParseObjectType(name)
			if err != nil {
				return nil, fmt.Errorf("source.routes: %w", err)
			}
			routes[ot] = route
		}
		logger.Info().Str("base_url", cfg.BaseURL).Msg("pulling from wordpress")
		return source.NewWordPressSource(cfg.BaseURL, cfg.User, cfg.AppPassword, cfg.Timeout, routes)
	default:
		counts := demoCounts
		if len(cfg.Counts) > 0 {
			counts = make(map[model.ObjectType]int, len(cfg.Counts))
			for name, n := range cfg.Counts {
				ot, err := model.ParseObjectType(name)
				if err != nil {
					return nil, fmt.Errorf("source.counts: %w", err)
				}
				counts[ot] = n
			}
		}
		logger.Info().Msg("pulling from the static source")
		return source.NewStaticSource(counts), nil
	}
}
