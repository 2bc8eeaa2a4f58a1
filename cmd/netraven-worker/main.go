// Command netraven-worker is the engine's entry point: it loads
// configuration, wires every component (storage, driver, credential
// resolver, breaker, redactor, executor, dispatcher, runner,
// scheduler), loads the enabled job set, and serves the Prometheus and
// control-API HTTP endpoints until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netraven/engine/internal/breaker"
	"github.com/netraven/engine/internal/capability"
	"github.com/netraven/engine/internal/config"
	"github.com/netraven/engine/internal/controlapi"
	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/dispatcher"
	"github.com/netraven/engine/internal/driver"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/internal/gitrepo"
	"github.com/netraven/engine/internal/migrate"
	"github.com/netraven/engine/internal/redact"
	"github.com/netraven/engine/internal/runner"
	"github.com/netraven/engine/internal/scheduler"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/internal/telemetry"
	"github.com/netraven/engine/pkg/logger"
	"github.com/netraven/engine/pkg/metrics"
)

const (
	serviceName    = "netraven-worker"
	serviceVersion = "0.1.0"

	defaultControlAddr = ":8090"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		showVersion = flag.Bool("version", false, "show version information")
		skipMigrate = flag.Bool("skip-migrate", false, "skip schema migrations on startup (standard profile only)")
		controlAddr = flag.String("control-addr", defaultControlAddr, "control API / metrics listen address")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: config error: %v\n", serviceName, err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)

	log.Info("starting netraven worker", "service", serviceName, "version", serviceVersion, "profile", cfg.Profile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.DefaultRegistry()

	var pgPool *pgxpool.Pool
	if cfg.IsStandardProfile() {
		pgPool, err = connectPostgres(ctx, cfg.Database.Postgres, log)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if !*skipMigrate {
			if err := migrate.Run(ctx, cfg.Database.Postgres.DSN, log); err != nil {
				log.Error("schema migration failed", "error", err)
				os.Exit(1)
			}
		}
	}

	domainStore, err := store.NewStore(ctx, cfg, pgPool, log)
	if err != nil {
		log.Error("failed to initialize domain store", "error", err)
		os.Exit(1)
	}
	defer domainStore.Close()

	sink, err := telemetry.NewSink(ctx, cfg, pgPool, log)
	if err != nil {
		log.Warn("telemetry sink init failed, degrading to in-memory sink", "error", err)
		sink = telemetry.NewFallbackSink(log)
	}
	defer sink.Close()

	repo, err := gitrepo.Open(cfg.Worker.GitRepoPath)
	if err != nil {
		log.Error("failed to open configuration repository", "error", err, "path", cfg.Worker.GitRepoPath)
		os.Exit(1)
	}

	sshDriver := driver.NewSSHDriver(nil)

	capRegistry, err := capability.NewRegistry(0)
	if err != nil {
		log.Error("failed to build capability registry", "error", err)
		os.Exit(1)
	}

	breakerCfg := breaker.Config{
		MaxFailures: uint32(cfg.Worker.Circuit.FailureThreshold),
		Timeout:     cfg.Worker.Circuit.ResetTimeout,
		HalfOpenMax: uint32(cfg.Worker.Circuit.SuccessThreshold),
	}
	breakerManager := breaker.NewManager(breakerCfg, registry.Breaker())

	redactor := redact.NewRedactor(redact.Config{Keywords: cfg.Worker.Redaction.Keywords})

	resolver := credential.NewResolver(domainStore, log, registry.Credential())

	exec := executor.New(
		sshDriver,
		capRegistry,
		breakerManager,
		repo,
		sink,
		resolver,
		redactor,
		log,
		registry.Executor(),
		time.Duration(cfg.Worker.Timeouts.ConnectSeconds)*time.Second,
		time.Duration(cfg.Worker.Timeouts.CommandSeconds)*time.Second,
	)

	dispatchCfg := dispatcher.Config{
		Workers:    cfg.Worker.ThreadPoolSize,
		MaxRetries: cfg.Worker.Retry.MaxRetries,
		BaseDelay:  time.Duration(cfg.Worker.Retry.BaseSeconds * float64(time.Second)),
		MaxDelay:   time.Duration(cfg.Worker.Retry.CapSeconds * float64(time.Second)),
		Jitter:     0.25,
	}
	disp := dispatcher.New(dispatchCfg, resolver, exec, log, registry.Dispatcher())

	jobRunner := runner.New(domainStore, resolver, disp, sink, log, registry.Runner())

	sched := scheduler.New(jobRunner, log)

	jobs, err := domainStore.ListEnabledJobs(ctx)
	if err != nil {
		log.Error("failed to load enabled jobs", "error", err)
		os.Exit(1)
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			log.Error("failed to register job", "job_id", job.ID, "error", err)
			continue
		}
	}
	log.Info("registered enabled jobs with scheduler", "count", len(jobs))

	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	controlSrv := controlapi.NewServer(sched, domainStore, log)
	mux.Handle("/", controlSrv.Handler())

	httpServer := &http.Server{Addr: *controlAddr, Handler: mux}
	go func() {
		log.Info("control API listening", "addr", *controlAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("control API server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	gracePeriod := time.Duration(cfg.Scheduler.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("control API shutdown error", "error", err)
	}
	if err := sched.Stop(gracePeriod); err != nil {
		log.Error("scheduler shutdown timed out", "error", err)
	}

	log.Info("netraven worker exited")
}

func connectPostgres(ctx context.Context, cfg config.PostgresConfig, log *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("connected to postgres", "max_conns", poolConfig.MaxConns, "min_conns", poolConfig.MinConns)
	return pool, nil
}
