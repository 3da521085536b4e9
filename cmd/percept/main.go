package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	pchttp "github.com/percept-io/percept/internal/adapter/http"
	"github.com/percept-io/percept/internal/adapter/httprpc"
	"github.com/percept-io/percept/internal/adapter/llm"
	pcnats "github.com/percept-io/percept/internal/adapter/nats"
	"github.com/percept-io/percept/internal/adapter/natsobj"
	"github.com/percept-io/percept/internal/adapter/natsreg"
	"github.com/percept-io/percept/internal/adapter/natsrpc"
	"github.com/percept-io/percept/internal/adapter/otel"
	"github.com/percept-io/percept/internal/adapter/postgres"
	"github.com/percept-io/percept/internal/adapter/ristretto"
	"github.com/percept-io/percept/internal/adapter/staticreg"
	"github.com/percept-io/percept/internal/adapter/ws"
	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/logger"
	"github.com/percept-io/percept/internal/port/dispatch"
	"github.com/percept-io/percept/internal/port/registry"
	"github.com/percept-io/percept/internal/resilience"
	"github.com/percept-io/percept/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"registry_mode", cfg.Registry.Mode,
		"transport", cfg.Registry.Transport,
		"max_replans", cfg.Orchestrator.MaxReplans,
	)

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		log.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint)
	}
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := pcnats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer queue.Close()
	log.Info("nats connected", "url", cfg.NATS.URL)

	objBucket, err := natsobj.Bucket(ctx, queue.JS, cfg.NATS.ObjectBucket)
	if err != nil {
		return fmt.Errorf("object bucket: %w", err)
	}
	blobs := natsobj.New(cfg.NATS.ObjectBucket, objBucket)

	var reg registry.Registry
	switch cfg.Registry.Mode {
	case "dynamic":
		kv, err := natsreg.Bucket(ctx, queue.JS, cfg.NATS.WorkerBucket, cfg.NATS.WorkerTTL)
		if err != nil {
			return fmt.Errorf("worker bucket: %w", err)
		}
		reg = natsreg.New(kv, cfg.NATS.WorkerTTL, log)
	default:
		reg, err = staticreg.New(cfg.Registry.Workers)
		if err != nil {
			return fmt.Errorf("static registry: %w", err)
		}
	}

	var disp dispatch.Dispatcher
	if cfg.Registry.Transport == "nats" {
		disp = natsrpc.New(queue.NC)
	} else {
		disp = httprpc.New(httprpc.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Cooldown:    cfg.Breaker.Timeout,
		})
	}

	snapshots, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer snapshots.Close()

	judgeBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	judgeClient := llm.New(cfg.Judge.URL, cfg.Judge.APIKey, cfg.Judge.Model, cfg.Judge.Timeout, judgeBreaker)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, cfg.Auth)

	orch := service.NewOrchestrator(service.OrchestratorDeps{
		Store:       store,
		Cache:       snapshots,
		Registry:    reg,
		Intents:     service.NewIntentService(judgeClient, cfg.Orchestrator.JudgeTimeout, log),
		Router:      service.NewRouter(cfg.Orchestrator.RoutingThreshold, cfg.Orchestrator.EnsembleMargin),
		Coordinator: service.NewCoordinator(disp, cfg.Orchestrator.WorkerTimeout, log),
		Verifier:    service.NewVerifier(),
		Reflector:   service.NewReflector(judgeClient, cfg.Orchestrator.JudgeTimeout, cfg.Orchestrator.MaxReplans, log),
		Hub:         hub,
		Metrics:     metrics,
		Logger:      log,
	}, cfg.Orchestrator, cfg.Cache.SnapshotTTL)

	// --- HTTP ---

	handlers := &pchttp.Handlers{
		Orchestrator: orch,
		Registry:     reg,
		Blobs:        blobs,
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(pchttp.RequestID)
	r.Use(pchttp.Logger)
	r.Use(pchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pchttp.SecurityHeaders)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	pchttp.MountRoutes(r, handlers, hub, authSvc, cfg.Auth.Enabled)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
