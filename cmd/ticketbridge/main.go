// Command ticketbridge runs the bidirectional ticket sync engine between a
// local forge tracker and a remote Taiga-style tracker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/forgesync/ticketbridge/internal/adapter/forge"
	tbhttp "github.com/forgesync/ticketbridge/internal/adapter/http"
	tbnats "github.com/forgesync/ticketbridge/internal/adapter/nats"
	obs "github.com/forgesync/ticketbridge/internal/adapter/otel"
	"github.com/forgesync/ticketbridge/internal/adapter/postgres"
	"github.com/forgesync/ticketbridge/internal/adapter/ristretto"
	"github.com/forgesync/ticketbridge/internal/adapter/taiga"
	"github.com/forgesync/ticketbridge/internal/adapter/ws"
	"github.com/forgesync/ticketbridge/internal/config"
	"github.com/forgesync/ticketbridge/internal/logger"
	"github.com/forgesync/ticketbridge/internal/resilience"
	"github.com/forgesync/ticketbridge/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, logCloser := logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Service, cfg.Logging.Async)
	defer logCloser.Close()
	slog.SetDefault(log)

	if err := run(cfg); err != nil {
		log.Error("fatal", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"broker", cfg.BrokerURL(),
		"settle_delay", cfg.Sync.SettleDelay,
	)

	// --- Telemetry ---
	var metrics *obs.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := obs.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("otel shutdown", "error", err)
			}
		}()

		metrics, err = obs.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := tbnats.Connect(ctx, cfg.BrokerURL(), cfg.NATS.Queue)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	statusCache, err := ristretto.New(cfg.Cache.StatusMaxBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer statusCache.Close()

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	factory := taiga.Factory(taiga.WithBreaker(breaker))
	forgeClient := forge.NewClient(cfg.Forge.BaseURL, cfg.Forge.Token,
		forge.WithBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)))

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	resolver := service.NewResolver(store)
	dispatcher := service.NewDispatcher(queue, metrics)

	outbound := service.NewOutbound(store, resolver, factory, statusCache, cfg.Cache.StatusTTL, hub, metrics)
	inbound := service.NewInbound(store, resolver, forgeClient, hub, metrics, cfg.Sync.Agent)
	if err := outbound.Register(dispatcher); err != nil {
		return fmt.Errorf("register outbound tasks: %w", err)
	}
	if err := inbound.Register(dispatcher); err != nil {
		return fmt.Errorf("register inbound tasks: %w", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer dispatcher.Stop()

	if err := outbound.BindSignals(ctx, queue, dispatcher); err != nil {
		return fmt.Errorf("bind signals: %w", err)
	}
	slog.Info("sync pipelines started", "queue", cfg.NATS.Queue)

	if cfg.Sync.ReconcileInterval > 0 {
		reconciler := service.NewReconciler(store, factory, metrics, cfg.Sync.ReconcileWorkers)
		go reconciler.Run(ctx, cfg.Sync.ReconcileInterval)
	}

	// --- HTTP ---
	links := service.NewLinkService(store, factory, webhookCallbackURL(cfg.Sync.PublicURL), cfg.Sync.WebhookKey)
	handlers := tbhttp.NewHandlers(
		service.NewWebhookDispatcher(dispatcher, cfg.Sync.SettleDelay),
		links,
		hub,
		queue,
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(tbhttp.Logger)
	if cfg.Server.CORSOrigin != "" {
		r.Use(tbhttp.CORS(cfg.Server.CORSOrigin))
	}
	r.Use(obs.HTTPMiddleware(cfg.Logging.Service))
	tbhttp.MountRoutes(r, handlers, cfg.Sync.WebhookKey)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// webhookCallbackURL builds the webhook endpoint URL registered on remote
// projects. Empty when no public URL is configured.
func webhookCallbackURL(publicURL string) string {
	if publicURL == "" {
		return ""
	}
	return strings.TrimRight(publicURL, "/") + "/webhook"
}
