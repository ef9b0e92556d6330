package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/OpsForge/internal/adapter/anthropic"
	"github.com/Strob0t/OpsForge/internal/adapter/githubhost"
	ofhttp "github.com/Strob0t/OpsForge/internal/adapter/http"
	"github.com/Strob0t/OpsForge/internal/adapter/httpprobe"
	"github.com/Strob0t/OpsForge/internal/adapter/kubernetes"
	"github.com/Strob0t/OpsForge/internal/adapter/litellm"
	"github.com/Strob0t/OpsForge/internal/adapter/llmrouter"
	"github.com/Strob0t/OpsForge/internal/adapter/memory"
	ofnats "github.com/Strob0t/OpsForge/internal/adapter/nats"
	"github.com/Strob0t/OpsForge/internal/adapter/natskv"
	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/adapter/postgres"
	"github.com/Strob0t/OpsForge/internal/adapter/ristretto"
	"github.com/Strob0t/OpsForge/internal/adapter/tiered"
	"github.com/Strob0t/OpsForge/internal/adapter/ws"
	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/logger"
	"github.com/Strob0t/OpsForge/internal/middleware"
	"github.com/Strob0t/OpsForge/internal/port/lease"
	"github.com/Strob0t/OpsForge/internal/port/llm"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
	"github.com/Strob0t/OpsForge/internal/resilience"
	"github.com/Strob0t/OpsForge/internal/service"
)

const serviceName = "opsforge-core"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"env", cfg.Server.Env,
		"log_level", cfg.Logging.Level,
		"lease_backend", cfg.Lease.Backend,
	)

	ctx := context.Background()

	// --- Observability ---

	shutdownOTEL, err := ofotel.Init(ctx, cfg.OTEL, serviceName)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()
	metrics, err := ofotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	queue, err := ofnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			slog.Error("nats close", "error", err)
		}
	}()
	slog.Info("nats connected")

	l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	statusKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.StatusTTL)
	if err != nil {
		return fmt.Errorf("status cache: %w", err)
	}
	statusCache := tiered.New(l1, natskv.New(statusKV), cfg.Cache.StatusTTL)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}

	tasks := postgres.NewTaskStore(pool)
	events := postgres.NewEventLog(pool)

	var leaser lease.Leaser = memory.NewLeaser()
	if cfg.Lease.Backend == "postgres" {
		leaser = postgres.NewAdvisoryLeaser(pool)
	}

	// --- External systems ---

	orch, err := kubernetes.NewFromConfig(cfg.Kubernetes)
	if err != nil {
		return fmt.Errorf("kubernetes: %w", err)
	}

	newBreaker := func() *resilience.Breaker {
		return resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	}
	tracedClient := &http.Client{Transport: ofotel.Transport(http.DefaultTransport), Timeout: 30 * time.Second}

	host, err := githubhost.New(cfg.GitHub.Token, cfg.GitHub.BaseURL, tracedClient)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	host.SetBreaker(newBreaker())

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.DefaultModel, cfg.LiteLLM.Timeout)
	llmClient.SetBreaker(newBreaker())
	var claude llm.Completer
	if cfg.Anthropic.APIKey != "" {
		c := anthropic.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.MaxTokens)
		c.SetBreaker(newBreaker())
		claude = c
	}
	completer := llmrouter.New(cfg.LiteLLM.DefaultModel, llmClient, claude)

	prober := httpprobe.New(&http.Client{Transport: ofotel.Transport(http.DefaultTransport), Timeout: 5 * time.Second}, cfg.Pipeline.ProbeSamples)

	// --- Services ---

	hub := ws.NewHub()
	notifications := service.NewNotificationService(buildNotifiers(cfg.Notify), cfg.Notify.EnabledEvents)
	slog.Info("notifications configured", "channels", notifications.NotifierCount())

	deployments := service.NewDeploymentService(orch, leaser, lease.ParseMode(cfg.Lease.Mode), resilience.PolicyFrom(cfg.Retry), events)
	deployments.SetHub(hub)
	deployments.SetStatusCache(statusCache, cfg.Cache.StatusTTL)
	deployments.SetMetrics(metrics)

	pipeline := service.NewPipelineService(tasks, deployments, host, completer, prober, cfg.Pipeline, cfg.Kubernetes.DefaultNamespace)
	pipeline.SetQueue(queue)
	pipeline.SetNotifier(notifications)
	pipeline.SetEventLog(events)
	pipeline.SetHub(hub)
	pipeline.SetMetrics(metrics)

	router := service.NewIntentRouter(completer, cfg.LiteLLM.DefaultModel, cfg.Pipeline.ConfidenceThreshold, events)
	router.SetMetrics(metrics)
	requests := service.NewRequestService(router, pipeline)

	authSvc := service.NewAuthService(cfg.Auth)
	if !cfg.Auth.Enabled {
		slog.Warn("api authentication disabled")
	}

	// --- Background loops ---

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go pipeline.RunSweeper(bgCtx, cfg.Pipeline.SweepInterval)
	stopMonitor, err := pipeline.StartMonitorConsumer(bgCtx, queue)
	if err != nil {
		return fmt.Errorf("monitor consumer: %w", err)
	}
	defer stopMonitor()

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	// --- HTTP ---

	handlers := ofhttp.NewHandlers(deployments, pipeline, router, requests, cfg.Server.IsProduction())
	handlers.SetEvents(events)
	handlers.Ready = func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if !queue.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(ofhttp.Logger)
	r.Use(ofhttp.SecurityHeaders)
	r.Use(ofhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(ofotel.HTTPMiddleware(serviceName))
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(authSvc, cfg.Auth.Enabled))

	ofhttp.MountRoutes(r, handlers, ofhttp.RouteOptions{
		GitHubWebhookSecret: cfg.GitHub.WebhookSecret,
		WebSocket:           hub.HandleWS,
		Idempotency:         middleware.Idempotency(natskv.New(idemKV), cfg.Idempotency.TTL),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // synchronous monitor and deploy tasks
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-done:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	stopBackground()
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		slog.Error("pipeline shutdown", "error", err)
	}
	hub.Close()
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

// buildNotifiers instantiates every channel with enough settings to deliver.
func buildNotifiers(cfg config.Notify) []notifier.Notifier {
	settings := map[string]map[string]string{}
	if cfg.SlackWebhookURL != "" {
		settings["slack"] = map[string]string{notifier.SettingWebhookURL: cfg.SlackWebhookURL}
	}
	if cfg.DiscordWebhookURL != "" {
		settings["discord"] = map[string]string{notifier.SettingWebhookURL: cfg.DiscordWebhookURL}
	}
	if cfg.SMTPHost != "" && cfg.EmailTo != "" {
		settings["email"] = map[string]string{
			"host":     cfg.SMTPHost,
			"port":     strconv.Itoa(cfg.SMTPPort),
			"from":     cfg.SMTPFrom,
			"password": cfg.SMTPPassword,
			"to":       cfg.EmailTo,
		}
	}

	built, skipped := notifier.Build(settings)
	for channel, err := range skipped {
		slog.Warn("notifier disabled", "channel", channel, "error", err)
	}
	return built
}
