package main

import (
	"claims_settlement/internal/api"
	"claims_settlement/internal/ledger"
	"claims_settlement/internal/repository"
	leveldbrepo "claims_settlement/internal/repository/leveldb"
	"claims_settlement/internal/repository/memory"
	"claims_settlement/internal/reserve"
	"claims_settlement/internal/service"
	"claims_settlement/internal/settlement"
	"claims_settlement/pkg/crypto"
	"claims_settlement/pkg/metrics"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

const (
	appName = "claims_settlement"
)

type config struct {
	httpAddr      string
	metricsAddr   string
	claimDBPath   string
	engineAccount string
	poolAccount   string
	minCoverPct   int64
	signingSecret string
	eventWorkers  int
	webhookURL    string
}

func main() {
	// .env is optional; environment variables alone are fine.
	_ = godotenv.Load()

	logger := setupLogger()
	cfg := loadConfig()

	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("http_addr", cfg.httpAddr),
		slog.Int64("min_cover_pct", cfg.minCoverPct))

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.signingSecret, logger)

	claimRepo, closeClaims, err := setupClaimRepository(cfg, logger)
	if err != nil {
		logger.Error("Claim store setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeClaims()

	stakeRepo := memory.NewStakeRepository()
	doctorDir := memory.NewDoctorDirectory()
	consentReg := memory.NewConsentRegistry()
	coverageReg := memory.NewCoverageRegistry()
	premiumRepo := memory.NewPremiumRepository()
	assets := ledger.NewMemoryLedger()

	pool := reserve.NewPool(assets, premiumRepo, cfg.poolAccount, cfg.minCoverPct, logger)
	engine := settlement.NewEngine(
		claimRepo,
		stakeRepo,
		doctorDir,
		consentReg,
		coverageReg,
		assets,
		pool,
		cfg.engineAccount,
		logger,
	)
	pool.SetReleaser(engine.Account())

	sinks := []service.EventSink{&service.AuditLogSink{Logger: logger}}
	if cfg.webhookURL != "" {
		sinks = append(sinks, &service.WebhookSink{URL: cfg.webhookURL})
	}
	eventService := service.NewEventService(sinks, cfg.eventWorkers, logger)
	engine.SetEventPublisher(eventService)
	pool.SetEventPublisher(eventService)

	apiHandler := api.NewAPIHandler(engine, pool, doctorDir, consentReg, coverageReg, metricsCollector, signer, logger)
	metricsServer := metricsCollector.StartMetricsServer(cfg.metricsAddr)
	httpServer := startHTTPServer(cfg.httpAddr, apiHandler, logger)

	waitForShutdown(logger, httpServer, metricsServer, eventService, metricsCollector)
	logger.Info("Application shutdown complete")
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func loadConfig() config {
	return config{
		httpAddr:      envOr("HTTP_ADDR", ":8080"),
		metricsAddr:   envOr("METRICS_ADDR", ":9090"),
		claimDBPath:   os.Getenv("CLAIM_DB_PATH"),
		engineAccount: envOr("ENGINE_ACCOUNT", "settlement-engine"),
		poolAccount:   envOr("POOL_ACCOUNT", "reserve-pool"),
		minCoverPct:   envOrInt64("MIN_COVER_PCT", 100),
		signingSecret: envOr("SIGNING_SECRET", "dev-only-secret"),
		eventWorkers:  int(envOrInt64("EVENT_WORKERS", 3)),
		webhookURL:    os.Getenv("EVENT_WEBHOOK_URL"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// setupClaimRepository picks the durable LevelDB store when CLAIM_DB_PATH is
// set and falls back to the in-memory arena otherwise.
func setupClaimRepository(cfg config, logger *slog.Logger) (repository.ClaimRepository, func(), error) {
	if cfg.claimDBPath == "" {
		logger.Info("Using in-memory claim store")
		return memory.NewClaimRepository(), func() {}, nil
	}

	repo, err := leveldbrepo.NewClaimRepository(cfg.claimDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open claim db at %s: %w", cfg.claimDBPath, err)
	}

	logger.Info("Using LevelDB claim store", slog.String("path", cfg.claimDBPath))
	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Error("Claim store close failed", slog.String("error", err.Error()))
		}
	}, nil
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	eventService *service.EventService,
	metricsCollector *metrics.MetricsCollector,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := eventService.Shutdown(ctx); err != nil {
		logger.Error("Event service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}
