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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/breaker"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/config"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/health"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ledger"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/logger"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/monitoring"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/probe"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ratelimit"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/router"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/security"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/strategy"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
	anthropicadapter "github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport/anthropic"
	geminiadapter "github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport/gemini"
	openaiadapter "github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport/openai"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LoggingLevel)

	log.Info("Starting ai router",
		"logging_level", cfg.Server.LoggingLevel,
		"port", cfg.Server.Port,
		"default_strategy", cfg.Router.DefaultStrategy,
	)

	reg, err := registry.New(cfg.EnabledProviders())
	if err != nil {
		log.Error("Failed to build provider registry", "error", err)
		os.Exit(1)
	}

	log.Info("Loaded providers", "count", reg.Count())
	for i, p := range reg.All() {
		log.Info("Provider configured",
			"index", i+1,
			"id", p.ID,
			"type", p.Type,
			"endpoint", p.Endpoint,
			"model", p.Model,
			"credential", security.MaskAPIKey(p.Credential),
			"rpm", p.MaxRequestsPerMinute,
		)
	}

	invokers, err := buildInvokers(context.Background(), reg)
	if err != nil {
		log.Error("Failed to build provider adapters", "error", err)
		os.Exit(1)
	}

	defaultStrategy, err := strategy.ParseMode(cfg.Router.DefaultStrategy)
	if err != nil {
		log.Error("Invalid default strategy", "error", err)
		os.Exit(1)
	}

	brk := breaker.New(cfg.Router.FailureThreshold, cfg.Router.Cooldown, cfg.Router.CooldownMax)
	limiter := ratelimit.New()
	tracker := health.NewTracker(cfg.Router.HealthWindowSize)
	metrics := monitoring.New(cfg.Monitoring.PrometheusEnabled)

	var sink ledger.Sink
	var pgSink *ledger.PostgresSink
	if cfg.Ledger.Postgres.Enabled {
		databaseURL := os.Getenv(cfg.Ledger.Postgres.DatabaseURLEnvVar)
		if databaseURL == "" {
			log.Error("Database URL environment variable is not set",
				"env_var", cfg.Ledger.Postgres.DatabaseURLEnvVar,
			)
			os.Exit(1)
		}
		pgSink, err = ledger.NewPostgresSink(context.Background(), cfg.Ledger.Postgres, databaseURL, log)
		if err != nil {
			log.Error("Failed to start postgres sink", "error", err)
			os.Exit(1)
		}
		sink = pgSink
	}

	ldgr, err := ledger.New(cfg.Ledger.RecentResults, sink)
	if err != nil {
		log.Error("Failed to create usage ledger", "error", err)
		os.Exit(1)
	}

	rtr := router.New(reg, invokers, brk, limiter, tracker, ldgr, metrics, log, router.Options{
		DefaultStrategy:     defaultStrategy,
		MaxProviderAttempts: cfg.Router.MaxProviderAttempts,
		PerAttemptTimeout:   cfg.Router.PerAttemptTimeout,
	})

	var monitor *probe.Monitor
	if cfg.Probe.Enabled {
		monitor = probe.NewMonitor(reg, probe.NewTracker(), metrics, cfg.Probe.Interval, cfg.Probe.Workers, log)
		monitor.Start()
	}

	// Start background metrics updater
	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				for id, h := range rtr.ProviderHealth() {
					metrics.UpdateCircuitState(id, circuitStateValue(h.Status))
					metrics.UpdateSuccessRate(id, h.SuccessRate)
					metrics.UpdateTokensLastMinute(id, h.TokensConsumedLastMinute)
				}
			}
		}()
		log.Info("Metrics updater started (updates every 10 seconds)")
	}

	mux := http.NewServeMux()
	mux.Handle("/", router.NewHandler(rtr, cfg.Server.HealthCheckPath, log))

	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("Prometheus metrics enabled", "path", "/metrics")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if monitor != nil {
		monitor.Stop()
	}
	if pgSink != nil {
		if err := pgSink.Shutdown(ctx); err != nil {
			log.Error("Postgres sink shutdown incomplete", "error", err)
		}
	}

	log.Info("Server shutdown complete")
}

// buildInvokers creates one transport adapter per provider, keyed by id.
func buildInvokers(ctx context.Context, reg *registry.Registry) (map[string]transport.Invoker, error) {
	invokers := make(map[string]transport.Invoker, reg.Count())
	for _, p := range reg.All() {
		switch p.Type {
		case config.ProviderTypeOpenAI:
			invokers[p.ID] = openaiadapter.New(p)
		case config.ProviderTypeAnthropic:
			invokers[p.ID] = anthropicadapter.New(p)
		case config.ProviderTypeGemini:
			adapter, err := geminiadapter.New(ctx, p)
			if err != nil {
				return nil, err
			}
			invokers[p.ID] = adapter
		default:
			return nil, fmt.Errorf("provider %s: no adapter for type %s", p.ID, p.Type)
		}
	}
	return invokers, nil
}

func circuitStateValue(s breaker.Status) int {
	switch s {
	case breaker.StatusOpen:
		return 2
	case breaker.StatusHalfOpen:
		return 1
	default:
		return 0
	}
}
