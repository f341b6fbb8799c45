package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marisol-labs/storefront-core/internal/credentials"
	"github.com/marisol-labs/storefront-core/internal/events"
	"github.com/marisol-labs/storefront-core/internal/gateway"
	"github.com/marisol-labs/storefront-core/internal/kv"
	"github.com/marisol-labs/storefront-core/internal/orchestrator"
	"github.com/marisol-labs/storefront-core/internal/snapshot"
	"github.com/marisol-labs/storefront-core/pkg/config"
	"github.com/marisol-labs/storefront-core/pkg/env"
	"github.com/marisol-labs/storefront-core/pkg/logger"
	"github.com/marisol-labs/storefront-core/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	kvClient, err := kv.New(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := kvClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	bus := events.NewBus()
	snapshots := snapshot.New(kvClient, cfg.Slots.CartKey)
	creds := credentials.New(kvClient, cfg.Slots.SessionKey, bus)

	gw, err := gateway.New(cfg.Gateway, creds.Token, logg)
	if err != nil {
		logg.Error(ctx, "failed to build gateway client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orch, err := orchestrator.New(orchestrator.Params{
		Gateway:     gw,
		Snapshots:   snapshots,
		Credentials: creds,
		Bus:         bus,
		Logger:      logg,
		Metrics:     metrics.NewOperationMetrics(registry),
	})
	if err != nil {
		logg.Error(ctx, "failed to build orchestrator", err)
		os.Exit(1)
	}

	// Restored auth comes back before the cart so the gateway can attach a
	// bearer token to the verification fetch.
	if restored, err := creds.Restore(ctx); err != nil {
		logg.Error(ctx, "restoring auth session failed", err)
	} else if restored {
		logg.Info(ctx, "auth session restored")
	}
	if restored, err := snapshots.Restore(ctx); err != nil {
		logg.Error(ctx, "restoring cart snapshot failed", err)
	} else if restored {
		if err := orch.VerifySnapshot(ctx); err != nil {
			logg.Error(ctx, "verifying restored cart failed", err)
		}
	}

	addr := ":" + env.Get("PORT", "8080")
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting storefront core")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := kvClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		state, _ := orch.State()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(string(state)))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "storefront core stopped unexpectedly", err)
		os.Exit(1)
	}
}
