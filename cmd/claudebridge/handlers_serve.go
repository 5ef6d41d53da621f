package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/claudebridge/internal/bridge"
	slackchannel "github.com/haasonsaas/claudebridge/internal/channels/slack"
	"github.com/haasonsaas/claudebridge/internal/claude"
	"github.com/haasonsaas/claudebridge/internal/config"
	"github.com/haasonsaas/claudebridge/internal/observability"
	"github.com/haasonsaas/claudebridge/internal/sessions"
)

const shutdownTimeout = 10 * time.Second

// runServe wires the bridge and blocks until a shutdown signal or a fatal
// Slack error.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.LogConfig())
	slog.SetDefault(logger)

	redacted := cfg.Redacted()
	logger.Info("starting claudebridge",
		"version", version,
		"commit", commit,
		"config", configPath,
		"bot_token", redacted.Slack.BotToken,
		"app_token", redacted.Slack.AppToken,
		"launch", cfg.Claude.Launch,
		"reply_mode", cfg.Bridge.ReplyMode,
		"serialize_threads", cfg.Bridge.SerializeThreads,
	)

	tracer, shutdownTracing := observability.NewTracer(cfg.TraceConfig(version))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	invoker, err := claude.NewInvoker(cfg.InvokerConfig(), claude.WithLogger(logger))
	if err != nil {
		return err
	}

	adapter, err := slackchannel.NewAdapter(slackchannel.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Debug:    cfg.Slack.Debug,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	orch, err := bridge.New(bridge.Deps{
		Invoker:   invoker,
		Store:     sessions.NewMemoryStore(),
		Responder: adapter,
		Identity:  adapter,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	}, cfg.BridgeOptions())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return adapter.Run(gctx, orch.HandleEvent)
	})
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listener started", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("claudebridge stopped")
	return nil
}

// metricsMux serves Prometheus metrics and a liveness check.
func metricsMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
