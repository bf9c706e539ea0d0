package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"

	"github.com/angeloszaimis/hostguard/config"
	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
	"github.com/angeloszaimis/hostguard/internal/healthcheck"
	"github.com/angeloszaimis/hostguard/internal/httpserver"
	"github.com/angeloszaimis/hostguard/internal/metrics"
	"github.com/angeloszaimis/hostguard/internal/proxy"
	"github.com/angeloszaimis/hostguard/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	breakerOpts, err := cfg.CircuitBreaker.BreakerOptions()
	if err != nil {
		log.Error("Failed to build breaker options", slog.Any("err", err))
		os.Exit(1)
	}

	manager := circuitbreaker.NewManager(breakerOpts, log)

	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	collector := metrics.NewCollector(metricsBufferSize, recorder, log)
	collector.Start(ctx)

	manager.OnStateChange(func(key string, from, to circuitbreaker.State, reason string) {
		collector.Publish(metrics.Event{
			Type:      metrics.EventStateChanged,
			Host:      key,
			FromState: from.String(),
			ToState:   to.String(),
			Reason:    reason,
		})
	})

	upstreams, err := initializeUpstreams(ctx, cfg, manager, collector, log)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	proxyHandler := proxy.NewHandler(log, manager, upstreams, collector)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(proxyHandler, collector, manager))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("upstreams", len(upstreams)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeUpstreams(
	ctx context.Context,
	cfg *config.Config,
	manager *circuitbreaker.Manager,
	collector *metrics.Collector,
	log *slog.Logger,
) ([]*proxy.Upstream, error) {
	probeInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return nil, err
	}

	probeTimeout, err := time.ParseDuration(cfg.HealthCheck.Timeout)
	if err != nil {
		return nil, err
	}

	prober := healthcheck.NewProber(
		manager, collector, log, cfg.HealthCheck.Path, probeInterval, probeTimeout)

	var upstreams []*proxy.Upstream

	for _, upstream := range cfg.Upstreams {
		u, err := url.Parse(upstream.URL)

		if err != nil {
			log.Error("Failed to parse URL",
				slog.String("url", upstream.URL),
				slog.String("error", err.Error()))
			continue
		}

		upstreams = append(upstreams, proxy.NewUpstream(u))
		go prober.Watch(ctx, u)
	}

	if len(upstreams) == 0 {
		return nil, os.ErrInvalid
	}

	return upstreams, nil
}
