package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
	"github.com/angeloszaimis/hostguard/internal/metrics"
)

// Prober actively probes upstreams whose circuit has tripped. A breaker
// only recovers on its own when traffic flows through the half-open trial;
// the prober shortcuts that by resetting the circuit as soon as the
// upstream's health endpoint answers 200 again. Upstreams with a closed
// circuit are not probed, live traffic already measures those.
type Prober struct {
	manager   *circuitbreaker.Manager
	collector *metrics.Collector
	logger    *slog.Logger
	client    *http.Client
	path      string
	interval  time.Duration
}

// NewProber builds a prober. collector may be nil to disable probe events.
func NewProber(
	manager *circuitbreaker.Manager,
	collector *metrics.Collector,
	logger *slog.Logger,
	path string,
	interval time.Duration,
	timeout time.Duration,
) *Prober {
	return &Prober{
		manager:   manager,
		collector: collector,
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		path:      path,
		interval:  interval,
	}
}

// Watch probes target on every tick until ctx is cancelled. Run it in its
// own goroutine, one per upstream.
func (p *Prober) Watch(ctx context.Context, target *url.URL) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("health probe stopped",
				slog.String("upstream", target.String()))
			return

		case <-ticker.C:
			p.probe(ctx, target)
		}
	}
}

func (p *Prober) probe(ctx context.Context, target *url.URL) {
	host := target.Host
	if p.manager.GetState(host) != circuitbreaker.StateOpen {
		return
	}

	probeURL := target.ResolveReference(&url.URL{Path: p.path})

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		return
	}

	healthy := false
	res, err := p.client.Do(req)
	if err == nil {
		res.Body.Close()
		healthy = res.StatusCode == http.StatusOK
	}

	if p.collector != nil {
		p.collector.Publish(metrics.Event{
			Type:    metrics.EventProbeCompleted,
			Host:    host,
			Healthy: healthy,
		})
	}

	if !healthy {
		p.logger.Debug("health probe failed",
			slog.String("upstream", target.String()))
		return
	}

	p.manager.Reset(host)
	p.logger.Info("upstream recovered, circuit reset",
		slog.String("upstream", target.String()))
}
