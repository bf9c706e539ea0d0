package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angeloszaimis/hostguard/internal/circuitbreaker"
	"github.com/angeloszaimis/hostguard/internal/metrics"
)

// Handler routes incoming requests through the first upstream whose circuit
// admits them, failing over down the configured list. A request only
// reaches the client from one upstream; attempts that fail without writing
// a response move on to the next.
type Handler struct {
	logger    *slog.Logger
	manager   *circuitbreaker.Manager
	upstreams []*Upstream
	collector *metrics.Collector
}

// NewHandler builds the proxy handler. collector may be nil to disable
// metrics.
func NewHandler(logger *slog.Logger, manager *circuitbreaker.Manager, upstreams []*Upstream, collector *metrics.Collector) *Handler {
	return &Handler{
		logger:    logger,
		manager:   manager,
		upstreams: upstreams,
		collector: collector,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	h.logger.Info("received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	// A request body can only be sent once; if the first attempt consumed
	// it, the remaining upstreams cannot be tried.
	canReplay := r.Body == nil || r.Body == http.NoBody

	var earliestReset time.Time

	for _, up := range h.upstreams {
		host := up.Host()
		start := time.Now()

		result, err := h.manager.Execute(r.Context(), host, func(ctx context.Context) (any, error) {
			w.Header().Set("X-Upstream", up.URL().String())
			status, ferr := up.Forward(w, r.WithContext(ctx))
			if ferr != nil {
				return nil, ferr
			}
			return status, nil
		})

		if err == nil {
			status, _ := result.(int)
			h.publish(metrics.Event{
				Type:       metrics.EventCallCompleted,
				Host:       host,
				Duration:   time.Since(start),
				StatusCode: status,
			})
			h.logger.Info("forwarded to upstream",
				slog.String("client", clientIP),
				slog.String("upstream", up.URL().String()),
				slog.Int("status", status))
			return
		}

		var open *circuitbreaker.OpenCircuitError
		if errors.As(err, &open) {
			if earliestReset.IsZero() || open.ResetAt.Before(earliestReset) {
				earliestReset = open.ResetAt
			}
			h.publish(metrics.Event{
				Type: metrics.EventCallRejected,
				Host: host,
			})
			h.logger.Debug("circuit open, skipping upstream",
				slog.String("upstream", up.URL().String()),
				slog.Time("retry_at", open.ResetAt))
			continue
		}

		h.publish(metrics.Event{
			Type:       metrics.EventCallCompleted,
			Host:       host,
			Duration:   time.Since(start),
			StatusCode: errorStatus(err),
		})
		h.logger.Warn("upstream attempt failed",
			slog.String("client", clientIP),
			slog.String("upstream", up.URL().String()),
			slog.Any("err", err))

		if !canReplay {
			h.logger.Warn("request body consumed, cannot fail over",
				slog.String("client", clientIP))
			break
		}
	}

	if !earliestReset.IsZero() {
		if wait := time.Until(earliestReset); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
	}
	http.Error(w, "no upstream available", http.StatusServiceUnavailable)
}

func errorStatus(err error) int {
	var sc circuitbreaker.StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (h *Handler) publish(event metrics.Event) {
	if h.collector == nil {
		return
	}
	h.collector.Publish(event)
}
