package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace         = "hostguard"
	promCircuitSubsystem  = "circuit"
	promUpstreamSubsystem = "upstream"
)

// Recorder knows how to measure circuit and upstream activity.
type Recorder interface {
	// ObserveCall measures one attempted upstream call.
	ObserveCall(host string, statusCode int, duration time.Duration)
	// IncRejection increments the number of calls refused by an open circuit.
	IncRejection(host string)
	// ObserveStateChange counts a transition and moves the state gauge.
	ObserveStateChange(host, state string)
	// ObserveProbe records the result of a health probe.
	ObserveProbe(host string, healthy bool)
}

type prometheusRec struct {
	callsTotal        *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	rejectionsTotal   *prometheus.CounterVec
	stateChangesTotal *prometheus.CounterVec
	circuitState      *prometheus.GaugeVec
	probeHealthy      *prometheus.GaugeVec

	reg prometheus.Registerer
}

// NewPrometheusRecorder returns a Recorder that exposes measurements as
// Prometheus metrics registered on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	p := &prometheusRec{
		reg: reg,
	}

	p.registerMetrics()
	return p
}

func (p *prometheusRec) registerMetrics() {
	p.callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promUpstreamSubsystem,
		Name:      "calls_total",
		Help:      "Total number of attempted upstream calls.",
	}, []string{"host", "code"})

	p.callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promUpstreamSubsystem,
		Name:      "call_duration_seconds",
		Help:      "The duration of upstream calls in seconds.",
	}, []string{"host"})

	p.rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promCircuitSubsystem,
		Name:      "rejections_total",
		Help:      "Total number of calls rejected by an open circuit.",
	}, []string{"host"})

	p.stateChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promCircuitSubsystem,
		Name:      "state_changes_total",
		Help:      "Total number of circuit breaker state changes.",
	}, []string{"host", "state"})

	p.circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promCircuitSubsystem,
		Name:      "state",
		Help:      "Current circuit state: 0 closed, 1 open, 2 half-open.",
	}, []string{"host"})

	p.probeHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promUpstreamSubsystem,
		Name:      "probe_healthy",
		Help:      "Whether the latest health probe of the host succeeded.",
	}, []string{"host"})

	p.reg.MustRegister(
		p.callsTotal,
		p.callDuration,
		p.rejectionsTotal,
		p.stateChangesTotal,
		p.circuitState,
		p.probeHealthy,
	)
}

func (p *prometheusRec) ObserveCall(host string, statusCode int, duration time.Duration) {
	p.callsTotal.WithLabelValues(host, strconv.Itoa(statusCode)).Inc()
	p.callDuration.WithLabelValues(host).Observe(duration.Seconds())
}

func (p *prometheusRec) IncRejection(host string) {
	p.rejectionsTotal.WithLabelValues(host).Inc()
}

func (p *prometheusRec) ObserveStateChange(host, state string) {
	p.stateChangesTotal.WithLabelValues(host, state).Inc()
	p.circuitState.WithLabelValues(host).Set(stateValue(state))
}

func (p *prometheusRec) ObserveProbe(host string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	p.probeHealthy.WithLabelValues(host).Set(value)
}

func stateValue(state string) float64 {
	switch state {
	case "CLOSED":
		return 0
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return -1
	}
}

type nopRecorder struct{}

// NewNopRecorder returns a Recorder that measures nothing, for tests and
// setups without Prometheus.
func NewNopRecorder() Recorder {
	return nopRecorder{}
}

func (nopRecorder) ObserveCall(host string, statusCode int, duration time.Duration) {}
func (nopRecorder) IncRejection(host string)                                        {}
func (nopRecorder) ObserveStateChange(host, state string)                           {}
func (nopRecorder) ObserveProbe(host string, healthy bool)                          {}
