package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type EventType string

const (
	EventCallCompleted  EventType = "call_completed"
	EventCallRejected   EventType = "call_rejected"
	EventStateChanged   EventType = "state_changed"
	EventProbeCompleted EventType = "probe_completed"
)

// Event is one observation flowing through the collector pipeline. Only the
// fields relevant to its Type are set.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Host       string
	Duration   time.Duration
	StatusCode int
	FromState  string
	ToState    string
	Reason     string
	Healthy    bool
}

// Collector consumes events on a dedicated goroutine and feeds both the
// in-memory aggregates and the Prometheus recorder, keeping measurement off
// the request path.
type Collector struct {
	eventCh  chan Event
	metrics  *Metrics
	recorder Recorder
	logger   *slog.Logger
	dropped  atomic.Int64
}

// NewCollector returns a collector with the given channel capacity. A nil
// recorder disables Prometheus measurement.
func NewCollector(bufferSize int, recorder Recorder, logger *slog.Logger) *Collector {
	if recorder == nil {
		recorder = NewNopRecorder()
	}
	return &Collector{
		eventCh:  make(chan Event, bufferSize),
		metrics:  NewMetrics(),
		recorder: recorder,
		logger:   logger,
	}
}

// Publish enqueues an event without blocking. Events beyond the channel
// capacity are dropped and counted; losing a measurement is preferable to
// stalling a request.
func (c *Collector) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the channel was
// full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventCallCompleted:
		c.metrics.RecordCall(event.Host, event.Duration, event.StatusCode)
		c.recorder.ObserveCall(event.Host, event.StatusCode, event.Duration)

	case EventCallRejected:
		c.metrics.RecordRejection(event.Host)
		c.recorder.IncRejection(event.Host)

	case EventStateChanged:
		c.metrics.RecordStateChange(event.Host, event.FromState, event.ToState)
		c.recorder.ObserveStateChange(event.Host, event.ToState)

	case EventProbeCompleted:
		c.metrics.RecordProbe(event.Host, event.Healthy)
		c.recorder.ObserveProbe(event.Host, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

// Snapshot returns the current traffic aggregates.
func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
