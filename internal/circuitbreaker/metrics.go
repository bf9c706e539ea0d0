package circuitbreaker

import "time"

// Metrics is a read-only snapshot of one breaker, shaped for JSON
// dashboards and logs. Zero-valued instants mean the event has not
// happened yet.
type Metrics struct {
	Host           string    `json:"host"`
	State          string    `json:"state"`
	FailureCount   int       `json:"failure_count"`
	SuccessCount   int       `json:"success_count"`
	TotalRequests  int64     `json:"total_requests"`
	WindowFailures int       `json:"window_failures"`
	LastFailureAt  time.Time `json:"last_failure_at,omitzero"`
	LastSuccessAt  time.Time `json:"last_success_at,omitzero"`
	StateChangedAt time.Time `json:"state_changed_at,omitzero"`
	OpenedAt       time.Time `json:"opened_at,omitzero"`
}

// Metrics returns a snapshot of the breaker's counters and timestamps.
// Unlike State, it does not evaluate the lazy open-timeout check: it
// reports the breaker as last observed, so reading metrics never causes
// a transition.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Metrics{
		Host:           cb.host,
		State:          cb.state.String(),
		FailureCount:   cb.failureCount,
		SuccessCount:   cb.successCount,
		TotalRequests:  cb.totalRequests,
		WindowFailures: len(cb.failureTimes),
		LastFailureAt:  cb.lastFailureAt,
		LastSuccessAt:  cb.lastSuccessAt,
		StateChangedAt: cb.stateChangedAt,
		OpenedAt:       cb.openedAt,
	}
}
