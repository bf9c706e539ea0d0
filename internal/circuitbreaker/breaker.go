package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the position of a breaker in its lifecycle.
type State int

const (
	StateClosed   State = iota // normal operation, failures counted in a sliding window
	StateOpen                  // requests rejected without invoking the operation
	StateHalfOpen              // trial period, one failure reopens the circuit
)

// StateNone is the sentinel reported by manager lookups for keys that have
// no breaker yet.
const StateNone State = -1

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	case StateNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Func is the unit of work guarded by a breaker. The breaker never inspects
// the result value; it only classifies the error.
type Func func(ctx context.Context) (any, error)

// CircuitBreaker guards calls to a single target. It trips open after too
// many failures inside a sliding window, rejects calls while open, and
// probes the target again after a cooldown. All state is in memory and
// scoped to the instance.
type CircuitBreaker struct {
	host string
	opts Options

	// failureCodes is opts.FailureStatusCodes as a set, built once at
	// construction for O(1) classification lookups.
	failureCodes map[int]struct{}

	mutex          sync.Mutex
	state          State
	failureCount   int
	successCount   int
	totalRequests  int64
	failureTimes   []time.Time
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	stateChangedAt time.Time
	openedAt       time.Time
}

// transition is a recorded state change, carried out of the locked section
// so the observer can run without holding the breaker's mutex.
type transition struct {
	from   State
	to     State
	reason string
}

// New returns a closed breaker for the given host label. Zero fields in
// opts take the package defaults.
func New(host string, opts Options) *CircuitBreaker {
	opts = opts.withDefaults()

	codes := make(map[int]struct{}, len(opts.FailureStatusCodes))
	for _, code := range opts.FailureStatusCodes {
		codes[code] = struct{}{}
	}

	return &CircuitBreaker{
		host:           host,
		opts:           opts,
		failureCodes:   codes,
		state:          StateClosed,
		stateChangedAt: opts.Clock(),
	}
}

// Host returns the target label the breaker was created with.
func (cb *CircuitBreaker) Host() string {
	return cb.host
}

// Execute runs fn through the breaker. While the circuit is open it fails
// fast with an *OpenCircuitError and never invokes fn. Otherwise fn's
// result and error are returned unchanged; the breaker only observes the
// outcome, it never retries and never wraps the error.
//
// The breaker imposes no deadline of its own. If fn never returns, the
// call is neither counted as success nor failure; callers needing timeout
// semantics must build them into fn via ctx.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Func) (any, error) {
	now := cb.opts.Clock()

	cb.mutex.Lock()
	tr, changed := cb.refreshLocked(now)
	if cb.state == StateOpen {
		rejection := &OpenCircuitError{
			Host:    cb.host,
			ResetAt: cb.openedAt.Add(cb.opts.OpenTimeout),
		}
		cb.mutex.Unlock()
		return nil, rejection
	}
	cb.totalRequests++
	cb.mutex.Unlock()

	if changed {
		cb.notifyChange(tr)
	}

	result, err := fn(ctx)

	if err != nil {
		if cb.countsAsFailure(err) {
			cb.mutex.Lock()
			tr, changed = cb.recordFailureLocked(cb.opts.Clock())
			cb.mutex.Unlock()
			if changed {
				cb.notifyChange(tr)
			}
		}
		return result, err
	}

	cb.mutex.Lock()
	tr, changed = cb.recordSuccessLocked(cb.opts.Clock())
	cb.mutex.Unlock()
	if changed {
		cb.notifyChange(tr)
	}
	return result, nil
}

// State reports the current state after evaluating the lazy open-timeout
// check.
func (cb *CircuitBreaker) State() State {
	now := cb.opts.Clock()

	cb.mutex.Lock()
	tr, changed := cb.refreshLocked(now)
	state := cb.state
	cb.mutex.Unlock()

	if changed {
		cb.notifyChange(tr)
	}
	return state
}

// Allow reports whether a request would currently pass through. It is a
// side-effect-free probe apart from the lazy open-timeout check.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != StateOpen
}

// Reset forces the breaker back to closed and zeroes every counter and
// timestamp. It is always permitted and does not notify the observer; it
// is an administrative override, not a state-machine transition.
func (cb *CircuitBreaker) Reset() {
	now := cb.opts.Clock()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalRequests = 0
	cb.failureTimes = nil
	cb.lastFailureAt = time.Time{}
	cb.lastSuccessAt = time.Time{}
	cb.openedAt = time.Time{}
	cb.stateChangedAt = now
}

// refreshLocked applies the lazy OPEN to HALF-OPEN transition once the
// open timeout has elapsed. Callers must hold cb.mutex.
func (cb *CircuitBreaker) refreshLocked(now time.Time) (transition, bool) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.opts.OpenTimeout {
		return cb.transitionLocked(StateHalfOpen, "open timeout elapsed", now), true
	}
	return transition{}, false
}

// recordSuccessLocked updates counters for a successful call and applies
// any resulting transition. Callers must hold cb.mutex.
func (cb *CircuitBreaker) recordSuccessLocked(now time.Time) (transition, bool) {
	cb.lastSuccessAt = now
	cb.successCount++

	switch cb.state {
	case StateHalfOpen:
		if cb.successCount >= cb.opts.SuccessThreshold {
			reason := fmt.Sprintf("%d consecutive successes", cb.successCount)
			return cb.transitionLocked(StateClosed, reason, now), true
		}
	case StateClosed:
		// Passive decay: after a quiet period the old failures no longer
		// say anything about target health.
		if !cb.lastFailureAt.IsZero() && now.Sub(cb.lastFailureAt) > cb.opts.ResetTimeout {
			cb.failureCount = 0
			cb.failureTimes = nil
		}
	}
	return transition{}, false
}

// recordFailureLocked updates counters for a classified failure and applies
// any resulting transition. Callers must hold cb.mutex.
func (cb *CircuitBreaker) recordFailureLocked(now time.Time) (transition, bool) {
	cb.lastFailureAt = now
	cb.failureCount++
	cb.failureTimes = append(cb.failureTimes, now)
	for len(cb.failureTimes) > 0 && now.Sub(cb.failureTimes[0]) > cb.opts.FailureWindow {
		cb.failureTimes = cb.failureTimes[1:]
	}

	switch cb.state {
	case StateHalfOpen:
		return cb.transitionLocked(StateOpen, "failure in half-open", now), true
	case StateClosed:
		if len(cb.failureTimes) >= cb.opts.FailureThreshold {
			reason := fmt.Sprintf("%d failures in %s", len(cb.failureTimes), cb.opts.FailureWindow)
			return cb.transitionLocked(StateOpen, reason, now), true
		}
	}
	return transition{}, false
}

// transitionLocked moves the breaker to a new state and applies the side
// effects tied to entering it. Callers must hold cb.mutex.
func (cb *CircuitBreaker) transitionLocked(to State, reason string, now time.Time) transition {
	tr := transition{from: cb.state, to: to, reason: reason}

	cb.state = to
	cb.stateChangedAt = now

	switch to {
	case StateOpen:
		cb.openedAt = now
		if tr.from == StateHalfOpen {
			cb.successCount = 0
		}
	case StateHalfOpen:
		cb.successCount = 0
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.failureTimes = nil
		cb.openedAt = time.Time{}
	}
	return tr
}

func (cb *CircuitBreaker) notifyChange(tr transition) {
	if cb.opts.OnStateChange != nil {
		cb.opts.OnStateChange(tr.from, tr.to, tr.reason)
	}
}
