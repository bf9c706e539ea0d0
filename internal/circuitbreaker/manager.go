package circuitbreaker

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"sync"
)

// StateChangeListener observes transitions across every breaker a manager
// owns. Listeners run on the goroutine that triggered the transition and
// must not block.
type StateChangeListener func(key string, from, to State, reason string)

// Manager multiplexes independent breakers by a caller-supplied key,
// typically a hostname. Breakers are created lazily on first reference and
// keep their accumulated state for the life of the manager, which is what
// gives them memory of past failures.
type Manager struct {
	defaults Options
	log      *slog.Logger

	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	listeners []StateChangeListener
}

// NewManager returns an empty manager. defaults is the configuration
// template applied to every breaker it creates; zero fields fall back to
// the package defaults. A nil log uses slog.Default.
func NewManager(defaults Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		defaults: defaults,
		log:      log,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// OnStateChange registers a listener for transitions on all breakers,
// including ones created before the registration.
func (m *Manager) OnStateChange(l StateChangeListener) {
	m.mutex.Lock()
	m.listeners = append(m.listeners, l)
	m.mutex.Unlock()
}

// GetBreaker returns the breaker for key, creating it on first reference by
// merging overrides on top of the manager defaults. Creation is idempotent
// per key: once a breaker exists, later calls return it as-is and their
// overrides are ignored. Reconfiguring a live breaker would discard the
// failure history that makes it useful; use Remove first to start over.
func (m *Manager) GetBreaker(key string, overrides ...Option) *CircuitBreaker {
	m.mutex.RLock()
	cb, ok := m.breakers[key]
	m.mutex.RUnlock()
	if ok {
		return cb
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if cb, ok := m.breakers[key]; ok {
		return cb
	}

	opts := m.defaults
	for _, override := range overrides {
		override(&opts)
	}
	opts.OnStateChange = m.observerFor(key, opts.OnStateChange)

	cb = New(key, opts)
	m.breakers[key] = cb
	return cb
}

// observerFor wraps the per-breaker observer so every transition is logged
// and fanned out to the manager's listeners before reaching the caller's
// own callback.
func (m *Manager) observerFor(key string, user func(from, to State, reason string)) func(from, to State, reason string) {
	return func(from, to State, reason string) {
		lvl := slog.LevelInfo
		if to == StateOpen {
			lvl = slog.LevelWarn
		}
		m.log.Log(context.Background(), lvl, "circuit state changed",
			"host", key,
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)

		m.mutex.RLock()
		listeners := make([]StateChangeListener, len(m.listeners))
		copy(listeners, m.listeners)
		m.mutex.RUnlock()

		for _, l := range listeners {
			l(key, from, to, reason)
		}
		if user != nil {
			user(from, to, reason)
		}
	}
}

// Execute runs fn through the breaker for key, creating it if needed.
func (m *Manager) Execute(ctx context.Context, key string, fn Func) (any, error) {
	return m.GetBreaker(key).Execute(ctx, fn)
}

// Allow reports whether a request for key would pass through. Unknown keys
// are allowed: no history means no reason to block.
func (m *Manager) Allow(key string) bool {
	m.mutex.RLock()
	cb, ok := m.breakers[key]
	m.mutex.RUnlock()
	if !ok {
		return true
	}
	return cb.Allow()
}

// GetState returns the state of the breaker for key, or StateNone if no
// breaker exists yet.
func (m *Manager) GetState(key string) State {
	m.mutex.RLock()
	cb, ok := m.breakers[key]
	m.mutex.RUnlock()
	if !ok {
		return StateNone
	}
	return cb.State()
}

// Reset forces the breaker for key back to closed. It reports whether a
// breaker existed.
func (m *Manager) Reset(key string) bool {
	m.mutex.RLock()
	cb, ok := m.breakers[key]
	m.mutex.RUnlock()
	if !ok {
		return false
	}
	cb.Reset()
	return true
}

// ResetAll resets every tracked breaker.
func (m *Manager) ResetAll() {
	for _, cb := range m.snapshot() {
		cb.Reset()
	}
}

// GetMetrics returns a snapshot for key. The second result is false if no
// breaker exists.
func (m *Manager) GetMetrics(key string) (Metrics, bool) {
	m.mutex.RLock()
	cb, ok := m.breakers[key]
	m.mutex.RUnlock()
	if !ok {
		return Metrics{}, false
	}
	return cb.Metrics(), true
}

// AllMetrics returns a snapshot for every tracked key.
func (m *Manager) AllMetrics() map[string]Metrics {
	m.mutex.RLock()
	cbs := make(map[string]*CircuitBreaker, len(m.breakers))
	for key, cb := range m.breakers {
		cbs[key] = cb
	}
	m.mutex.RUnlock()

	out := make(map[string]Metrics, len(cbs))
	for key, cb := range cbs {
		out[key] = cb.Metrics()
	}
	return out
}

// OpenCircuits returns the keys whose breaker is currently open, sorted
// for stable output. The lazy open-timeout check runs as part of the
// query, so breakers past their cooldown are not reported.
func (m *Manager) OpenCircuits() []string {
	m.mutex.RLock()
	cbs := make(map[string]*CircuitBreaker, len(m.breakers))
	for key, cb := range m.breakers {
		cbs[key] = cb
	}
	m.mutex.RUnlock()

	open := make([]string, 0)
	for key, cb := range cbs {
		if cb.State() == StateOpen {
			open = append(open, key)
		}
	}
	sort.Strings(open)
	return open
}

// Remove drops the breaker for key, discarding its history. It reports
// whether a breaker existed.
func (m *Manager) Remove(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.breakers[key]; !ok {
		return false
	}
	delete(m.breakers, key)
	return true
}

// Clear drops every tracked breaker.
func (m *Manager) Clear() {
	m.mutex.Lock()
	m.breakers = make(map[string]*CircuitBreaker)
	m.mutex.Unlock()
}

// Size returns the number of tracked breakers.
func (m *Manager) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.breakers)
}

// Has reports whether a breaker exists for key.
func (m *Manager) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.breakers[key]
	return ok
}

func (m *Manager) snapshot() []*CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		out = append(out, cb)
	}
	return out
}

// ExtractHost derives a stable breaker key from a URL by stripping scheme,
// port, path and query. Inputs that do not parse as a URL with a host, such
// as a bare hostname, are returned unchanged.
func ExtractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
