package circuitbreaker

import "time"

// Defaults applied by New for any Options field left at its zero value.
const (
	DefaultFailureThreshold = 5                // failures within the window before opening
	DefaultSuccessThreshold = 2                // half-open successes needed to close
	DefaultFailureWindow    = 60 * time.Second // sliding window for failure counting
	DefaultOpenTimeout      = 30 * time.Second // wait in open state before a half-open trial
	DefaultResetTimeout     = 60 * time.Second // quiet period after which closed-state history decays
)

// DefaultFailureStatusCodes are the HTTP statuses counted as failures when no
// explicit set is configured.
var DefaultFailureStatusCodes = []int{500, 502, 503, 504}

// Options configures a CircuitBreaker. The zero value is usable: every
// unset field takes the package default.
type Options struct {
	// FailureThreshold is the number of classified failures within
	// FailureWindow that trips a closed circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the circuit again.
	SuccessThreshold int

	// FailureWindow is the trailing interval over which closed-state
	// failures are counted toward FailureThreshold.
	FailureWindow time.Duration

	// OpenTimeout is how long an open circuit rejects requests before the
	// next call is allowed through as a half-open trial.
	OpenTimeout time.Duration

	// ResetTimeout is the quiet period after the last failure in closed
	// state; once a success arrives beyond it, stale failure history is
	// cleared without any transition.
	ResetTimeout time.Duration

	// FailureStatusCodes lists the HTTP-like status codes counted as
	// failures. Nil means DefaultFailureStatusCodes.
	FailureStatusCodes []int

	// IgnoreNetworkErrors disables the connection-error heuristic. The
	// zero value keeps it enabled, which is the subsystem default.
	IgnoreNetworkErrors bool

	// IsFailure, when set, overrides all built-in classification. It
	// receives the error and the extracted status code (0 when none).
	IsFailure func(err error, statusCode int) bool

	// OnStateChange is invoked after every state transition with a short
	// human-readable reason. It runs outside the breaker's lock, so it may
	// query the breaker, but it must not block the request path.
	OnStateChange func(from, to State, reason string)

	// Clock overrides the time source. Nil means time.Now. Intended for
	// tests.
	Clock func() time.Time
}

// withDefaults fills every zero field with the package default.
func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = DefaultSuccessThreshold
	}
	if o.FailureWindow <= 0 {
		o.FailureWindow = DefaultFailureWindow
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = DefaultResetTimeout
	}
	if o.FailureStatusCodes == nil {
		o.FailureStatusCodes = DefaultFailureStatusCodes
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Option overrides a single field when the manager creates a breaker for a
// new key. Provided options win over the manager defaults, including
// explicit false/zero values.
type Option func(*Options)

func WithFailureThreshold(n int) Option {
	return func(o *Options) { o.FailureThreshold = n }
}

func WithSuccessThreshold(n int) Option {
	return func(o *Options) { o.SuccessThreshold = n }
}

func WithFailureWindow(d time.Duration) Option {
	return func(o *Options) { o.FailureWindow = d }
}

func WithOpenTimeout(d time.Duration) Option {
	return func(o *Options) { o.OpenTimeout = d }
}

func WithResetTimeout(d time.Duration) Option {
	return func(o *Options) { o.ResetTimeout = d }
}

func WithFailureStatusCodes(codes ...int) Option {
	return func(o *Options) { o.FailureStatusCodes = codes }
}

func WithIgnoreNetworkErrors(ignore bool) Option {
	return func(o *Options) { o.IgnoreNetworkErrors = ignore }
}

func WithIsFailure(fn func(err error, statusCode int) bool) Option {
	return func(o *Options) { o.IsFailure = fn }
}

func WithOnStateChange(fn func(from, to State, reason string)) Option {
	return func(o *Options) { o.OnStateChange = fn }
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}
