// Package proxy forwards incoming requests to the configured upstreams
// through their circuit breakers.
//
// Each upstream wraps a reverse proxy and is guarded by the breaker for
// its authority. The handler walks the upstream list in order: circuits
// that are open are skipped without a connection attempt, transport faults
// and 5xx responses fail over to the next upstream, and anything else is
// streamed back to the client as-is. When every upstream is unavailable
// the client receives 503 with a Retry-After derived from the soonest
// circuit reset.
package proxy
