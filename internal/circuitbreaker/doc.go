// Package circuitbreaker implements the circuit breaker pattern for
// protecting calls to unreliable hosts.
//
// A breaker guards a single target and moves through three states:
//
//   - CLOSED: Normal operation, requests pass through while failures are
//     counted in a sliding window
//   - OPEN: Too many recent failures, requests rejected without being
//     attempted
//   - HALF-OPEN: Cooldown elapsed, trial requests probe whether the
//     target recovered
//
// Transitions are evaluated lazily whenever the breaker is used or
// queried; there is no background timer. The breaker imposes no deadline
// on the guarded call: a call that never returns is never counted either
// way, so callers wanting timeouts must carry them in the context.
//
// The Manager keys independent breakers by host so callers do not track
// breaker instances themselves:
//
//	mgr := circuitbreaker.NewManager(circuitbreaker.Options{}, logger)
//	result, err := mgr.Execute(ctx, circuitbreaker.ExtractHost(target), func(ctx context.Context) (any, error) {
//	    return client.Do(req)
//	})
//	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
//	    // Fail fast, fall back, or surface a retry-after.
//	}
package circuitbreaker
