package circuitbreaker

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// connectionErrnos are the connection-level error codes treated as signs of
// an unhealthy target rather than a bad request.
var connectionErrnos = []error{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.EHOSTUNREACH,
	syscall.ETIMEDOUT,
}

// connectionKeywords mark an error message as connection-related when no
// typed information is available.
var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"dial tcp",
	"network",
	"timeout",
}

// countsAsFailure decides whether an error from the wrapped operation counts
// toward opening the circuit. The first matching rule wins:
//
//  1. A configured IsFailure predicate is authoritative.
//  2. An error carrying an HTTP-like status code counts iff the code is in
//     the configured failure set.
//  3. With the network heuristic enabled, connection-level errors count.
//  4. Anything else does not affect circuit health.
func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	code, hasCode := errorStatusCode(err)

	if cb.opts.IsFailure != nil {
		return cb.opts.IsFailure(err, code)
	}

	if hasCode {
		_, failing := cb.failureCodes[code]
		return failing
	}

	if !cb.opts.IgnoreNetworkErrors && isNetworkError(err) {
		return true
	}

	return false
}

// errorStatusCode extracts an HTTP-like status code from anywhere in the
// error chain. The second return is false when no code is carried.
func errorStatusCode(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// isNetworkError reports whether err looks like a connection-level failure:
// a timeout, a known connection errno, or a message matching one of the
// connection keywords.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range connectionErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range connectionKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}
