// Package healthcheck implements active recovery probing for upstreams
// with a tripped circuit. It polls their health endpoints and resets the
// circuit breaker once an upstream answers healthy again.
package healthcheck
