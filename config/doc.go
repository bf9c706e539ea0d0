// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, circuit breaker thresholds, upstream URLs, and
// health check probing.
package config
