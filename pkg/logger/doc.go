// Package logger builds the application-wide slog logger. Output format
// follows the environment: JSON in prod for log shippers, plain text
// everywhere else.
package logger
