// Package logger configures structured JSON logging on top of the
// standard library's log/slog and propagates a request-scoped logger
// through context.
package logger
