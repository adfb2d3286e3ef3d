// Package config loads and validates application settings from the
// environment. It exposes typed sections for the HTTP server, the
// database, token validation, and the cleanup policy so callers never
// reach for raw environment variables.
package config
