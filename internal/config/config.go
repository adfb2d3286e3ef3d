package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"  validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains authentication settings. Token issuance lives with
// the surrounding application; this service only validates bearer tokens
// on subscriber connections.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// CleanupConfig controls the expired-record sweep.
type CleanupConfig struct {
	MaxTaskAgeSeconds int  `mapstructure:"max_task_age_seconds" validate:"required,gt=0"`
	OnlyIfSeen        bool `mapstructure:"only_if_seen"`
}

// MaxTaskAge returns the configured maximum record age as a duration.
func (c CleanupConfig) MaxTaskAge() time.Duration {
	return time.Duration(c.MaxTaskAgeSeconds) * time.Second
}
