package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//
// Booleans whose default is true (WatchUsersFile) are handled via viper
// defaults and GetDefaultConfig instead, since a false zero value is
// indistinguishable from an explicit false here.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(&cfg.Server)
	applyAuthDefaults(&cfg.Auth)
	applySessionDefaults(&cfg.Session)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyServerDefaults sets HTTP listener defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyAuthDefaults sets NTLM handshake defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/ntlm/callback"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TargetName == "" {
		cfg.TargetName = "NTLMGATE"
	}
	if cfg.TokenMode == "" {
		cfg.TokenMode = TokenModeDeterministic
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = filepath.Join(getConfigDir(), "users.yaml")
	}
	// TokenSecret has no default - generated during init
}

// applySessionDefaults sets session cookie defaults.
func applySessionDefaults(cfg *SessionConfig) {
	if cfg.CookieName == "" {
		cfg.CookieName = "ntlmgate_session"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 8 * time.Hour
	}
	// Secret has no default - generated during init
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files (ntlmgate init)
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{
			WatchUsersFile: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
