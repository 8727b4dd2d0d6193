// Package config loads and validates the ntlmgate configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (NTLMGATE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the ntlmgate gateway configuration.
//
// This structure captures the static configuration of the server: logging,
// the HTTP listener, NTLM handshake behavior, session cookie issuance, and
// metrics. Users are managed separately through the users file (see
// Auth.UsersFile and ntlmgatectl).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains HTTP listener configuration
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Auth contains NTLM handshake configuration
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Session contains session cookie configuration
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the address to bind. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port
	// Default: 8080
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum keep-alive wait between requests
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// Token derivation modes for handshake session tokens.
const (
	// TokenModeDeterministic derives tokens from the caller properties, so a
	// retried redirect lands on the same handshake.
	TokenModeDeterministic = "deterministic"

	// TokenModeRandom issues a fresh random token per handshake.
	TokenModeRandom = "random"
)

// AuthConfig configures the NTLM handshake.
type AuthConfig struct {
	// CallbackPath is the stable path the browser negotiates NTLM against.
	// Must start with "/".
	// Default: /ntlm/callback
	CallbackPath string `mapstructure:"callback_path" validate:"required,startswith=/" yaml:"callback_path"`

	// CacheTTL bounds how long a client may take to complete a handshake.
	// Default: 5m
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"required,gt=0" yaml:"cache_ttl"`

	// TargetName is the server name advertised in Type 2 challenges.
	// Default: NTLMGATE
	TargetName string `mapstructure:"target_name" validate:"required" yaml:"target_name"`

	// TargetDomain is the NetBIOS domain advertised in Type 2 challenges.
	// May be empty for workgroup-style deployments.
	TargetDomain string `mapstructure:"target_domain" yaml:"target_domain,omitempty"`

	// TokenMode selects how session tokens are derived
	// Valid values: deterministic, random
	TokenMode string `mapstructure:"token_mode" validate:"required,oneof=deterministic random" yaml:"token_mode"`

	// TokenSecret keys deterministic token derivation. Generated by
	// 'ntlmgate init'; a random per-process secret is used when empty,
	// which breaks token determinism across restarts.
	TokenSecret string `mapstructure:"token_secret" yaml:"token_secret,omitempty"`

	// UsersFile is the path to the YAML users file.
	UsersFile string `mapstructure:"users_file" validate:"required" yaml:"users_file"`

	// WatchUsersFile reloads the users file on external modification.
	// Default: true
	WatchUsersFile bool `mapstructure:"watch_users_file" yaml:"watch_users_file"`
}

// SessionConfig configures the session cookie issued after a successful
// handshake.
type SessionConfig struct {
	// CookieName is the session cookie name
	// Default: ntlmgate_session
	CookieName string `mapstructure:"cookie_name" validate:"required" yaml:"cookie_name"`

	// Secret signs session JWTs. Generated by 'ntlmgate init'; a random
	// per-process secret is used when empty, which invalidates sessions
	// across restarts.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// TTL is the session lifetime
	// Default: 8h
	TTL time.Duration `mapstructure:"ttl" validate:"required,gt=0" yaml:"ttl"`

	// Secure marks the session cookie as HTTPS-only
	// Default: false (set true behind TLS)
	Secure bool `mapstructure:"secure" yaml:"secure"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the metrics endpoint path on the main listener
	// Default: /metrics
	Path string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  ntlmgate init\n\n"+
				"Or specify a custom config file:\n"+
				"  ntlmgate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  ntlmgate init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
//
// The file is written with restricted permissions (0600): it carries the
// token and session secrets.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the NTLMGATE_ prefix and underscores.
	// Example: NTLMGATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NTLMGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// True-default booleans cannot go through ApplyDefaults (a false zero
	// value is indistinguishable from an explicit false there).
	v.SetDefault("auth.watch_users_file", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/ntlmgate/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config paths surface as os.PathError instead
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the decode hooks for custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ntlmgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "ntlmgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
