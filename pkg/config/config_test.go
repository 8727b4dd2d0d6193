package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/ntlm/callback", cfg.Auth.CallbackPath)
	assert.Equal(t, 5*time.Minute, cfg.Auth.CacheTTL)
	assert.Equal(t, "NTLMGATE", cfg.Auth.TargetName)
	assert.Equal(t, TokenModeDeterministic, cfg.Auth.TokenMode)
	assert.True(t, cfg.Auth.WatchUsersFile)
	assert.Equal(t, "ntlmgate_session", cfg.Session.CookieName)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  port: 9000
auth:
  callback_path: /auth/ntlm
  cache_ttl: 2m
  target_name: GATE01
  target_domain: CORP
  token_mode: random
  users_file: /etc/ntlmgate/users.yaml
session:
  ttl: 1h
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level should be normalized to uppercase")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/auth/ntlm", cfg.Auth.CallbackPath)
	assert.Equal(t, 2*time.Minute, cfg.Auth.CacheTTL)
	assert.Equal(t, "GATE01", cfg.Auth.TargetName)
	assert.Equal(t, "CORP", cfg.Auth.TargetDomain)
	assert.Equal(t, TokenModeRandom, cfg.Auth.TokenMode)
	assert.True(t, cfg.Metrics.Enabled)

	// Unset fields fall back to defaults
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Auth.WatchUsersFile, "watch defaults on even with a config file present")
	assert.Equal(t, time.Hour, cfg.Session.TTL, "ttl from file wins over default")
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)
	t.Setenv("NTLMGATE_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"BadLogLevel", "logging:\n  level: verbose\n"},
		{"BadLogFormat", "logging:\n  format: xml\n"},
		{"BadPort", "server:\n  port: 70000\n"},
		{"BadTokenMode", "auth:\n  token_mode: guess\n"},
		{"RelativeCallbackPath", "auth:\n  callback_path: ntlm/callback\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "logging: [not a mapping"))
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Auth.TokenSecret = "super-secret"
	require.NoError(t, SaveConfig(cfg, path))

	// Secrets live here, so owner-only
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Auth.CallbackPath, loaded.Auth.CallbackPath)
	assert.Equal(t, "super-secret", loaded.Auth.TokenSecret)
}

func TestGetDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, Validate(GetDefaultConfig()))
}

func TestDurationDecodeHookFormats(t *testing.T) {
	path := writeConfig(t, `
shutdown_timeout: 45s
auth:
  cache_ttl: 90s
session:
  ttl: 12h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 90*time.Second, cfg.Auth.CacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
}
