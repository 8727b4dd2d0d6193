package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/logger"
	"github.com/marmos91/ntlmgate/pkg/api"
	"github.com/marmos91/ntlmgate/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ntlmgate server",
	Long: `Start the ntlmgate server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/ntlmgate/config.yaml.

Examples:
  # Start with default config location
  ntlmgate start

  # Start with custom config file
  ntlmgate start --config /etc/ntlmgate/config.yaml

  # Start with environment variable overrides
  NTLMGATE_LOGGING_LEVEL=DEBUG ntlmgate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"source", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format)

	srv, err := api.NewServer(cfg, nil)
	if err != nil {
		return err
	}

	// Serve until SIGINT/SIGTERM; Start handles graceful shutdown itself.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", logger.KeyError, err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
