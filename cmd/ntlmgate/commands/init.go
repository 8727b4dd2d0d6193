package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize an ntlmgate configuration file with fresh secrets.

By default, the configuration file is created at $XDG_CONFIG_HOME/ntlmgate/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  ntlmgate init

  # Initialize with custom path
  ntlmgate init --config /etc/ntlmgate/config.yaml

  # Force overwrite existing config
  ntlmgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	cfg := config.GetDefaultConfig()
	cfg.Auth.TokenSecret = randomSecret()
	cfg.Session.Secret = randomSecret()

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add users with: ntlmgatectl user add <username>")
	fmt.Println("  2. Start the server with: ntlmgate start")
	fmt.Printf("  3. Or specify custom config: ntlmgate start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  Random token and session secrets have been generated. The config file")
	fmt.Println("  and the users file contain secret material; keep them readable only by")
	fmt.Println("  the service account.")

	return nil
}

// randomSecret returns 32 bytes of entropy as a hex string.
func randomSecret() string {
	buf := make([]byte, 32)
	// crypto/rand.Read never fails on supported platforms
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
