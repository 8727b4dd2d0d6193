// Package user implements the user management subcommands.
package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/pkg/config"
	"github.com/marmos91/ntlmgate/pkg/identity"
)

var cfgFile string

// Cmd is the "user" command group.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long: `Manage the accounts in the ntlmgate users file.

Passwords are never stored: adding a user or changing a password writes the
NT hash of the password. The users file is secret material; it is written
with owner-only permissions.

Examples:
  ntlmgatectl user add alice --domain CORP
  ntlmgatectl user passwd alice
  ntlmgatectl user list
  ntlmgatectl user remove alice`,
}

func init() {
	Cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/ntlmgate/config.yaml)")

	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(passwdCmd)
}

// openStore loads the configuration and opens the users file it points at.
func openStore() (*identity.FileUserStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := identity.NewFileUserStore(cfg.Auth.UsersFile)
	if err != nil {
		return nil, err
	}
	return store, nil
}
