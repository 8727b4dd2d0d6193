// Package commands implements the ntlmgatectl CLI for managing the gateway
// user store.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/cmd/ntlmgatectl/commands/user"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ntlmgatectl",
	Short: "ntlmgatectl - manage ntlmgate users",
	Long: `ntlmgatectl manages the accounts that can authenticate through an
ntlmgate server. Accounts live in the users file referenced by the server
configuration; the server picks up edits without a restart.

Use "ntlmgatectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ntlmgatectl %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(user.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
