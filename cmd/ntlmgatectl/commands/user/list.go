package user

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/cli/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all users",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	users, err := store.ListUsers()
	if err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("No users configured. Add one with: ntlmgatectl user add <username>")
		return nil
	}

	table := output.NewTable("USERNAME", "DOMAIN", "SID", "ENABLED", "DISPLAY NAME")
	for _, u := range users {
		enabled := "yes"
		if !u.Enabled {
			enabled = "no"
		}
		table.AddRow(u.Username, u.Domain, u.SID, enabled, u.DisplayName)
	}
	table.Render(os.Stdout)

	return nil
}
