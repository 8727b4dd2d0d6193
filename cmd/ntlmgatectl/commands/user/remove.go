package user

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/cli/prompt"
	"github.com/marmos91/ntlmgate/pkg/identity"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:     "remove <username>",
	Aliases: []string{"delete", "rm"},
	Short:   "Remove a user",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Remove without confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	username := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	u, err := store.GetUser(username)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	if !removeForce {
		ok, err := prompt.Confirm(fmt.Sprintf("Remove user %q", u.QualifiedName()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled")
			return nil
		}
	}

	if err := store.RemoveUser(username); err != nil {
		return err
	}

	fmt.Printf("User %q removed\n", u.QualifiedName())
	return nil
}
