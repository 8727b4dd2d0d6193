package user

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/cli/prompt"
	"github.com/marmos91/ntlmgate/pkg/identity"
)

var passwdCmd = &cobra.Command{
	Use:     "passwd <username>",
	Aliases: []string{"password"},
	Short:   "Change a user's password",
	Args:    cobra.ExactArgs(1),
	RunE:    runPasswd,
}

func runPasswd(cmd *cobra.Command, args []string) error {
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

	password, err := prompt.NewPassword()
	if err != nil {
		return err
	}

	u.SetNTHashFromPassword(password)
	if err := store.Save(); err != nil {
		return err
	}

	fmt.Printf("Password updated for %q\n", u.QualifiedName())
	return nil
}
