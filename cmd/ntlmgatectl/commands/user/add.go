package user

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/cli/prompt"
	"github.com/marmos91/ntlmgate/pkg/identity"
)

var (
	addDomain      string
	addDisplayName string
	addDisabled    bool
)

var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a new user",
	Long: `Add a new user to the users file. Prompts for a password and stores
its NT hash.

Examples:
  ntlmgatectl user add alice
  ntlmgatectl user add alice --domain CORP --display-name "Alice Smith"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addDomain, "domain", "", "NetBIOS domain the account belongs to")
	addCmd.Flags().StringVar(&addDisplayName, "display-name", "", "Human-readable name")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Create the account disabled")
}

func runAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if _, err := store.GetUser(username); err == nil {
		return fmt.Errorf("user %q already exists", username)
	}

	password, err := prompt.NewPassword()
	if err != nil {
		return err
	}

	u := &identity.User{
		Username:    username,
		Domain:      addDomain,
		DisplayName: addDisplayName,
		Enabled:     !addDisabled,
	}
	u.SetNTHashFromPassword(password)

	if err := store.AddUser(u); err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}

	fmt.Printf("User %q added (sid: %s)\n", u.QualifiedName(), u.SID)
	return nil
}
