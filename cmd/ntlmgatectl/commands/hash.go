package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/ntlmgate/internal/cli/prompt"
	"github.com/marmos91/ntlmgate/pkg/ntlm"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute the NT hash of a password",
	Long: `Compute the NT hash (MD4 of the UTF-16LE password) for a password
entered interactively. Useful for provisioning users file entries by hand.

The hash grants the same access as the password itself; treat the output
as secret material.`,
	Args: cobra.NoArgs,
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	password, err := prompt.Password("Password")
	if err != nil {
		return err
	}

	ntHash := ntlm.ComputeNTHash(password)
	fmt.Println(hex.EncodeToString(ntHash[:]))
	return nil
}
