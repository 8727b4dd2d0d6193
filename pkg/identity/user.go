// Package identity provides the user model and credential store backing
// NTLM authentication.
//
// Users are stored in a YAML file holding NT hashes rather than passwords.
// The file is the source of cryptographic truth for the local challenge
// validator: if an account has no NT hash it cannot complete a handshake.
package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/marmos91/ntlmgate/pkg/ntlm"
)

// User represents an account that can authenticate through the gateway.
type User struct {
	// ID is the unique identifier for the user (UUID). This becomes the
	// name-identifier claim of the authenticated identity.
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Username is the unique account name, without domain qualification.
	Username string `json:"username" yaml:"username" mapstructure:"username"`

	// Domain is the NetBIOS domain the account belongs to. May be empty for
	// accounts authenticating as "user" rather than "DOMAIN\user".
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty" mapstructure:"domain"`

	// NTHash is the hex-encoded NT hash of the user's password:
	// MD4(UTF16LE(password)).
	//
	// SECURITY WARNING:
	//   - This value can be used for pass-the-hash attacks without knowing
	//     the original password.
	//   - The users file MUST be treated as secret material and restricted
	//     to the service account (chmod 600 on Unix-like systems).
	NTHash string `json:"-" yaml:"nt_hash" mapstructure:"nt_hash"`

	// SID is the user's security identifier string. If empty, the store
	// derives one from the machine SID at load time.
	SID string `json:"sid,omitempty" yaml:"sid,omitempty" mapstructure:"sid"`

	// Enabled indicates whether the account is active.
	// Disabled users cannot authenticate.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// DisplayName is the human-readable name for the user.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty" mapstructure:"display_name"`
}

// QualifiedName returns the account name in "DOMAIN\user" form, or the bare
// username when the account has no domain.
func (u *User) QualifiedName() string {
	if u.Domain == "" {
		return u.Username
	}
	return u.Domain + `\` + u.Username
}

// GetNTHash returns the NT hash as a 16-byte array.
// Returns false if the NTHash field is empty or invalid.
func (u *User) GetNTHash() ([16]byte, bool) {
	var ntHash [16]byte
	if u.NTHash == "" {
		return ntHash, false
	}

	decoded, err := hex.DecodeString(u.NTHash)
	if err != nil || len(decoded) != 16 {
		return ntHash, false
	}

	copy(ntHash[:], decoded)
	return ntHash, true
}

// SetNTHashFromPassword computes and sets the NT hash from a plaintext
// password. The password itself is never stored.
func (u *User) SetNTHashFromPassword(password string) {
	ntHash := ntlm.ComputeNTHash(password)
	u.NTHash = hex.EncodeToString(ntHash[:])
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.NTHash != "" {
		if _, ok := u.GetNTHash(); !ok {
			return fmt.Errorf("user %q: nt_hash must be 32 hex characters", u.Username)
		}
	}
	return nil
}
