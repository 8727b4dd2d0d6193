// Package sid provides Windows Security Identifier (SID) parsing, formatting,
// and stable per-user SID assignment.
//
// Authenticated NTLM identities carry a SID claim. Deployments backed by a
// local user store do not have a domain controller to hand out SIDs, so this
// package derives them from a per-installation machine SID, the same way a
// standalone Windows server would.
//
// The string format is "S-{Revision}-{Authority}-{SubAuth1}-...-{SubAuthN}".
package sid

import (
	"fmt"
	"strconv"
	"strings"
)

// SID represents a Windows Security Identifier per MS-DTYP Section 2.4.2.
type SID struct {
	// Revision is always 1.
	Revision uint8

	// IdentifierAuthority is the top-level authority (6 bytes, big-endian).
	IdentifierAuthority [6]byte

	// SubAuthorities contains the sub-authority values.
	SubAuthorities []uint32
}

// String formats the SID as "S-1-5-21-..." per MS-DTYP 2.4.2.1.
func (s *SID) String() string {
	var authority uint64
	for i := 0; i < 6; i++ {
		authority = (authority << 8) | uint64(s.IdentifierAuthority[i])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", s.Revision, authority)
	for _, sa := range s.SubAuthorities {
		fmt.Fprintf(&b, "-%d", sa)
	}
	return b.String()
}

// Parse parses a SID string in "S-1-5-21-..." format.
func Parse(s string) (*SID, error) {
	if !strings.HasPrefix(s, "S-") {
		return nil, fmt.Errorf("invalid SID format: must start with S-")
	}

	parts := strings.Split(s[2:], "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid SID format: need at least revision and authority")
	}

	revision, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid SID revision: %w", err)
	}

	authority, err := strconv.ParseUint(parts[1], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("invalid SID authority: %w", err)
	}

	sid := &SID{Revision: uint8(revision)}

	for i := 5; i >= 0; i-- {
		sid.IdentifierAuthority[i] = byte(authority & 0xFF)
		authority >>= 8
	}

	sid.SubAuthorities = make([]uint32, len(parts)-2)
	for i := range sid.SubAuthorities {
		val, err := strconv.ParseUint(parts[i+2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid SID sub-authority %d: %w", i, err)
		}
		sid.SubAuthorities[i] = uint32(val)
	}

	return sid, nil
}

// Equal reports whether two SIDs are identical.
func (s *SID) Equal(other *SID) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if s.Revision != other.Revision || s.IdentifierAuthority != other.IdentifierAuthority {
		return false
	}
	if len(s.SubAuthorities) != len(other.SubAuthorities) {
		return false
	}
	for i := range s.SubAuthorities {
		if s.SubAuthorities[i] != other.SubAuthorities[i] {
			return false
		}
	}
	return true
}
