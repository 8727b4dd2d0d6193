package sid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Mapper assigns stable per-user SIDs under a machine SID.
//
// The machine SID is of the form S-1-5-21-{a}-{b}-{c} where a, b, c are
// randomly generated 32-bit values persisted in configuration. Users get a
// RID derived from their username, so the same installation always maps a
// given account to the same SID without any allocation state.
type Mapper struct {
	machineSID [3]uint32
}

// NewMapperFromString parses a machine SID string like "S-1-5-21-{a}-{b}-{c}"
// and creates a mapper.
func NewMapperFromString(sidStr string) (*Mapper, error) {
	sid, err := Parse(sidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid machine SID string: %w", err)
	}

	if sid.Revision != 1 ||
		sid.IdentifierAuthority != [6]byte{0, 0, 0, 0, 0, 5} ||
		len(sid.SubAuthorities) != 4 ||
		sid.SubAuthorities[0] != 21 {
		return nil, fmt.Errorf("machine SID must be S-1-5-21-{a}-{b}-{c}, got %s", sidStr)
	}

	return &Mapper{
		machineSID: [3]uint32{
			sid.SubAuthorities[1],
			sid.SubAuthorities[2],
			sid.SubAuthorities[3],
		},
	}, nil
}

// GenerateMachineSID creates a new mapper with randomly generated
// sub-authorities. The result should be persisted via MachineSIDString so
// SIDs stay stable across restarts.
func GenerateMachineSID() *Mapper {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	return &Mapper{
		machineSID: [3]uint32{
			binary.LittleEndian.Uint32(buf[0:4]),
			binary.LittleEndian.Uint32(buf[4:8]),
			binary.LittleEndian.Uint32(buf[8:12]),
		},
	}
}

// MachineSIDString returns the machine SID as "S-1-5-21-{a}-{b}-{c}".
func (m *Mapper) MachineSIDString() string {
	return fmt.Sprintf("S-1-5-21-%d-%d-%d",
		m.machineSID[0], m.machineSID[1], m.machineSID[2])
}

// UserSID returns the SID for a username.
//
// The RID is a hash of the username offset past the well-known range
// (RIDs below 1000 are reserved on Windows).
func (m *Mapper) UserSID(username string) *SID {
	return &SID{
		Revision:            1,
		IdentifierAuthority: [6]byte{0, 0, 0, 0, 0, 5},
		SubAuthorities: []uint32{
			21,
			m.machineSID[0],
			m.machineSID[1],
			m.machineSID[2],
			ridForName(username),
		},
	}
}

// ridForName derives a stable RID from a username.
func ridForName(name string) uint32 {
	var rid uint32
	for _, c := range name {
		rid = rid*31 + uint32(c)
	}
	if rid < 1000 {
		rid += 1000
	}
	return rid
}
