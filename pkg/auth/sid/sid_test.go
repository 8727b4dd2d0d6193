package sid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"DomainUser", "S-1-5-21-1004336348-1177238915-682003330-1001"},
		{"Everyone", "S-1-1-0"},
		{"Administrators", "S-1-5-32-544"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sid, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, sid.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"NoPrefix", "1-5-21-1-2-3"},
		{"Empty", ""},
		{"MissingAuthority", "S-1"},
		{"NonNumeric", "S-1-5-abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestEqual(t *testing.T) {
	a, err := Parse("S-1-5-21-1-2-3-1001")
	require.NoError(t, err)
	b, err := Parse("S-1-5-21-1-2-3-1001")
	require.NoError(t, err)
	c, err := Parse("S-1-5-21-1-2-3-1002")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestMapperRoundTrip(t *testing.T) {
	m := GenerateMachineSID()

	parsed, err := NewMapperFromString(m.MachineSIDString())
	require.NoError(t, err)
	assert.Equal(t, m.MachineSIDString(), parsed.MachineSIDString())
}

func TestMapperRejectsNonMachineSID(t *testing.T) {
	_, err := NewMapperFromString("S-1-5-32-544")
	assert.Error(t, err)

	_, err = NewMapperFromString("not-a-sid")
	assert.Error(t, err)
}

func TestUserSIDStable(t *testing.T) {
	m, err := NewMapperFromString("S-1-5-21-1004336348-1177238915-682003330")
	require.NoError(t, err)

	sid1 := m.UserSID("alice")
	sid2 := m.UserSID("alice")
	assert.True(t, sid1.Equal(sid2), "same username should map to the same SID")

	other := m.UserSID("bob")
	assert.False(t, sid1.Equal(other), "different usernames should map to different SIDs")
}

func TestUserSIDAvoidsWellKnownRIDs(t *testing.T) {
	m := GenerateMachineSID()

	// Short names hash to small values; the RID must still clear the
	// reserved range.
	sid := m.UserSID("a")
	rid := sid.SubAuthorities[len(sid.SubAuthorities)-1]
	assert.GreaterOrEqual(t, rid, uint32(1000))
}
