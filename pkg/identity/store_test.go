package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileUserStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	store, err := NewFileUserStore(path)
	require.NoError(t, err)
	return store, path
}

func TestMissingFileStartsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	users, err := store.ListUsers()
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = store.GetUser("alice")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddAndGetUser(t *testing.T) {
	store, _ := newTestStore(t)

	u := &User{Username: "alice", Domain: "CORP", Enabled: true}
	u.SetNTHashFromPassword("secret")
	require.NoError(t, store.AddUser(u))

	got, err := store.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.NotEmpty(t, got.ID, "store should assign a UUID")
	assert.NotEmpty(t, got.SID, "store should derive a SID")

	// Lookup is case-insensitive
	got2, err := store.GetUser("ALICE")
	require.NoError(t, err)
	assert.Same(t, got, got2)
}

func TestAddDuplicateUser(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.AddUser(&User{Username: "alice", Enabled: true}))
	err := store.AddUser(&User{Username: "Alice", Enabled: true})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRemoveUser(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.AddUser(&User{Username: "alice", Enabled: true}))
	require.NoError(t, store.RemoveUser("alice"))

	_, err := store.GetUser("alice")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, store.RemoveUser("alice"), ErrUserNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	store, path := newTestStore(t)

	u := &User{Username: "alice", Domain: "CORP", Enabled: true}
	u.SetNTHashFromPassword("secret")
	require.NoError(t, store.AddUser(u))

	// File should be owner-only: it contains NT hashes
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := NewFileUserStore(path)
	require.NoError(t, err)

	got, err := reloaded.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID, "UUID should survive reload")
	assert.Equal(t, u.SID, got.SID, "SID should survive reload")
	assert.Equal(t, u.NTHash, got.NTHash)
}

func TestSIDStableAcrossReloads(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.AddUser(&User{Username: "alice", Enabled: true}))

	first, err := store.GetUser("alice")
	require.NoError(t, err)

	reloaded, err := NewFileUserStore(path)
	require.NoError(t, err)
	second, err := reloaded.GetUser("alice")
	require.NoError(t, err)

	assert.Equal(t, first.SID, second.SID,
		"machine SID persistence should keep user SIDs stable")
}

func TestLoadRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	doc := `users:
  - username: alice
    enabled: true
  - username: ALICE
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	_, err := NewFileUserStore(path)
	assert.Error(t, err)
}
