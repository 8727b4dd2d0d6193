package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/ntlmgate/internal/logger"
	"github.com/marmos91/ntlmgate/pkg/auth/sid"
)

// Common errors for UserStore operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserStore is the read interface the challenge validator authenticates
// against. Lookups are case-insensitive on username, matching Windows
// account-name semantics.
type UserStore interface {
	// GetUser finds an enabled or disabled user by account name.
	// Returns ErrUserNotFound if no such account exists.
	GetUser(username string) (*User, error)

	// ListUsers returns all users in the store.
	ListUsers() ([]*User, error)
}

// usersFile is the on-disk YAML document.
type usersFile struct {
	// MachineSID anchors derived user SIDs. Generated on first save when
	// absent so identities stay stable across restarts.
	MachineSID string  `yaml:"machine_sid,omitempty"`
	Users      []*User `yaml:"users"`
}

// FileUserStore is a UserStore backed by a YAML file.
//
// The file can be edited out-of-band (or through ntlmgatectl); Watch picks
// up changes without a restart. All access is mutex-guarded, so lookups are
// safe during a reload.
type FileUserStore struct {
	path string

	mu      sync.RWMutex
	byName  map[string]*User
	users   []*User
	mapper  *sid.Mapper
	watcher *fsnotify.Watcher
}

// NewFileUserStore loads the users file at path.
//
// A missing file is not an error: the store starts empty and the file is
// created on first save. Users without an explicit SID get one derived from
// the machine SID; users without an ID get a fresh UUID (persisted on the
// next save).
func NewFileUserStore(path string) (*FileUserStore, error) {
	s := &FileUserStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := usersFile{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// start empty
	case err != nil:
		return fmt.Errorf("failed to read users file %q: %w", s.path, err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse users file %q: %w", s.path, err)
		}
	}

	mapper, err := mapperFor(doc.MachineSID)
	if err != nil {
		return err
	}

	byName := make(map[string]*User, len(doc.Users))
	for _, u := range doc.Users {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("users file %q: %w", s.path, err)
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if u.SID == "" {
			u.SID = mapper.UserSID(strings.ToLower(u.Username)).String()
		}
		key := strings.ToLower(u.Username)
		if _, dup := byName[key]; dup {
			return fmt.Errorf("users file %q: duplicate username %q", s.path, u.Username)
		}
		byName[key] = u
	}

	s.mapper = mapper
	s.users = doc.Users
	s.byName = byName
	return nil
}

func mapperFor(machineSID string) (*sid.Mapper, error) {
	if machineSID == "" {
		return sid.GenerateMachineSID(), nil
	}
	mapper, err := sid.NewMapperFromString(machineSID)
	if err != nil {
		return nil, fmt.Errorf("users file machine_sid: %w", err)
	}
	return mapper, nil
}

// GetUser finds a user by account name (case-insensitive).
func (s *FileUserStore) GetUser(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// ListUsers returns all users in the store.
func (s *FileUserStore) ListUsers() ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, len(s.users))
	copy(out, s.users)
	return out, nil
}

// AddUser adds a user and persists the file.
// Returns ErrUserExists if the username is already taken.
func (s *FileUserStore) AddUser(u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	key := strings.ToLower(u.Username)
	if _, dup := s.byName[key]; dup {
		s.mu.Unlock()
		return ErrUserExists
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SID == "" {
		u.SID = s.mapper.UserSID(key).String()
	}
	s.users = append(s.users, u)
	s.byName[key] = u
	s.mu.Unlock()

	return s.Save()
}

// RemoveUser deletes a user and persists the file.
func (s *FileUserStore) RemoveUser(username string) error {
	s.mu.Lock()
	key := strings.ToLower(username)
	if _, ok := s.byName[key]; !ok {
		s.mu.Unlock()
		return ErrUserNotFound
	}
	delete(s.byName, key)
	for i, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			s.users = append(s.users[:i], s.users[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return s.Save()
}

// Save writes the current users back to disk with owner-only permissions
// (the file contains NT hashes).
func (s *FileUserStore) Save() error {
	s.mu.RLock()
	doc := usersFile{
		MachineSID: s.mapper.MachineSIDString(),
		Users:      s.users,
	}
	data, err := yaml.Marshal(&doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode users file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create users directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write users file %q: %w", s.path, err)
	}
	return nil
}

// Watch starts watching the users file for external modifications and
// reloads it on change. Stop watching with Close.
func (s *FileUserStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create users file watcher: %w", err)
	}

	// Watch the directory: editors replace files rather than writing in
	// place, which drops the watch on the inode itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch users directory: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.load(); err != nil {
					logger.Error("users file reload failed", "path", s.path, "error", err)
					continue
				}
				logger.Info("users file reloaded", "path", s.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("users file watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (s *FileUserStore) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}
