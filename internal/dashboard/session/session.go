// Package session persists signed-in dashboard sessions and enforces the
// idle timeout before each use.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/pkg/jwt"
)

const (
	KeyAdmin      = "admin_session"
	KeySuperAdmin = "superadmin_session"

	// SuperAdminIdleTimeout matches the server's super admin session policy.
	SuperAdminIdleTimeout = 10 * time.Minute
)

var (
	ErrNoSession   = errors.New("not signed in")
	ErrWrongRole   = errors.New("session does not have the required role")
	ErrIdleExpired = errors.New("session expired after inactivity")
)

type Session struct {
	User         *auth.UserInfo `yaml:"user"`
	Token        string         `yaml:"token"`
	RefreshToken string         `yaml:"refresh_token,omitempty"`
	LastActivity time.Time      `yaml:"last_activity"`
}

// HasRole reports whether the session's user carries role.
func (s *Session) HasRole(role string) bool {
	return s != nil && s.User != nil && slices.Contains(s.User.Roles, role)
}

// Key picks the storage slot for a user's role.
func Key(u *auth.UserInfo) string {
	if u != nil && slices.Contains(u.Roles, jwt.RoleSuperAdmin) {
		return KeySuperAdmin
	}
	return KeyAdmin
}

type Store interface {
	// Get returns nil and no error when key holds no session.
	Get(key string) (*Session, error)
	Set(key string, s *Session) error
	Clear(key string) error
}

type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Session)}
}

func (m *MemoryStore) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Set(key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = *s
	return nil
}

func (m *MemoryStore) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FileStore keeps every session in one YAML file readable only by its owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is ~/.mnetifi/session.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mnetifi", "session.yaml"), nil
}

func (f *FileStore) Get(key string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return nil, err
	}
	s, ok := all[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStore) Set(key string, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return err
	}
	all[key] = *s
	return f.save(all)
}

func (f *FileStore) Clear(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	return f.save(all)
}

func (f *FileStore) load() (map[string]Session, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Session{}, nil
	}
	if err != nil {
		return nil, err
	}
	all := map[string]Session{}
	if err := yaml.Unmarshal(b, &all); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return all, nil
}

func (f *FileStore) save(all map[string]Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(all)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0o600)
}

// Guard admits a stored session when it has the role and has been used
// within IdleTimeout. Zero IdleTimeout disables the idle check.
type Guard struct {
	Store       Store
	Key         string
	Role        string
	IdleTimeout time.Duration

	now func() time.Time
}

// AdminGuard guards tenant admin sessions with an optional idle timeout.
func AdminGuard(store Store, idle time.Duration) *Guard {
	return &Guard{Store: store, Key: KeyAdmin, Role: jwt.RoleAdmin, IdleTimeout: idle}
}

func SuperAdminGuard(store Store) *Guard {
	return &Guard{Store: store, Key: KeySuperAdmin, Role: jwt.RoleSuperAdmin, IdleTimeout: SuperAdminIdleTimeout}
}

func (g *Guard) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

// Check returns the session or why it cannot be used. An idle-expired
// session is cleared from the store.
func (g *Guard) Check() (*Session, error) {
	s, err := g.Store.Get(g.Key)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Token == "" {
		return nil, ErrNoSession
	}
	if g.Role != "" && !s.HasRole(g.Role) {
		return nil, ErrWrongRole
	}
	if g.IdleTimeout > 0 && g.clock().Sub(s.LastActivity) > g.IdleTimeout {
		if err := g.Store.Clear(g.Key); err != nil {
			return nil, err
		}
		return nil, ErrIdleExpired
	}
	return s, nil
}

// Touch checks the session and records activity now.
func (g *Guard) Touch() (*Session, error) {
	s, err := g.Check()
	if err != nil {
		return nil, err
	}
	s.LastActivity = g.clock()
	if err := g.Store.Set(g.Key, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save stores a fresh login for user under the slot for its role.
func Save(store Store, user *auth.UserInfo, token, refresh string, now time.Time) (string, error) {
	key := Key(user)
	return key, store.Set(key, &Session{User: user, Token: token, RefreshToken: refresh, LastActivity: now})
}
