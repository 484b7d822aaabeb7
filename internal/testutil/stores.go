// stores.go
//
// Shared mock implementations of the user directory and the session cache.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hieuhoangm38/Ecommerce/internal/store"
)

// MockStore implements the user directory for tests.

// Always stateful...Users is a map keyed by id, like a real table.
// Use *Err fields to inject errors for specific operations.
// Use NewMockStore to seed users; or construct directly and set *Err fields for error-path tests.
type MockStore struct {
	// Error injection...zero value means no error
	CreateUserErr error
	GetUserErr    error
	ListUsersErr  error
	UpdateUserErr error
	DeleteUserErr error
	HealthErr     error

	Users  map[int64]*store.User
	nextID int64

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
// Users with ID 0 get the next free id.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{Users: make(map[int64]*store.User)}
	for _, u := range users {
		if u.ID == 0 {
			ms.nextID++
			u.ID = ms.nextID
		}
		ms.nextID = max(ms.nextID, u.ID)
		ms.Users[u.ID] = u
	}
	return ms
}

func (m *MockStore) CreateUser(_ context.Context, u *store.User) (int64, error) {
	if m.CreateUserErr != nil {
		return 0, m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Users == nil {
		m.Users = make(map[int64]*store.User)
	}
	for _, existing := range m.Users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return 0, store.ErrUsernameTaken
		}
	}
	m.nextID++
	cp := *u
	cp.ID = m.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.Users[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MockStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (m *MockStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	return m.find(func(u *store.User) bool { return u.Username == username })
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	return m.find(func(u *store.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MockStore) find(match func(*store.User) bool) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if match(u) {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *MockStore) ListUsers(_ context.Context) ([]*store.User, error) {
	if m.ListUsersErr != nil {
		return nil, m.ListUsersErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*store.User, 0, len(m.Users))
	for _, u := range m.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MockStore) UpdateUser(_ context.Context, id int64, upd store.UserUpdate) error {
	if m.UpdateUserErr != nil {
		return m.UpdateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	if upd.Username != nil {
		for _, other := range m.Users {
			if other.ID != id && other.Username == *upd.Username {
				return store.ErrUsernameTaken
			}
		}
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = upd.LastName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) DeleteUser(_ context.Context, id int64) error {
	if m.DeleteUserErr != nil {
		return m.DeleteUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(m.Users, id)
	return nil
}

func (m *MockStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// cacheEntry is one MockCache key: a string value or a hash, plus its expiry.
type cacheEntry struct {
	value     string
	fields    map[string]string
	expiresAt time.Time
}

// MockCache implements the session cache for tests.
// Always stateful...entries expire against Now, which tests can move with Advance.
// Use *Err fields to inject errors for specific operations.
type MockCache struct {
	// Error injection...zero value means no error
	GetErr    error
	SetErr    error
	DeleteErr error
	ExistsErr error
	HashErr   error
	HealthErr error

	entries map[string]*cacheEntry
	now     time.Time

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache whose clock starts at the real current time.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now(),
	}
}

// Now returns the cache's current time. Pass it as the clock to components under test
// so token expiry and cache TTLs move together.
func (m *MockCache) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the cache clock forward by d, expiring entries whose TTL has elapsed.
func (m *MockCache) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// live returns the unexpired entry at key, evicting it if expired. Caller holds mu.
func (m *MockCache) live(key string) (*cacheEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now.Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.fields != nil {
		return "", store.ErrCacheMiss
	}
	return e.value, nil
}

func (m *MockCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	if ttl <= 0 {
		return store.ErrInvalidTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*cacheEntry)
	}
	m.entries[key] = &cacheEntry{value: value, expiresAt: m.now.Add(ttl)}
	return nil
}

func (m *MockCache) Delete(_ context.Context, key string) (bool, error) {
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(key)
	delete(m.entries, key)
	return ok, nil
}

func (m *MockCache) Exists(_ context.Context, key string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(key)
	return ok, nil
}

func (m *MockCache) HashGet(_ context.Context, key, field string) (string, error) {
	if m.HashErr != nil {
		return "", m.HashErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.fields == nil {
		return "", store.ErrCacheMiss
	}
	v, ok := e.fields[field]
	if !ok {
		return "", store.ErrCacheMiss
	}
	return v, nil
}

func (m *MockCache) HashSet(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if m.HashErr != nil {
		return m.HashErr
	}
	if ttl <= 0 {
		return store.ErrInvalidTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*cacheEntry)
	}
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.entries[key] = &cacheEntry{fields: cp, expiresAt: m.now.Add(ttl)}
	return nil
}

func (m *MockCache) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.fields != nil || e.value != expected {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MockCache) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return 0, store.ErrCacheMiss
	}
	return e.expiresAt.Sub(m.now), nil
}

func (m *MockCache) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// Keys returns the live keys, sorted. Handy for asserting "exactly one challenge" style properties.
func (m *MockCache) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if _, ok := m.live(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
