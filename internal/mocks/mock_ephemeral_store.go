package mocks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/you/accountsvc/domain"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MockEphemeralStore is an in-memory domain.EphemeralStore with per-key
// expiry. Setting Err makes every operation fail, which simulates an
// unreachable store. Now may be replaced to move time forward.
type MockEphemeralStore struct {
	Err error
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMockEphemeralStore creates an empty store on the wall clock
func NewMockEphemeralStore() *MockEphemeralStore {
	return &MockEphemeralStore{
		Now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MockEphemeralStore) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MockEphemeralStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	e, ok := m.live(key)
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return e.value, nil
}

func (m *MockEphemeralStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.Now().Add(ttl)}
	return nil
}

func (m *MockEphemeralStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	e, ok := m.live(key)
	if !ok {
		e = memoryEntry{value: "0", expiresAt: m.Now().Add(ttl)}
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	return n, nil
}

func (m *MockEphemeralStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MockEphemeralStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	e, ok := m.live(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// Compile-time interface compliance verification
var _ domain.EphemeralStore = (*MockEphemeralStore)(nil)
