package session

import (
	"context"
	"sync"
	"time"

	"github.com/fauter/cochera-admin/internal/clock"
)

type memoryEntry struct {
	blob      []byte
	expiresAt time.Time
}

// MemoryEphemeralStore is the single-process fallback used when Redis is off.
type MemoryEphemeralStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

func NewMemoryEphemeralStore(clk clock.Clock) *MemoryEphemeralStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryEphemeralStore{clock: clk, entries: map[string]memoryEntry{}}
}

func (m *MemoryEphemeralStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !m.clock.Now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	return append([]byte(nil), entry.blob...), nil
}

func (m *MemoryEphemeralStore) Set(_ context.Context, key string, blob []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{blob: append([]byte(nil), blob...)}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryEphemeralStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
