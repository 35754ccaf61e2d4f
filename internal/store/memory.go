package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khayashi/engawa/internal/clock"
)

const (
	// maxEntries caps the in-memory store; above this the oldest entries are
	// force-evicted so a flood of unique identifiers cannot exhaust memory.
	maxEntries = 10_000

	// sweepInterval is how often expired entries are lazily swept.
	sweepInterval = 30 * time.Second
)

type memoryEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time // zero means no expiry
}

// Memory is a concurrency-safe in-process Store. It is the default backend
// for single-instance deployments; swap in the redis Store for multi-process
// ones.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	clk       clock.Clock
	lastSweep time.Time
}

// NewMemory creates an in-memory store. The clock is injected so tests can
// advance virtual time.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		entries:   make(map[string]*memoryEntry),
		clk:       clk,
		lastSweep: clk.Now(),
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.expired(entry) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(len(m.entries) >= maxEntries)

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clk.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(len(m.entries) >= maxEntries)

	now := m.clk.Now()
	entry, ok := m.entries[key]
	if !ok || m.expired(entry) {
		entry = &memoryEntry{count: 1, expiresAt: now.Add(window)}
		m.entries[key] = entry
		return 1, entry.expiresAt, nil
	}

	entry.count++
	return entry.count, entry.expiresAt, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	return nil
}

// PurgeExpired removes expired entries immediately. Called by the background
// cleanup manager.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.entries)
	m.removeExpiredLocked()
	m.lastSweep = m.clk.Now()
	return before - len(m.entries)
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) expired(entry *memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.clk.Now().Before(entry.expiresAt)
}

// sweepLocked drops expired entries at most once per sweepInterval, or
// immediately when forced. When the store still exceeds maxEntries after the
// sweep, the entries closest to expiry are evicted first.
func (m *Memory) sweepLocked(force bool) {
	now := m.clk.Now()
	if !force && now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now

	m.removeExpiredLocked()

	if len(m.entries) <= maxEntries {
		return
	}

	type aged struct {
		key       string
		expiresAt time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for key, entry := range m.entries {
		all = append(all, aged{key: key, expiresAt: entry.expiresAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].expiresAt.Before(all[j].expiresAt) })

	for i := 0; i < len(all)-maxEntries; i++ {
		delete(m.entries, all[i].key)
	}
}

func (m *Memory) removeExpiredLocked() {
	for key, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, key)
		}
	}
}
