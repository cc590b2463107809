package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/keyword-agent/internal/types"
)

// Memory is an in-process Cache with TTL expiry and an optional size bound
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	seq        uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithTTL sets the entry lifetime
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the cache size; the least recently written entry is evicted first
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxEntries = n }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a Memory cache. A positive sweepInterval starts a
// janitor that drops expired entries until Close is called.
func NewMemory(sweepInterval time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*Entry),
		ttl:     DefaultTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if sweepInterval > 0 {
		go m.janitor(sweepInterval)
	} else {
		close(m.done)
	}
	return m
}

// Get returns a copy of the stored result
func (m *Memory) Get(_ context.Context, key string) (*types.ResearchResult, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(m.now()) {
		m.mu.Lock()
		if current, ok := m.entries[key]; ok && current == entry {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.Result.Clone(), true, nil
}

// Put stores a copy of result, replacing any entry under key
func (m *Memory) Put(_ context.Context, key string, result *types.ResearchResult) error {
	if result == nil {
		return nil
	}
	now := m.now()
	entry := &Entry{
		Key:       key,
		Result:    result.Clone(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	entry.seq = m.seq
	m.entries[key] = entry
	if m.maxEntries > 0 && len(m.entries) > m.maxEntries {
		m.evictOldest()
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops expired entries and returns how many were removed
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Close stops the janitor. It is safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// evictOldest must be called with mu held
func (m *Memory) evictOldest() {
	var oldest *Entry
	for _, entry := range m.entries {
		if oldest == nil || entry.seq < oldest.seq {
			oldest = entry
		}
	}
	if oldest != nil {
		delete(m.entries, oldest.Key)
	}
}
