package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryJobCache is the in-process JobStore used when Redis is disabled
type MemoryJobCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]JobStatus
	now     func() time.Time
}

// NewMemoryJobCache creates an in-memory store. A zero ttl keeps entries
// until Close.
func NewMemoryJobCache(ttl time.Duration) *MemoryJobCache {
	return &MemoryJobCache{
		ttl:     ttl,
		entries: make(map[string]JobStatus),
		now:     time.Now,
	}
}

// Put stores the status
func (m *MemoryJobCache) Put(ctx context.Context, status JobStatus) error {
	if status.ID == "" {
		return errors.New("job id is required")
	}
	status.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[status.ID] = status
	m.evictLocked()
	return nil
}

// Get returns a stored status that has not expired
func (m *MemoryJobCache) Get(ctx context.Context, id string) (JobStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.entries[id]
	if !ok || m.expired(status) {
		return JobStatus{}, false, nil
	}
	return status, true, nil
}

// Close drops every entry
func (m *MemoryJobCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]JobStatus)
	return nil
}

func (m *MemoryJobCache) expired(s JobStatus) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryJobCache) evictLocked() {
	for id, s := range m.entries {
		if m.expired(s) {
			delete(m.entries, id)
		}
	}
}
