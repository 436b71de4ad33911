package recordings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raaihank/snapvault/internal/privacy"
)

// MemoryStore is the Repository used when no database is configured. Its
// contents are lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	recordings []Recording
	snaps      []Snap
	events     []SecurityEvent
	nextID     int64
	now        func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Insert(ctx context.Context, rec Recording, findings []privacy.Finding) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = m.now()
	m.recordings = append(m.recordings, rec)
	m.events = append(m.events, buildEvents(rec, rec.ID, findings)...)
	return rec.ID, nil
}

func (m *MemoryStore) InsertSnap(ctx context.Context, snap Snap) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	snap.ID = m.nextID
	snap.CreatedAt = m.now()
	m.snaps = append(m.snaps, snap)
	return snap.ID, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []Recording
	for _, r := range m.recordings {
		if r.UserID == userID {
			list = append(list, r)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (m *MemoryStore) All(ctx context.Context) ([]Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Recording(nil), m.recordings...), nil
}

func (m *MemoryStore) Stats(ctx context.Context, userID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, s := range m.snaps {
		if s.UserID == userID {
			stats.Snaps++
		}
	}
	for _, r := range m.recordings {
		if r.UserID != userID {
			continue
		}
		stats.Recordings++
		stats.Detections += int64(r.Detections)
		stats.Blurred += int64(r.Blurred)
		stats.Duration += r.Duration
	}

	totals := make(map[string]int64)
	for _, e := range m.events {
		if e.UserID == userID && e.Status == StatusDetected {
			totals[e.ItemType] += int64(e.Count)
		}
	}
	stats.PrivacyMix = buildMix(totals)
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }
