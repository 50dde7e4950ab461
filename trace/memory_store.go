package trace

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/types"
)

type memoryEntry struct {
	trace types.Trace
	seq   uint64
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
// Reads sort by (timestamp, insertion sequence) so a direct append landing
// between a pending entry's staging and its flush still comes back in
// timestamp order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]memoryEntry
	nextSeq uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID][]memoryEntry)}
}

// Insert appends one entry to the session's log.
func (s *MemoryStore) Insert(_ context.Context, sessionID uuid.UUID, t types.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	s.entries[sessionID] = append(s.entries[sessionID], memoryEntry{trace: t, seq: s.nextSeq})
	return nil
}

func (s *MemoryStore) sorted(sessionID uuid.UUID) []memoryEntry {
	ordered := slices.Clone(s.entries[sessionID])
	slices.SortStableFunc(ordered, func(a, b memoryEntry) int {
		at, bt := a.trace.TraceMeta().Timestamp, b.trace.TraceMeta().Timestamp
		switch {
		case at < bt:
			return -1
		case at > bt:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return ordered
}

// List returns the session's full history ordered by timestamp.
func (s *MemoryStore) List(_ context.Context, sessionID uuid.UUID) ([]types.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.sorted(sessionID)
	out := make([]types.Trace, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, e.trace)
	}
	return out, nil
}

// ListSince returns entries newer than the given timestamp, excluding kinds.
func (s *MemoryStore) ListSince(_ context.Context, sessionID uuid.UUID, since float64, exclude []types.Kind) ([]types.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Trace
	for _, e := range s.sorted(sessionID) {
		if e.trace.TraceMeta().Timestamp <= since {
			continue
		}
		if slices.Contains(exclude, e.trace.Kind()) {
			continue
		}
		out = append(out, e.trace)
	}
	return out, nil
}

// LatestTimestamp returns the newest timestamp for a session, 0 when empty.
func (s *MemoryStore) LatestTimestamp(_ context.Context, sessionID uuid.UUID) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest float64
	for _, e := range s.entries[sessionID] {
		if ts := e.trace.TraceMeta().Timestamp; ts > latest {
			latest = ts
		}
	}
	return latest, nil
}

// DeleteSession drops the session's entries.
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
