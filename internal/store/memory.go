package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lox/holdemd/internal/game"
)

// MemoryStore keeps logs and snapshots in process memory. Used in tests
// and for ephemeral tables where durability is not wanted.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string][]game.Event
	snapshots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string][]game.Event),
		snapshots: make(map[string][]byte),
	}
}

func (s *MemoryStore) AppendEvents(_ context.Context, tableID string, events []game.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.events[tableID]
	last := int64(0)
	if len(log) > 0 {
		last = log[len(log)-1].Seq
	}
	for _, e := range events {
		if e.Seq <= last {
			return fmt.Errorf("append for table %s: sequence %d not after %d", tableID, e.Seq, last)
		}
		last = e.Seq
	}
	s.events[tableID] = append(log, events...)
	return nil
}

func (s *MemoryStore) LoadEvents(_ context.Context, tableID string, sinceSeq int64) ([]game.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []game.Event
	for _, e := range s.events[tableID] {
		if e.Seq > sinceSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *game.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.TableID] = state
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, tableID string) (*game.Snapshot, error) {
	s.mu.RLock()
	state, ok := s.snapshots[tableID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var snap game.Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) TableIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for id := range s.events {
		seen[id] = true
	}
	for id := range s.snapshots {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
