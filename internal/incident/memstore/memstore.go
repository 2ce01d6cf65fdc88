// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/beacon/internal/incident"
)

// Store holds incidents in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	incidents map[int64]*incident.Incident // incident ID -> incident
	firing    map[string]int64             // monitor name -> firing incident ID
	nextID    int64

	keysMu sync.Mutex
	keys   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[int64]*incident.Incident),
		firing:    make(map[string]int64),
		nextID:    1,
		keys:      make(map[string]*keyLock),
	}
}

// lock serializes Apply calls for one monitor while leaving other monitors
// free to proceed. The returned func releases the lock.
func (s *Store) lock(monitor string) func() {
	s.keysMu.Lock()
	k, ok := s.keys[monitor]
	if !ok {
		k = &keyLock{}
		s.keys[monitor] = k
	}
	k.refs++
	s.keysMu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		s.keysMu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(s.keys, monitor)
		}
		s.keysMu.Unlock()
	}
}

// Apply runs fn against the firing incident for monitor and stores the result.
func (s *Store) Apply(_ context.Context, monitor string, fn incident.MutateFunc) (*incident.Incident, error) {
	unlock := s.lock(monitor)
	defer unlock()

	s.mu.RLock()
	var firing *incident.Incident
	if id, ok := s.firing[monitor]; ok {
		firing = s.incidents[id].Clone()
	}
	s.mu.RUnlock()

	next := fn(firing)
	if next == nil {
		return nil, nil
	}
	next = next.Clone()
	next.MonitorName = monitor

	s.mu.Lock()
	defer s.mu.Unlock()
	if next.ID == 0 {
		next.ID = s.nextID
	}
	if next.ID >= s.nextID {
		s.nextID = next.ID + 1
	}
	s.incidents[next.ID] = next
	if next.Status == incident.StatusFiring {
		s.firing[monitor] = next.ID
	} else if s.firing[monitor] == next.ID {
		delete(s.firing, monitor)
	}
	return next.Clone(), nil
}

// List returns copies of every incident ordered by ID.
func (s *Store) List(_ context.Context) ([]incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]incident.Incident, 0, len(s.incidents))
	for _, in := range s.incidents {
		out = append(out, *in.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get retrieves an incident by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id int64) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	return in.Clone(), true, nil
}
