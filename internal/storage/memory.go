package storage

import (
	"context"
	"sync"

	"localnotify/internal/localnotify"
)

// memoryStore keeps records in insertion order. The file driver reuses it as
// its in-memory view.
type memoryStore struct {
	mu     sync.Mutex
	order  []string
	byName map[string]localnotify.WireRecord
	closed bool
}

func NewMemory() Store { return newMemory() }

func newMemory() *memoryStore {
	return &memoryStore{byName: map[string]localnotify.WireRecord{}}
}

func (s *memoryStore) Put(_ context.Context, rec localnotify.WireRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.putLocked(rec)
	return nil
}

func (s *memoryStore) putLocked(rec localnotify.WireRecord) {
	if _, ok := s.byName[rec.Name]; ok {
		s.removeOrderLocked(rec.Name)
	}
	s.byName[rec.Name] = rec
	s.order = append(s.order, rec.Name)
}

func (s *memoryStore) Get(_ context.Context, name string) (localnotify.WireRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return localnotify.WireRecord{}, false, ErrClosed
	}
	rec, ok := s.byName[name]
	return rec, ok, nil
}

func (s *memoryStore) List(_ context.Context) ([]localnotify.WireRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]localnotify.WireRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.deleteLocked(name), nil
}

func (s *memoryStore) deleteLocked(name string) bool {
	if _, ok := s.byName[name]; !ok {
		return false
	}
	delete(s.byName, name)
	s.removeOrderLocked(name)
	return true
}

func (s *memoryStore) removeOrderLocked(name string) {
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.clearLocked()
	return nil
}

func (s *memoryStore) clearLocked() {
	s.order = nil
	s.byName = map[string]localnotify.WireRecord{}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
