package store

import (
	"sort"
	"sync"
	"time"

	"chatrelay/pkg/models"
)

// Memory is a map-backed Store used when no database path is configured and
// in tests. A single mutex serializes all mutations, which trivially
// satisfies per-thread append ordering.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]*models.Thread
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{threads: make(map[string]*models.Thread)}
}

func (s *Memory) CreateThread(t models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	cp.Messages = append([]models.Message(nil), t.Messages...)
	s.threads[t.ID] = &cp
	return nil
}

func (s *Memory) GetThread(id string) (models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return models.Thread{}, ErrNotFound
	}
	cp := *t
	cp.Messages = append([]models.Message(nil), t.Messages...)
	return cp, nil
}

func (s *Memory) ListThreads() ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Memory) RenameThread(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.Title = title
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) DeleteThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return ErrNotFound
	}
	delete(s.threads, id)
	return nil
}

func (s *Memory) AppendMessage(threadID string, m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.Messages = append(t.Messages, m)
	t.UpdatedAt = time.Now().UTC()
	maybeRetitle(t, m)
	return nil
}

func (s *Memory) Close() error { return nil }
