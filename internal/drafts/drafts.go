// Package drafts persists in-progress assignment answers and the remembered
// step position per module. All stores are best-effort: callers log errors
// and carry on.
package drafts

import (
	"context"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
)

// Draft is the locally saved, unvalidated snapshot of a module's answers.
type Draft struct {
	Values  answers.Values `json:"values"`
	SavedAt time.Time      `json:"savedAt"`
}

// Store persists drafts and step positions keyed by module ID.
type Store interface {
	LoadDraft(ctx context.Context, moduleID string) (Draft, bool, error)
	SaveDraft(ctx context.Context, moduleID string, d Draft) error
	DeleteDraft(ctx context.Context, moduleID string) error
	LoadPosition(ctx context.Context, moduleID string) (int, bool, error)
	SavePosition(ctx context.Context, moduleID string, index int) error
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu        sync.Mutex
	drafts    map[string]Draft
	positions map[string]int
	saves     map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts:    make(map[string]Draft),
		positions: make(map[string]int),
		saves:     make(map[string]int),
	}
}

func (s *MemoryStore) LoadDraft(_ context.Context, moduleID string) (Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[moduleID]
	if !ok {
		return Draft{}, false, nil
	}
	return Draft{Values: d.Values.Clone(), SavedAt: d.SavedAt}, true, nil
}

func (s *MemoryStore) SaveDraft(_ context.Context, moduleID string, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[moduleID] = Draft{Values: d.Values.Clone(), SavedAt: d.SavedAt}
	s.saves[moduleID]++
	return nil
}

func (s *MemoryStore) DeleteDraft(_ context.Context, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, moduleID)
	return nil
}

func (s *MemoryStore) LoadPosition(_ context.Context, moduleID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.positions[moduleID]
	return i, ok, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, moduleID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[moduleID] = index
	return nil
}

// SaveCount returns how many times a draft was written for moduleID.
func (s *MemoryStore) SaveCount(moduleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[moduleID]
}
