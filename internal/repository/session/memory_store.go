package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"steward/internal/entity"
	"steward/internal/governance"
)

type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.byID {
		if cur.UserID == rec.UserID && cur.Workflow == rec.Workflow && cur.Status == StatusInProgress {
			return ErrSessionInProgress
		}
	}
	rec.Status = StatusInProgress
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.byID[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *MemoryStore) GetInProgress(_ context.Context, userID entity.UserID, w governance.Workflow) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.byID {
		if rec.UserID == userID && rec.Workflow == w && rec.Status == StatusInProgress {
			return cloneRecord(rec), true, nil
		}
	}
	return Record{}, false, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; !ok {
		return ErrNotFound
	}
	rec.UpdatedAt = time.Now()
	s.byID[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusAbandoned
	rec.UpdatedAt = time.Now()
	s.byID[id] = rec
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Document = append(json.RawMessage(nil), rec.Document...)
	return rec
}
