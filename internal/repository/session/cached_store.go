package session

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"steward/internal/entity"
	"steward/internal/governance"
)

// CachedStore wraps an origin store with an LRU over Get. Session writes are
// strictly sequential per session, so writing through keeps the cache exact.
type CachedStore struct {
	origin Store
	byID   *lru.Cache[string, Record]
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, byID: cache}, nil
}

func (s *CachedStore) Create(ctx context.Context, rec Record) error {
	if err := s.origin.Create(ctx, rec); err != nil {
		return err
	}
	s.byID.Remove(rec.ID)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (Record, bool, error) {
	if rec, ok := s.byID.Get(id); ok {
		return cloneRecord(rec), true, nil
	}
	rec, ok, err := s.origin.Get(ctx, id)
	if err != nil || !ok {
		return rec, ok, err
	}
	s.byID.Add(id, cloneRecord(rec))
	return rec, true, nil
}

func (s *CachedStore) GetInProgress(ctx context.Context, userID entity.UserID, w governance.Workflow) (Record, bool, error) {
	return s.origin.GetInProgress(ctx, userID, w)
}

func (s *CachedStore) Put(ctx context.Context, rec Record) error {
	if err := s.origin.Put(ctx, rec); err != nil {
		return err
	}
	s.byID.Add(rec.ID, cloneRecord(rec))
	return nil
}

func (s *CachedStore) Abandon(ctx context.Context, id string) error {
	if err := s.origin.Abandon(ctx, id); err != nil {
		return err
	}
	s.byID.Remove(id)
	return nil
}
