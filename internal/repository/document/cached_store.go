package document

import (
	"context"
	"time"

	memcache "steward/internal/cache/memory"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	MaxBytes   int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 256,
		MaxBytes:   16 << 20,
	}
}

// CachedStore is a read-through cache over an origin document store. Reports
// and snapshots are immutable once written, so a generous TTL is safe.
type CachedStore struct {
	origin Store
	docs   *memcache.LRUTTL[string, []byte]
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &CachedStore{
		origin: origin,
		docs:   memcache.NewLRUTTL[string, []byte](cfg.MaxEntries, cfg.MaxBytes, cfg.TTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, userID, path string, content []byte) error {
	if err := s.origin.Put(ctx, userID, path, content); err != nil {
		return err
	}
	if key, err := objectKey(userID, path); err == nil {
		s.docs.Set(key, append([]byte(nil), content...), len(content))
	}
	return nil
}

func (s *CachedStore) Get(ctx context.Context, userID, path string) ([]byte, error) {
	key, err := objectKey(userID, path)
	if err != nil {
		return nil, err
	}
	if data, ok := s.docs.Get(key); ok {
		return append([]byte(nil), data...), nil
	}
	data, err := s.origin.Get(ctx, userID, path)
	if err != nil {
		return nil, err
	}
	s.docs.Set(key, append([]byte(nil), data...), len(data))
	return data, nil
}

func (s *CachedStore) List(ctx context.Context, userID string) ([]string, error) {
	return s.origin.List(ctx, userID)
}
