package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int
	// NumShards determines the number of shards for concurrent access. Must be greater than 0.
	NumShards int
	// MaxTTL bounds every entry's lifetime; Set with a longer ttl is clamped.
	MaxTTL time.Duration
	// EvictionPercentage is the share of entries evicted when capacity is reached (1-100).
	EvictionPercentage int
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          64,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks whether the configuration values are usable.
func (c MemoryConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("cache: capacity must be greater than 0")
	case c.NumShards <= 0:
		return errors.New("cache: num shards must be greater than 0")
	case c.MaxTTL <= 0:
		return errors.New("cache: max ttl must be greater than 0")
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return errors.New("cache: eviction percentage must be between 1 and 100")
	}
	return nil
}

// memoryEntry carries its own deadline because sturdyc applies one TTL to
// the whole client, while callers need a TTL per key.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store backed by a sharded sturdyc client.
type MemoryStore struct {
	client *sturdyc.Client[memoryEntry]
	maxTTL time.Duration
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[memoryEntry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage)
	return &MemoryStore{client: client, maxTTL: cfg.MaxTTL, now: time.Now}, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.client.Set(key, memoryEntry{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}

// DeletePrefix implements Store.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// Ping implements Store. The in-process store is always reachable.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	return s.client.Size()
}
