package table

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FilterStore remembers the last filter values a user applied to a table so
// they can be replayed when the user returns with a bare URL.
// The key format is "filters:{subjectId}:{tableKey}".
type FilterStore interface {
	// Get returns the stored filter values for one user and table.
	Get(ctx context.Context, subjectID, tableKey string) (filters map[string]string, found bool, err error)

	// Put replaces the stored filter values with a TTL. An empty map clears
	// the entry entirely.
	Put(ctx context.Context, subjectID, tableKey string, filters map[string]string, ttl time.Duration) error

	// DeleteField removes a single filter from the stored set, so an
	// explicitly cleared filter does not come back on the next visit.
	DeleteField(ctx context.Context, subjectID, tableKey, field string) error

	// Clear drops the whole stored set for one user and table.
	Clear(ctx context.Context, subjectID, tableKey string) error
}

// --- MemoryFilterStore ---

// MemoryFilterStore is an in-memory FilterStore with TTL support.
// Suitable for testing and single-instance deployments.
type MemoryFilterStore struct {
	mu      sync.RWMutex
	entries map[string]*filterEntry
}

type filterEntry struct {
	filters   map[string]string
	expiresAt time.Time
}

// NewMemoryFilterStore creates a new in-memory filter store.
func NewMemoryFilterStore() *MemoryFilterStore {
	return &MemoryFilterStore{
		entries: make(map[string]*filterEntry),
	}
}

// Get returns the stored filters for one user and table.
func (s *MemoryFilterStore) Get(_ context.Context, subjectID, tableKey string) (map[string]string, bool, error) {
	key := FormatFilterKey(subjectID, tableKey)

	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	// Check TTL.
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	out := make(map[string]string, len(entry.filters))
	for k, v := range entry.filters {
		out[k] = v
	}
	return out, true, nil
}

// Put replaces the stored filters with a TTL.
func (s *MemoryFilterStore) Put(_ context.Context, subjectID, tableKey string, filters map[string]string, ttl time.Duration) error {
	key := FormatFilterKey(subjectID, tableKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(filters) == 0 {
		delete(s.entries, key)
		return nil
	}

	stored := make(map[string]string, len(filters))
	for k, v := range filters {
		stored[k] = v
	}
	s.entries[key] = &filterEntry{
		filters:   stored,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// DeleteField removes a single filter from the stored set.
func (s *MemoryFilterStore) DeleteField(_ context.Context, subjectID, tableKey, field string) error {
	key := FormatFilterKey(subjectID, tableKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil
	}
	delete(entry.filters, field)
	if len(entry.filters) == 0 {
		delete(s.entries, key)
	}
	return nil
}

// Clear drops the stored set for one user and table.
func (s *MemoryFilterStore) Clear(_ context.Context, subjectID, tableKey string) error {
	key := FormatFilterKey(subjectID, tableKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryFilterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisFilterStore ---

// RedisFilterStore is a Redis-backed FilterStore with TTL.
type RedisFilterStore struct {
	client redis.Cmdable
}

// NewRedisFilterStore creates a new Redis-backed filter store.
func NewRedisFilterStore(client redis.Cmdable) *RedisFilterStore {
	return &RedisFilterStore{client: client}
}

// Get returns the stored filters from Redis.
func (s *RedisFilterStore) Get(ctx context.Context, subjectID, tableKey string) (map[string]string, bool, error) {
	key := FormatFilterKey(subjectID, tableKey)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var filters map[string]string
	if err := json.Unmarshal(raw, &filters); err != nil {
		return nil, false, fmt.Errorf("unmarshal filter entry %q: %w", key, err)
	}
	return filters, true, nil
}

// Put replaces the stored filters in Redis with a TTL.
func (s *RedisFilterStore) Put(ctx context.Context, subjectID, tableKey string, filters map[string]string, ttl time.Duration) error {
	key := FormatFilterKey(subjectID, tableKey)

	if len(filters) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del %q: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshal filter entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// DeleteField removes a single filter from the stored set. The entry keeps
// its remaining TTL.
func (s *RedisFilterStore) DeleteField(ctx context.Context, subjectID, tableKey, field string) error {
	key := FormatFilterKey(subjectID, tableKey)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get %q: %w", key, err)
	}

	var filters map[string]string
	if err := json.Unmarshal(raw, &filters); err != nil {
		return fmt.Errorf("unmarshal filter entry %q: %w", key, err)
	}
	delete(filters, field)

	if len(filters) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del %q: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshal filter entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Clear drops the stored set from Redis.
func (s *RedisFilterStore) Clear(ctx context.Context, subjectID, tableKey string) error {
	key := FormatFilterKey(subjectID, tableKey)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis so the readiness endpoint can report the store.
func (s *RedisFilterStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// FormatFilterKey builds the standard filter storage key.
func FormatFilterKey(subjectID, tableKey string) string {
	return fmt.Sprintf("filters:%s:%s", subjectID, tableKey)
}
