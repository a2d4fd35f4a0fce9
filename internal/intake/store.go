package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"carvalue-api/internal/model"
)

// Store persists partial intakes between messages.
type Store interface {
	// Get returns the partial intake for identity, or nil when there is none.
	Get(ctx context.Context, identity string) (*model.PartialIntake, error)
	Put(ctx context.Context, p *model.PartialIntake) error
	Delete(ctx context.Context, identity string) error
	// DeleteStale removes intakes last updated before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore keeps partial intakes in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	intakes map[string]model.PartialIntake
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intakes: make(map[string]model.PartialIntake)}
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*model.PartialIntake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.intakes[identity]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Put(ctx context.Context, p *model.PartialIntake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intakes[p.Identity] = *p
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intakes, identity)
	return nil
}

func (s *MemoryStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.intakes {
		if p.UpdatedAt.Before(cutoff) {
			delete(s.intakes, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored intakes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.intakes)
}

// RedisStore keeps each partial intake as JSON under its own key, expiring
// with the intake TTL. Keys are also tracked in a set so DeleteStale can
// find them without a keyspace scan.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "intake:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisStore) key(identity string) string {
	return s.keyPrefix + identity
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "active"
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*model.PartialIntake, error) {
	data, err := s.client.Get(ctx, s.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p model.PartialIntake
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode intake for %s: %w", identity, err)
	}
	return &p, nil
}

func (s *RedisStore) Put(ctx context.Context, p *model.PartialIntake) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(p.Identity), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), p.Identity)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(identity))
	pipe.SRem(ctx, s.indexKey(), identity)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteStale drops stale intakes and index entries whose key already expired.
func (s *RedisStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	pipe := s.client.Pipeline()
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			// unreadable entries are treated as stale
			pipe.Del(ctx, s.key(id))
			pipe.SRem(ctx, s.indexKey(), id)
			n++
			continue
		}
		if p == nil {
			pipe.SRem(ctx, s.indexKey(), id)
			continue
		}
		if p.UpdatedAt.Before(cutoff) {
			pipe.Del(ctx, s.key(id))
			pipe.SRem(ctx, s.indexKey(), id)
			n++
		}
	}
	if pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
	}
	return n, nil
}
