package quota

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"carvalue-api/internal/model"
)

// recordTTL outlives the day a record belongs to, so stale records expire
// on their own once rollover has made them irrelevant.
const recordTTL = 48 * time.Hour

// RedisStore keeps one JSON record per identity.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client. An empty prefix uses "quota:".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "quota:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(identity string) string {
	return s.keyPrefix + identity
}

func (s *RedisStore) Get(ctx context.Context, identity string) (model.QuotaRecord, bool, error) {
	data, err := s.client.Get(ctx, s.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.QuotaRecord{}, false, nil
	}
	if err != nil {
		return model.QuotaRecord{}, false, err
	}

	var rec model.QuotaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.QuotaRecord{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, rec model.QuotaRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.Identity), data, recordTTL).Err()
}
