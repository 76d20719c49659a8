package cartlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cartlock:"

// RedisStore backs the cart lock with redis so multiple service
// instances share one lock space. TTL expiry is handled by redis
// itself, so there is no sweep loop.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Acquire(ctx context.Context, ownerKey, transactionID string) (bool, error) {
	return s.client.SetNX(ctx, keyPrefix+ownerKey, transactionID, s.ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, ownerKey string) error {
	return s.client.Del(ctx, keyPrefix+ownerKey).Err()
}

// compare-and-delete, atomic on the redis side
var releaseIfHeldByScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (s *RedisStore) ReleaseIfHeldBy(ctx context.Context, ownerKey, transactionID string) error {
	return releaseIfHeldByScript.Run(ctx, s.client, []string{keyPrefix + ownerKey}, transactionID).Err()
}

func (s *RedisStore) IsLocked(ctx context.Context, ownerKey string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+ownerKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) UpdateTransactionID(ctx context.Context, ownerKey, transactionID string) error {
	// XX + KEEPTTL: only re-key a lock that is still held, without
	// extending its lifetime.
	err := s.client.SetArgs(ctx, keyPrefix+ownerKey, transactionID, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err == redis.Nil {
		// lock already expired; nothing to re-key
		return nil
	}
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
