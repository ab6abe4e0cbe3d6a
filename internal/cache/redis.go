package cache

import (
	"context"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore backs the key-value cache with a Redis server so that several
// storefront instances can share one persisted session backup. Records are
// stored without TTL, matching the no-expiry cache contract.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client, prefix: "hivestore:"}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(key string) (string, bool) {
	ctx, cancel := r.opContext()
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("[cache] WARN: redis get %s: %v", key, err)
		return "", false
	}
	return val, true
}

func (r *RedisStore) Set(key string, value string) {
	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		log.Printf("[cache] WARN: redis set %s: %v", key, err)
	}
}

func (r *RedisStore) Delete(key string) {
	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		log.Printf("[cache] WARN: redis del %s: %v", key, err)
	}
}

// opContext bounds each cache call. The Store interface is synchronous and
// callers hold no context, so the bound lives here.
func (r *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
