package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps secrets as plain string keys in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over client. Keys are scope keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, scope Scope) (string, error) {
	v, err := r.client.Get(ctx, scope.Key(r.prefix)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", scope, err)
	}
	return v, nil
}

// Save stores secret; an empty secret deletes the key.
func (r *RedisStore) Save(ctx context.Context, scope Scope, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return r.Delete(ctx, scope)
	}
	if err := r.client.Set(ctx, scope.Key(r.prefix), secret, 0).Err(); err != nil {
		return fmt.Errorf("saving %s: %w", scope, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, scope Scope) error {
	if err := r.client.Del(ctx, scope.Key(r.prefix)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", scope, err)
	}
	return nil
}
