package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the minimal Redis command set required by RedisStore.
// *redis.Client satisfies this interface.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// compareAndSetScript sets KEYS[1] to ARGV[3] when it is absent (ARGV[1] ==
// "1") or equal to ARGV[2]. ARGV[4] is the expiry in milliseconds, 0 for none.
const compareAndSetScript = `
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '1' then
  if cur then return 0 end
elseif cur ~= ARGV[2] then
  return 0
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[3], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[3])
end
return 1
`

// RedisStore keeps records in Redis with a server-side expiry so abandoned
// sessions are evicted even if they are never read again.
type RedisStore struct {
	api    redisAPI
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps api. Keys are namespaced with prefix; ttl <= 0 stores
// without expiry.
func NewRedisStore(api redisAPI, prefix string, ttl time.Duration) (*RedisStore, error) {
	if api == nil {
		return nil, errors.New("repository: redis api must not be nil")
	}
	return &RedisStore{api: api, prefix: strings.TrimSpace(prefix), ttl: ttl}, nil
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("repository: redis URL must not be empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("repository: parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository: connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.api.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("repository: RedisStore get: %w", err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.api.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("repository: RedisStore set: %w", err)
	}
	return nil
}

// CompareAndSet runs the check and the write as one server-side script.
func (r *RedisStore) CompareAndSet(ctx context.Context, key string, prev *string, value string) error {
	expectAbsent, expected := "1", ""
	if prev != nil {
		expectAbsent, expected = "0", *prev
	}
	ok, err := r.api.Eval(ctx, compareAndSetScript, []string{r.key(key)},
		expectAbsent, expected, value, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("repository: RedisStore compare and set: %w", err)
	}
	if ok != 1 {
		return ErrStale
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.api.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("repository: RedisStore delete: %w", err)
	}
	return nil
}

func (r *RedisStore) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
