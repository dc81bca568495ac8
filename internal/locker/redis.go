package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "samplevault:lock:"
	redisRetryDelay  = 25 * time.Millisecond
	redisReleaseWait = 2 * time.Second
)

// releaseScript deletes the lock only while it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is a SET NX PX lock shared by every process using the same server.
// A holder that dies releases implicitly once the TTL expires.
type Redis struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retry   time.Duration
	release *redis.Script
}

// NewRedis connects to addr. ttl <= 0 selects DefaultTTL.
func NewRedis(addr string, ttl time.Duration) *Redis {
	return newRedisWithClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func newRedisWithClient(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client:  client,
		ttl:     ttl,
		retry:   redisRetryDelay,
		release: redis.NewScript(releaseScript),
	}
}

// Lock polls SET NX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseWait)
			defer cancel()
			_ = r.release.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
