package attempts

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// bumpScript increments the counter, starting from the seed when no live
// counter exists. One atomic step so concurrent failures never double-seed.
const bumpScript = `
local current = redis.call("GET", KEYS[1])
if current then
  return redis.call("INCR", KEYS[1])
end
local next = tonumber(ARGV[1]) + 1
redis.call("SET", KEYS[1], next)
return next
`

var bumpLua = redis.NewScript(bumpScript)

// Redis is a Store shared across processes. Keys carry no TTL: a failure
// streak survives until a successful login or an administrative reset clears
// it.
type Redis struct {
	redis redis.UniversalClient
}

// NewRedis wraps an existing client. The caller keeps ownership of the
// client's lifecycle.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{redis: client}
}

func (r *Redis) key(key string) string {
	return "alf:" + key
}

// Bump records one failure, seeding a fresh counter first.
func (r *Redis) Bump(ctx context.Context, key string, seed int) (int, error) {
	count, err := bumpLua.Run(ctx, r.redis, []string{r.key(key)}, seed).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// Reset clears the counter.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Count returns the live counter, zero when absent.
func (r *Redis) Count(ctx context.Context, key string) (int, error) {
	count, err := r.redis.Get(ctx, r.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}
