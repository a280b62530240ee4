package revocation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces registry keys: markers live under
// "<prefix>v:<jti>", subject indexes under "<prefix>s:<subject>".
const DefaultKeyPrefix = "ar"

// Revocations of tokens at the edge of their lifetime still need a visible
// marker for duplicate detection.
const minMarkerTTL = time.Second

// trackScript adds the member and pushes the index deadline out to the token
// expiry, without ever shortening a longer-lived index.
const trackScript = `
redis.call("SADD", KEYS[1], ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
local target = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if ttl < 0 or now + ttl < target then
  redis.call("PEXPIREAT", KEYS[1], target)
end
return 1
`

var trackLua = redis.NewScript(trackScript)

// RedisConfig tunes a [RedisRegistry].
type RedisConfig struct {
	// KeyPrefix namespaces all registry keys. Empty means DefaultKeyPrefix.
	KeyPrefix string

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// RedisRegistry is a Redis-backed Registry. Markers expire with their tokens,
// so no sweeper runs; stale index members are pruned on RevokeSubject.
type RedisRegistry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRegistry wraps an existing client. The caller keeps ownership of
// the client's lifecycle.
func NewRedisRegistry(client redis.UniversalClient, cfg RedisConfig) *RedisRegistry {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &RedisRegistry{redis: client, prefix: prefix, now: now}
}

func (r *RedisRegistry) markerKey(jti string) string {
	return r.prefix + "v:" + jti
}

func (r *RedisRegistry) subjectKey(subject string) string {
	return r.prefix + "s:" + subject
}

func encodeMember(jti string, expiresAt time.Time) string {
	return jti + "|" + strconv.FormatInt(expiresAt.Unix(), 10)
}

func decodeMember(member string) (jti string, expiresAt time.Time, ok bool) {
	jti, raw, found := strings.Cut(member, "|")
	if !found || jti == "" {
		return "", time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return jti, time.Unix(unix, 0), true
}

// Track records the token in the subject index.
func (r *RedisRegistry) Track(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	now := r.now()
	if jti == "" || subject == "" || !expiresAt.After(now) {
		return nil
	}

	err := trackLua.Run(ctx, r.redis,
		[]string{r.subjectKey(subject)},
		encodeMember(jti, expiresAt),
		expiresAt.UnixMilli(),
		now.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Revoke writes the deny-list marker and drops the index member in one
// transaction. SETNX makes the first-revoker report exact under concurrency.
func (r *RedisRegistry) Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) (bool, error) {
	if jti == "" {
		return false, nil
	}

	ttl := expiresAt.Sub(r.now())
	if ttl < minMarkerTTL {
		ttl = minMarkerTTL
	}

	var set *redis.BoolCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, r.markerKey(jti), 1, ttl)
		if subject != "" {
			pipe.SRem(ctx, r.subjectKey(subject), encodeMember(jti, expiresAt))
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return set.Val(), nil
}

// IsRevoked reports whether the marker for the token ID exists.
func (r *RedisRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.markerKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// RevokeSubject reads the subject index, writes a marker for every member
// whose token is still live, then drops the index. Markers go first so a
// failure in between leaves tokens revoked rather than resurrected; the
// leftover index entries are re-marked harmlessly on the next call.
func (r *RedisRegistry) RevokeSubject(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}

	members, err := r.redis.SMembers(ctx, r.subjectKey(subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := r.now()
	var sets []*redis.BoolCmd
	if len(members) > 0 {
		pipe := r.redis.Pipeline()
		for _, member := range members {
			jti, expiresAt, ok := decodeMember(member)
			if !ok || !expiresAt.After(now) {
				continue
			}
			sets = append(sets, pipe.SetNX(ctx, r.markerKey(jti), 1, expiresAt.Sub(now)))
		}
		if len(sets) > 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}

	if err := r.redis.Del(ctx, r.subjectKey(subject)).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, cmd := range sets {
		if cmd.Val() {
			revoked++
		}
	}
	return revoked, nil
}

// Close is a no-op; the registry has no background work and does not own the
// Redis client.
func (r *RedisRegistry) Close() {}
