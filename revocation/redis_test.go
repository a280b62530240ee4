package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRevokeMarksExactlyOnce(t *testing.T) {
	_, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{})
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := r.Track(ctx, "jti-1", "alice", exp); err != nil {
		t.Fatalf("Track error: %v", err)
	}

	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if revoked {
		t.Fatal("expected tracked token to not be revoked")
	}

	first, err := r.Revoke(ctx, "jti-1", "alice", exp)
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if !first {
		t.Fatal("expected first revocation to report first=true")
	}

	first, err = r.Revoke(ctx, "jti-1", "alice", exp)
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if first {
		t.Fatal("expected duplicate revocation to report first=false")
	}

	revoked, err = r.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked token to report revoked")
	}
}

func TestRedisRevokeSubjectSweepsActiveTokens(t *testing.T) {
	_, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{})
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for _, jti := range []string{"a-1", "a-2"} {
		if err := r.Track(ctx, jti, "alice", exp); err != nil {
			t.Fatalf("Track error: %v", err)
		}
	}
	if err := r.Track(ctx, "b-1", "bob", exp); err != nil {
		t.Fatalf("Track error: %v", err)
	}

	n, err := r.RevokeSubject(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeSubject error: %v", err)
	}
	if n != 2 {
		t.Fatalf("RevokeSubject = %d, want 2", n)
	}

	for _, jti := range []string{"a-1", "a-2"} {
		revoked, err := r.IsRevoked(ctx, jti)
		if err != nil {
			t.Fatalf("IsRevoked error: %v", err)
		}
		if !revoked {
			t.Fatalf("expected %s to be revoked", jti)
		}
	}

	revoked, err := r.IsRevoked(ctx, "b-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if revoked {
		t.Fatal("expected bob's token to survive alice's bulk revocation")
	}

	exists, err := client.Exists(ctx, "ars:alice").Result()
	if err != nil {
		t.Fatalf("Exists error: %v", err)
	}
	if exists != 0 {
		t.Fatal("expected alice's index to be dropped")
	}
}

func TestRedisRevokedTokenIsForgottenAfterExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{})
	ctx := context.Background()

	exp := time.Now().Add(30 * time.Second)
	if _, err := r.Revoke(ctx, "jti-1", "alice", exp); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}

	mr.FastForward(time.Minute)

	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if revoked {
		t.Fatal("expected marker to lapse with the token's own expiry")
	}
}

func TestRedisTrackNeverShortensIndexTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{})
	ctx := context.Background()

	// Refresh token first with its long TTL, then the short-lived access
	// token. The index must keep the longer deadline.
	if err := r.Track(ctx, "refresh-1", "alice", time.Now().Add(7*24*time.Hour)); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if err := r.Track(ctx, "access-1", "alice", time.Now().Add(15*time.Minute)); err != nil {
		t.Fatalf("Track error: %v", err)
	}

	if ttl := mr.TTL("ars:alice"); ttl < 24*time.Hour {
		t.Fatalf("index TTL = %v, want at least a day", ttl)
	}
}

func TestRedisRevokeSubjectSkipsExpiredMembers(t *testing.T) {
	_, client := newTestRedis(t)
	current := time.Now()
	r := NewRedisRegistry(client, RedisConfig{Clock: func() time.Time { return current }})
	ctx := context.Background()

	if err := r.Track(ctx, "live", "alice", current.Add(time.Hour)); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if err := r.Track(ctx, "soon", "alice", current.Add(time.Minute)); err != nil {
		t.Fatalf("Track error: %v", err)
	}

	current = current.Add(30 * time.Minute)

	n, err := r.RevokeSubject(ctx, "alice")
	if err != nil {
		t.Fatalf("RevokeSubject error: %v", err)
	}
	if n != 1 {
		t.Fatalf("RevokeSubject = %d, want 1", n)
	}
}

func TestRedisCustomPrefix(t *testing.T) {
	_, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{KeyPrefix: "tt:"})
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := r.Track(ctx, "jti-1", "alice", exp); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	exists, err := client.Exists(ctx, "tt:s:alice").Result()
	if err != nil {
		t.Fatalf("Exists error: %v", err)
	}
	if exists != 1 {
		t.Fatal("expected prefixed index key")
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRedisRegistry(client, RedisConfig{})
	ctx := context.Background()

	mr.Close()

	if err := r.Track(ctx, "jti-1", "alice", time.Now().Add(time.Hour)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Track: got %v, want ErrUnavailable", err)
	}
	if _, err := r.IsRevoked(ctx, "jti-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("IsRevoked: got %v, want ErrUnavailable", err)
	}
	if _, err := r.Revoke(ctx, "jti-1", "alice", time.Now().Add(time.Hour)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Revoke: got %v, want ErrUnavailable", err)
	}
	if _, err := r.RevokeSubject(ctx, "alice"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("RevokeSubject: got %v, want ErrUnavailable", err)
	}
}
