package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisEngine builds an engine on the shared Redis instance. Several engines
// on the same instance model a multi-replica deployment.
func redisEngine(t *testing.T, rdb redis.UniversalClient, store *memStore, notifier *fakeNotifier, clock *testClock) *Engine {
	t.Helper()
	engine, err := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithRoleStore(store).
		WithNotifier(notifier).
		WithResources("TASK", "EXPENSE", "REPORT").
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func redisPair(t *testing.T) (*Engine, *Engine, *memStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := seededStore(t)
	notifier := newFakeNotifier()
	clock := newTestClock()
	a := redisEngine(t, rdb, store, notifier, clock)
	b := redisEngine(t, rdb, store, notifier, clock)
	return a, b, store
}

func TestRedis_RevocationVisibleAcrossReplicas(t *testing.T) {
	a, b, _ := redisPair(t)
	ctx := context.Background()

	pair, err := a.Login(ctx, "alice", alicePassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Both replicas share signing keys and revocation state.
	if _, err := b.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("replica B rejects replica A's token: %v", err)
	}

	if err := a.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// No stale window: the very next check on the other replica rejects.
	if _, err := b.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replica B after logout on A = %v, want ErrTokenRevoked", err)
	}
}

func TestRedis_FailureCounterSharedAcrossReplicas(t *testing.T) {
	a, b, store := redisPair(t)
	ctx := context.Background()

	// Failures split across replicas still add up to one lockout.
	for i := 0; i < 3; i++ {
		if _, err := a.Login(ctx, "bob", "Wrong-Pass1!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("a failure %d = %v", i+1, err)
		}
	}
	if _, err := b.Login(ctx, "bob", "Wrong-Pass1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("b fourth failure = %v", err)
	}
	if _, err := b.Login(ctx, "bob", "Wrong-Pass1!"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("b fifth failure = %v, want ErrAccountLocked", err)
	}

	if p := store.principal("bob"); !p.Locked || p.FailedAttempts != 5 {
		t.Fatalf("persisted state = %+v", p)
	}
	// And the lock binds on the replica that saw none of the failures... the
	// persisted flag carries it.
	if _, err := a.Login(ctx, "bob", alicePassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("a after lock on b = %v, want ErrAccountLocked", err)
	}
}

func TestRedis_RefreshRotationSingleWinnerAcrossReplicas(t *testing.T) {
	a, b, _ := redisPair(t)
	ctx := context.Background()

	pair, err := a.Login(ctx, "alice", alicePassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := a.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	// The other replica sees the consumed token as reuse.
	if _, err := b.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay on replica B = %v, want ErrTokenRevoked", err)
	}
}

func TestRedis_SecurityReportFlagsBacking(t *testing.T) {
	a, _, _ := redisPair(t)
	if report := a.SecurityReport(); !report.RedisBacked {
		t.Fatal("redis-backed engine must report RedisBacked")
	}
}
