package attempts

import (
	"context"
	"errors"
	"sync"
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

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Fresh counter starts from the seed.
	n, err := store.Bump(ctx, "u-1", 3)
	if err != nil {
		t.Fatalf("Bump error: %v", err)
	}
	if n != 4 {
		t.Fatalf("seeded bump = %d, want 4", n)
	}

	// A live counter ignores later seeds; the persisted value it was primed
	// from can only be stale by now.
	n, err = store.Bump(ctx, "u-1", 99)
	if err != nil {
		t.Fatalf("Bump error: %v", err)
	}
	if n != 5 {
		t.Fatalf("second bump = %d, want 5", n)
	}

	n, err = store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 5 {
		t.Fatalf("Count = %d, want 5", n)
	}

	// Keys are independent.
	n, err = store.Bump(ctx, "u-2", 0)
	if err != nil {
		t.Fatalf("Bump error: %v", err)
	}
	if n != 1 {
		t.Fatalf("unseeded bump = %d, want 1", n)
	}

	if err := store.Reset(ctx, "u-1"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	n, err = store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count after reset = %d, want 0", n)
	}

	// After a reset the seed applies again.
	n, err = store.Bump(ctx, "u-1", 2)
	if err != nil {
		t.Fatalf("Bump error: %v", err)
	}
	if n != 3 {
		t.Fatalf("post-reset bump = %d, want 3", n)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestRedisStoreContract(t *testing.T) {
	_, client := newTestRedis(t)
	runStoreContract(t, NewRedis(client))
}

func TestMemoryConcurrentBumps(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Bump(ctx, "u-1", 0); err != nil {
				t.Errorf("Bump error: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 20 {
		t.Fatalf("Count = %d, want 20", n)
	}
}

func TestRedisCounterHasNoTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedis(client)
	ctx := context.Background()

	if _, err := store.Bump(ctx, "u-1", 0); err != nil {
		t.Fatalf("Bump error: %v", err)
	}

	mr.FastForward(365 * 24 * time.Hour)

	n, err := store.Count(ctx, "u-1")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count after a year = %d, want 1 (no decay)", n)
	}
}

func TestRedisUnavailableWrapped(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedis(client)
	ctx := context.Background()

	mr.Close()

	if _, err := store.Bump(ctx, "u-1", 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Bump: got %v, want ErrUnavailable", err)
	}
	if err := store.Reset(ctx, "u-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Reset: got %v, want ErrUnavailable", err)
	}
	if _, err := store.Count(ctx, "u-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Count: got %v, want ErrUnavailable", err)
	}
}
