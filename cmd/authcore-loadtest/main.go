// Command authcore-loadtest drives the two hot paths, Authenticate and
// Refresh, against a fully wired engine and prints latency percentiles.
//
// By default it runs self-contained on miniredis; point it at a real Redis
// with -redis-addr (or REDIS_ADDR) to measure network round-trips too.
// Argon2 cost is floored: login happens only during seeding and the measured
// phases never touch the hasher.
//
// Example:
//
//	go run ./cmd/authcore-loadtest -sessions 2000 -ops 50000 -concurrency 128
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/timetrax/authcore"
	"github.com/timetrax/authcore/password"
	"github.com/timetrax/authcore/permission"
)

const seedPassword = "Load-Test-Pw7!"

type sessionState struct {
	mu      sync.Mutex
	refresh string
	access  string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 2000, "number of live sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix for this run")
		users       = flag.Int("users", 64, "number of distinct principals behind the sessions")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *users <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops, and users must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	engine, store, err := buildEngine(client, *prefix, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions across %d users...\n", *sessions, *users)
	startSeed := time.Now()
	states := make([]*sessionState, *sessions)
	for i := range states {
		pair, err := engine.Login(ctx, store.username(i%*users), seedPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &sessionState{refresh: pair.RefreshToken, access: pair.AccessToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runAuthenticatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: authenticate_ok=%d refresh_ok=%d reuse_detected=%d store_retries=%d\n",
		snap.Counters[authcore.MetricAuthenticateSuccess],
		snap.Counters[authcore.MetricRefreshSuccess],
		snap.Counters[authcore.MetricRefreshReuseDetected],
		snap.Counters[authcore.MetricStoreRetry],
	)
}

func buildEngine(client redis.UniversalClient, prefix string, users int) (*authcore.Engine, *loadStore, error) {
	cfg := authcore.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("loadtest-loadtest-loadtest-32byt")
	cfg.Registry.KeyPrefix = prefix
	// Floor-level hashing cost: only seeding pays it.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Metrics.Enabled = true

	store, err := newLoadStore(cfg.Password, users)
	if err != nil {
		return nil, nil, err
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithResources("TASK", "EXPENSE", "REPORT").
		WithCredentialStore(store).
		WithRoleStore(store).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

func runAuthenticatePhase(ctx context.Context, engine *authcore.Engine, states []*sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]

				state.mu.Lock()
				access := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.Authenticate(ctx, access)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *authcore.Engine, states []*sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]

				// Per-session rotation is serialized; interleaved rotations
				// of one chain would trip the reuse guard.
				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.refresh = pair.RefreshToken
					state.access = pair.AccessToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

/*
====================================
IN-MEMORY STORES
====================================
*/

type loadStore struct {
	mu         sync.RWMutex
	principals map[string]*authcore.Principal
	role       authcore.RoleDefinition
}

func newLoadStore(cfg authcore.PasswordConfig, users int) (*loadStore, error) {
	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return nil, err
	}

	s := &loadStore{
		principals: make(map[string]*authcore.Principal, users),
		role: authcore.RoleDefinition{
			Permissions: []permission.Permission{
				{Resource: "TASK", Action: permission.ActionManage},
				{Resource: "EXPENSE", Action: permission.ActionCreate},
			},
			CanSelfServicePassword: true,
		},
	}
	for i := 0; i < users; i++ {
		name := s.username(i)
		s.principals[name] = &authcore.Principal{
			ID:           fmt.Sprintf("load-%d", i),
			Username:     name,
			PasswordHash: hash,
			Role:         "LOAD",
			Enabled:      true,
		}
	}
	return s, nil
}

func (s *loadStore) username(i int) string {
	return fmt.Sprintf("user-%d", i)
}

func (s *loadStore) FetchByUsername(_ context.Context, username string) (*authcore.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[username]
	if !ok {
		return nil, authcore.ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *loadStore) PersistPasswordChange(_ context.Context, p *authcore.Principal, newHash string, history []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.principals[p.Username]
	if !ok {
		return authcore.ErrPrincipalNotFound
	}
	stored.PasswordHash = newHash
	stored.PasswordHistory = append([]string(nil), history...)
	return nil
}

func (s *loadStore) PersistLockoutState(_ context.Context, p *authcore.Principal, locked bool, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.principals[p.Username]
	if !ok {
		return authcore.ErrPrincipalNotFound
	}
	stored.Locked = locked
	stored.FailedAttempts = attempts
	return nil
}

func (s *loadStore) FetchPermissions(_ context.Context, roleName string) (authcore.RoleDefinition, error) {
	if roleName != "LOAD" {
		return authcore.RoleDefinition{}, authcore.ErrRoleNotFound
	}
	return s.role, nil
}
