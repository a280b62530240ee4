package revocation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// DefaultSweepInterval is how often the in-memory sweeper evicts entries
// whose tokens have expired on their own.
const DefaultSweepInterval = time.Minute

type revokedShard struct {
	mu      sync.Mutex
	expires map[string]time.Time // jti -> token expiry
}

type subjectShard struct {
	mu     sync.Mutex
	active map[string]map[string]time.Time // subject -> jti -> token expiry
}

// MemoryConfig tunes a [MemoryRegistry].
type MemoryConfig struct {
	// SweepInterval controls eviction frequency. Zero means
	// DefaultSweepInterval.
	SweepInterval time.Duration

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// MemoryRegistry is an in-process Registry. Both structures are sharded by
// fnv-1a so unrelated tokens never contend on one lock.
type MemoryRegistry struct {
	revoked  [shardCount]revokedShard
	subjects [shardCount]subjectShard

	now       func() time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryRegistry starts the background sweeper and returns a ready
// registry. Callers must Close it to stop the sweeper.
func NewMemoryRegistry(cfg MemoryConfig) *MemoryRegistry {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	r := &MemoryRegistry{
		now:  cfg.Clock,
		done: make(chan struct{}),
	}
	if r.now == nil {
		r.now = time.Now
	}
	for i := range r.revoked {
		r.revoked[i].expires = make(map[string]time.Time)
	}
	for i := range r.subjects {
		r.subjects[i].active = make(map[string]map[string]time.Time)
	}

	r.wg.Add(1)
	go r.sweepLoop(interval)

	return r
}

func shardIndex(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32() & (shardCount - 1)
}

// Track records an issued token in the subject's active index. Tokens already
// past their expiry are not worth indexing.
func (r *MemoryRegistry) Track(_ context.Context, jti, subject string, expiresAt time.Time) error {
	if jti == "" || subject == "" || !expiresAt.After(r.now()) {
		return nil
	}

	shard := &r.subjects[shardIndex(subject)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	active := shard.active[subject]
	if active == nil {
		active = make(map[string]time.Time)
		shard.active[subject] = active
	}
	active[jti] = expiresAt
	return nil
}

// Revoke deny-lists the token ID. The revoked map is the authority for
// IsRevoked, so marking it first under the shard lock gives the
// happens-before edge the interface promises.
func (r *MemoryRegistry) Revoke(_ context.Context, jti, subject string, expiresAt time.Time) (bool, error) {
	if jti == "" {
		return false, nil
	}
	first := r.mark(jti, expiresAt)
	r.unindex(subject, jti)
	return first, nil
}

func (r *MemoryRegistry) mark(jti string, expiresAt time.Time) bool {
	shard := &r.revoked[shardIndex(jti)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.expires[jti]; exists {
		return false
	}
	shard.expires[jti] = expiresAt
	return true
}

func (r *MemoryRegistry) unindex(subject, jti string) {
	if subject == "" {
		return
	}
	shard := &r.subjects[shardIndex(subject)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if active := shard.active[subject]; active != nil {
		delete(active, jti)
		if len(active) == 0 {
			delete(shard.active, subject)
		}
	}
}

// IsRevoked reports whether the token ID is on the deny list.
func (r *MemoryRegistry) IsRevoked(_ context.Context, jti string) (bool, error) {
	shard := &r.revoked[shardIndex(jti)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	_, revoked := shard.expires[jti]
	return revoked, nil
}

// RevokeSubject revokes every tracked active token for the subject.
//
// The index snapshot and the marking are two steps, so a token issued
// concurrently with this call can escape the sweep. The window only matters
// for logout-all semantics and the stray token is caught by the next call or
// by its own expiry.
func (r *MemoryRegistry) RevokeSubject(_ context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}

	shard := &r.subjects[shardIndex(subject)]
	shard.mu.Lock()
	snapshot := shard.active[subject]
	delete(shard.active, subject)
	shard.mu.Unlock()

	revoked := 0
	for jti, expiresAt := range snapshot {
		if r.mark(jti, expiresAt) {
			revoked++
		}
	}
	return revoked, nil
}

// Close stops the sweeper and waits for it to exit. Idempotent.
func (r *MemoryRegistry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *MemoryRegistry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep evicts entries whose tokens have expired. An expired token fails
// validation before the revocation check, so dropping its entry never
// resurrects it.
func (r *MemoryRegistry) sweep() {
	now := r.now()

	for i := range r.revoked {
		shard := &r.revoked[i]
		shard.mu.Lock()
		for jti, expiresAt := range shard.expires {
			if !expiresAt.After(now) {
				delete(shard.expires, jti)
			}
		}
		shard.mu.Unlock()
	}

	for i := range r.subjects {
		shard := &r.subjects[i]
		shard.mu.Lock()
		for subject, active := range shard.active {
			for jti, expiresAt := range active {
				if !expiresAt.After(now) {
					delete(active, jti)
				}
			}
			if len(active) == 0 {
				delete(shard.active, subject)
			}
		}
		shard.mu.Unlock()
	}
}
