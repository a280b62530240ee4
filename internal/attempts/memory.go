package attempts

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 16

type shard struct {
	mu     sync.Mutex
	counts map[string]int
}

// Memory is an in-process Store, sharded to keep unrelated principals off
// the same lock.
type Memory struct {
	shards [shardCount]shard
}

// NewMemory returns an empty in-process Store.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i].counts = make(map[string]int)
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()&(shardCount-1)]
}

// Bump records one failure, seeding a fresh counter first.
func (m *Memory) Bump(_ context.Context, key string, seed int) (int, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	count, live := s.counts[key]
	if !live {
		count = seed
	}
	count++
	s.counts[key] = count
	return count, nil
}

// Reset clears the counter.
func (m *Memory) Reset(_ context.Context, key string) error {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}

// Count returns the live counter, zero when absent.
func (m *Memory) Count(_ context.Context, key string) (int, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}
