package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 10000
	DefaultTTL        = 24 * time.Hour
)

// MemoryStore is an in-process LRU cache with a TTL, sharded by source so
// workers polling different marketplaces never contend on one lock.
type MemoryStore struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mu     sync.Mutex
	shards map[string]*shard
}

type shard struct {
	mu      sync.Mutex
	order   *list.List // front = most recently seen
	entries map[string]*list.Element
}

type entry struct {
	key    string
	seenAt time.Time
}

func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		shards:     map[string]*shard{},
	}
}

func (s *MemoryStore) shardFor(source string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[source]
	if !ok {
		sh = &shard{
			order:   list.New(),
			entries: map[string]*list.Element{},
		}
		s.shards[source] = sh
	}
	return sh
}

func (s *MemoryStore) Seen(_ context.Context, source, link string) (bool, error) {
	key := Fingerprint(link)
	now := s.now()
	sh := s.shardFor(source)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if el, ok := sh.entries[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < s.ttl {
			sh.order.MoveToFront(el)
			return true, nil
		}
		// expired, treat as new
		e.seenAt = now
		sh.order.MoveToFront(el)
		return false, nil
	}

	el := sh.order.PushFront(&entry{key: key, seenAt: now})
	sh.entries[key] = el
	for sh.order.Len() > s.maxEntries {
		oldest := sh.order.Back()
		if oldest == nil {
			break
		}
		sh.order.Remove(oldest)
		delete(sh.entries, oldest.Value.(*entry).key)
	}
	return false, nil
}

func (s *MemoryStore) Forget(_ context.Context, source, link string) error {
	key := Fingerprint(link)
	sh := s.shardFor(source)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.entries[key]; ok {
		sh.order.Remove(el)
		delete(sh.entries, key)
	}
	return nil
}

// Len returns the number of cached fingerprints for a source.
func (s *MemoryStore) Len(source string) int {
	sh := s.shardFor(source)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.order.Len()
}
