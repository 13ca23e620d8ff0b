package cache

import (
	"container/list"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/oddsforge/propline/internal/domain"
)

const shardCount = 64

// l1Entry wraps a cached prop with its expiry and LRU bookkeeping
type l1Entry struct {
	prop      *domain.CanonicalProp
	expiresAt time.Time
	lruElem   *list.Element
}

// l1Shard is one lock domain of the in-process cache. Each shard keeps its
// own LRU order and sport/game secondary indexes.
type l1Shard struct {
	mu      sync.RWMutex
	entries map[domain.LineHash]*l1Entry
	lru     *list.List // front = most recent; values are LineHash
	bySport map[domain.Sport]map[domain.LineHash]struct{}
	byGame  map[string]map[domain.LineHash]struct{}
}

// L1Cache is the sharded in-process tier. Capacity and TTL apply per cache,
// split evenly across shards; eviction prefers entries close to expiry
// before falling back to strict LRU order.
type L1Cache struct {
	shards   [shardCount]*l1Shard
	perShard int
	ttl      time.Duration
	now      func() time.Time
}

// NewL1Cache creates the in-process tier. Capacity below shardCount is
// raised so every shard holds at least one entry.
func NewL1Cache(capacity int, ttl time.Duration) *L1Cache {
	if capacity < shardCount {
		capacity = shardCount
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &L1Cache{
		perShard: capacity / shardCount,
		ttl:      ttl,
		now:      time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &l1Shard{
			entries: make(map[domain.LineHash]*l1Entry),
			lru:     list.New(),
			bySport: make(map[domain.Sport]map[domain.LineHash]struct{}),
			byGame:  make(map[string]map[domain.LineHash]struct{}),
		}
	}
	return c
}

func (c *L1Cache) shardFor(hash domain.LineHash) *l1Shard {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns a cached prop. Expired entries are removed on access.
// Superseded entries are returned; the caller decides whether they are
// visible on its surface.
func (c *L1Cache) Get(hash domain.LineHash) (*domain.CanonicalProp, bool) {
	shard := c.shardFor(hash)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[hash]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		shard.remove(hash, entry)
		return nil, false
	}

	shard.lru.MoveToFront(entry.lruElem)
	return entry.prop, true
}

// Put stores a prop, evicting if the shard is at capacity
func (c *L1Cache) Put(prop *domain.CanonicalProp) {
	hash := prop.LineHash
	shard := c.shardFor(hash)
	now := c.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if entry, ok := shard.entries[hash]; ok {
		entry.prop = prop
		entry.expiresAt = now.Add(c.ttl)
		shard.lru.MoveToFront(entry.lruElem)
		return
	}

	for len(shard.entries) >= c.perShard {
		shard.evictOne(now, c.ttl)
	}

	entry := &l1Entry{
		prop:      prop,
		expiresAt: now.Add(c.ttl),
	}
	entry.lruElem = shard.lru.PushFront(hash)
	shard.entries[hash] = entry
	shard.index(hash, prop)
}

// Touch resets a live entry's TTL without replacing its contents, for when
// a provider re-confirms an offering unchanged. Expired entries are reaped
// and report false.
func (c *L1Cache) Touch(hash domain.LineHash) (*domain.CanonicalProp, bool) {
	shard := c.shardFor(hash)
	now := c.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[hash]
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) {
		shard.remove(hash, entry)
		return nil, false
	}

	entry.expiresAt = now.Add(c.ttl)
	shard.lru.MoveToFront(entry.lruElem)
	return entry.prop, true
}

// MarkSuperseded flags a cached prop as replaced by a newer offering. The
// entry stays resident until TTL so direct lookups keep resolving, but the
// query surface skips it.
func (c *L1Cache) MarkSuperseded(hash domain.LineHash) bool {
	shard := c.shardFor(hash)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[hash]
	if !ok {
		return false
	}
	clone := *entry.prop
	clone.Superseded = true
	entry.prop = &clone
	return true
}

// Remove deletes a single entry
func (c *L1Cache) Remove(hash domain.LineHash) bool {
	shard := c.shardFor(hash)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[hash]
	if !ok {
		return false
	}
	shard.remove(hash, entry)
	return true
}

// RemoveBySport drops all entries for a sport, returning the removed hashes
func (c *L1Cache) RemoveBySport(sport domain.Sport) []domain.LineHash {
	var removed []domain.LineHash
	for _, shard := range c.shards {
		shard.mu.Lock()
		for hash := range shard.bySport[sport] {
			if entry, ok := shard.entries[hash]; ok {
				shard.remove(hash, entry)
				removed = append(removed, hash)
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// RemoveByGame drops all entries for a game, returning the removed hashes
func (c *L1Cache) RemoveByGame(gameID string) []domain.LineHash {
	var removed []domain.LineHash
	for _, shard := range c.shards {
		shard.mu.Lock()
		for hash := range shard.byGame[gameID] {
			if entry, ok := shard.entries[hash]; ok {
				shard.remove(hash, entry)
				removed = append(removed, hash)
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Snapshot returns all live, non-superseded entries for a sport in line-hash
// order. Expired entries are skipped but not reaped; reaping happens on
// access and eviction.
func (c *L1Cache) Snapshot(sport domain.Sport) []*domain.CanonicalProp {
	now := c.now()
	var props []*domain.CanonicalProp

	for _, shard := range c.shards {
		shard.mu.RLock()
		for hash := range shard.bySport[sport] {
			entry, ok := shard.entries[hash]
			if !ok || now.After(entry.expiresAt) || entry.prop.Superseded {
				continue
			}
			props = append(props, entry.prop)
		}
		shard.mu.RUnlock()
	}

	sort.Slice(props, func(i, j int) bool {
		return props[i].LineHash < props[j].LineHash
	})
	return props
}

// SnapshotByGame returns all live, non-superseded entries for a game in
// line-hash order
func (c *L1Cache) SnapshotByGame(gameID string) []*domain.CanonicalProp {
	now := c.now()
	var props []*domain.CanonicalProp

	for _, shard := range c.shards {
		shard.mu.RLock()
		for hash := range shard.byGame[gameID] {
			entry, ok := shard.entries[hash]
			if !ok || now.After(entry.expiresAt) || entry.prop.Superseded {
				continue
			}
			props = append(props, entry.prop)
		}
		shard.mu.RUnlock()
	}

	sort.Slice(props, func(i, j int) bool {
		return props[i].LineHash < props[j].LineHash
	})
	return props
}

// Len returns the total number of resident entries, expired or not
func (c *L1Cache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// evictOne removes one entry. Entries within 25% of their TTL are reclaimed
// first; otherwise the LRU tail goes.
func (s *l1Shard) evictOne(now time.Time, ttl time.Duration) {
	nearExpiry := now.Add(ttl / 4)

	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		hash := elem.Value.(domain.LineHash)
		if entry, ok := s.entries[hash]; ok && entry.expiresAt.Before(nearExpiry) {
			s.remove(hash, entry)
			return
		}
	}

	tail := s.lru.Back()
	if tail == nil {
		return
	}
	hash := tail.Value.(domain.LineHash)
	if entry, ok := s.entries[hash]; ok {
		s.remove(hash, entry)
	}
}

func (s *l1Shard) index(hash domain.LineHash, prop *domain.CanonicalProp) {
	if s.bySport[prop.Sport] == nil {
		s.bySport[prop.Sport] = make(map[domain.LineHash]struct{})
	}
	s.bySport[prop.Sport][hash] = struct{}{}

	if prop.GameID != "" {
		if s.byGame[prop.GameID] == nil {
			s.byGame[prop.GameID] = make(map[domain.LineHash]struct{})
		}
		s.byGame[prop.GameID][hash] = struct{}{}
	}
}

// remove must be called with the shard lock held
func (s *l1Shard) remove(hash domain.LineHash, entry *l1Entry) {
	delete(s.entries, hash)
	s.lru.Remove(entry.lruElem)

	if set := s.bySport[entry.prop.Sport]; set != nil {
		delete(set, hash)
		if len(set) == 0 {
			delete(s.bySport, entry.prop.Sport)
		}
	}
	if entry.prop.GameID != "" {
		if set := s.byGame[entry.prop.GameID]; set != nil {
			delete(set, hash)
			if len(set) == 0 {
				delete(s.byGame, entry.prop.GameID)
			}
		}
	}
}
