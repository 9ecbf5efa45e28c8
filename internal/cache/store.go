package cache

import (
	"container/list"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// store is the eviction-policy-specific backing map. Implementations
// are not safe for concurrent use on their own; Cache guards every call
// with its own mutex. set/delete/evictOne return the evicted entry (not
// just its key) so Cache can keep its running byte total in sync
// without a second lookup.
type store interface {
	get(key string) (*Entry, bool)
	set(key string, e *Entry) (evictedKey string, evictedEntry *Entry, evicted bool)
	delete(key string) (*Entry, bool)
	evictOne() (key string, e *Entry, ok bool)
	len() int
	keys() []string
}

// lruStore wraps the hashicorp/golang-lru implementation, the same
// library the rest of the pack's caching layers (datafeed subscription
// indexes) reach for when LRU eviction order must be a real LRU rather
// than hand-rolled bookkeeping.
type lruStore struct {
	c                *lru.Cache[string, *Entry]
	lastEvictedKey   string
	lastEvictedEntry *Entry
}

func newLRUStore(size int) *lruStore {
	s := &lruStore{}
	c, _ := lru.NewWithEvict[string, *Entry](size, func(key string, value *Entry) {
		s.lastEvictedKey = key
		s.lastEvictedEntry = value
	})
	s.c = c
	return s
}

func (s *lruStore) get(key string) (*Entry, bool) { return s.c.Get(key) }
func (s *lruStore) len() int                      { return s.c.Len() }
func (s *lruStore) keys() []string                { return s.c.Keys() }

func (s *lruStore) set(key string, e *Entry) (string, *Entry, bool) {
	s.lastEvictedKey, s.lastEvictedEntry = "", nil
	evicted := s.c.Add(key, e)
	if evicted {
		return s.lastEvictedKey, s.lastEvictedEntry, true
	}
	return "", nil, false
}

func (s *lruStore) delete(key string) (*Entry, bool) {
	e, ok := s.c.Peek(key)
	s.c.Remove(key)
	return e, ok
}

// evictOne forces the eviction of the cache's current LRU victim, used
// when the cache is over its memory bound even though it is under its
// entry-count bound.
func (s *lruStore) evictOne() (string, *Entry, bool) {
	return s.c.RemoveOldest()
}

// fifoStore evicts whichever entry was inserted first, regardless of
// access pattern.
type fifoStore struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[string]*list.Element
}

type fifoElem struct {
	key   string
	entry *Entry
}

func newFIFOStore(maxSize int) *fifoStore {
	return &fifoStore{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

func (s *fifoStore) get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*fifoElem).entry, true
}

func (s *fifoStore) set(key string, e *Entry) (string, *Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		el.Value.(*fifoElem).entry = e
		return "", nil, false
	}
	el := s.order.PushBack(&fifoElem{key: key, entry: e})
	s.items[key] = el

	if s.maxSize > 0 && len(s.items) > s.maxSize {
		return s.evictOldestLocked()
	}
	return "", nil, false
}

func (s *fifoStore) evictOldestLocked() (string, *Entry, bool) {
	oldest := s.order.Front()
	if oldest == nil {
		return "", nil, false
	}
	fe := oldest.Value.(*fifoElem)
	s.order.Remove(oldest)
	delete(s.items, fe.key)
	return fe.key, fe.entry, true
}

func (s *fifoStore) evictOne() (string, *Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictOldestLocked()
}

func (s *fifoStore) delete(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	fe := el.Value.(*fifoElem)
	s.order.Remove(el)
	delete(s.items, key)
	return fe.entry, true
}

func (s *fifoStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *fifoStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*fifoElem).key)
	}
	return out
}

// lfuStore evicts the entry with the fewest accesses since insertion,
// ties broken by recency: the least-recently-accessed of the tied
// entries goes first, same as a plain LRU would order them.
type lfuStore struct {
	mu      sync.Mutex
	maxSize int
	clock   int64
	items   map[string]*lfuElem
}

type lfuElem struct {
	entry      *Entry
	freq       int
	lastAccess int64
}

func newLFUStore(maxSize int) *lfuStore {
	return &lfuStore{maxSize: maxSize, items: make(map[string]*lfuElem)}
}

func (s *lfuStore) get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	el.freq++
	s.clock++
	el.lastAccess = s.clock
	return el.entry, true
}

func (s *lfuStore) set(key string, e *Entry) (string, *Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		el.entry = e
		return "", nil, false
	}
	s.clock++
	s.items[key] = &lfuElem{entry: e, freq: 0, lastAccess: s.clock}

	if s.maxSize > 0 && len(s.items) > s.maxSize {
		return s.evictVictimLocked()
	}
	return "", nil, false
}

func (s *lfuStore) evictVictimLocked() (string, *Entry, bool) {
	var victimKey string
	var victim *lfuElem
	for k, v := range s.items {
		if victim == nil ||
			v.freq < victim.freq ||
			(v.freq == victim.freq && v.lastAccess < victim.lastAccess) {
			victimKey, victim = k, v
		}
	}
	if victim == nil {
		return "", nil, false
	}
	delete(s.items, victimKey)
	return victimKey, victim.entry, true
}

func (s *lfuStore) evictOne() (string, *Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictVictimLocked()
}

func (s *lfuStore) delete(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	delete(s.items, key)
	return el.entry, true
}

func (s *lfuStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *lfuStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}
