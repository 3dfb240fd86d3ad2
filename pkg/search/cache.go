package search

import (
	"context"
	"sync"
	"time"
)

// Kind selects one of the two result lists of a session.
type Kind int

const (
	KindStrict Kind = iota
	KindFuzzy
)

func (k Kind) String() string {
	if k == KindFuzzy {
		return "fuzzy"
	}
	return "strict"
}

// DefaultCacheTTL bounds how long a session's results are kept.
const DefaultCacheTTL = 10 * time.Minute

// Cache keeps the results already computed for a session. Each list only grows
// contiguously from offset zero; Extend ignores ranges that are already filled
// and ranges that would leave a gap. Once Seal confirms a list is complete,
// Page can answer short tail pages and MatchedIDs becomes available.
type Cache interface {
	Page(ctx context.Context, session int64, kind Kind, offset, limit int) ([]Result, bool, error)
	Extend(ctx context.Context, session int64, kind Kind, offset int, items []Result) error
	Seal(ctx context.Context, session int64, kind Kind, total int) error
	MatchedIDs(ctx context.Context, session int64) (map[string]struct{}, bool, error)
}

type resultList struct {
	items  []Result
	sealed bool
}

type cacheEntry struct {
	lists    [2]resultList
	matched  map[string]struct{}
	lastUsed time.Time
}

// MemoryCache is a process-local Cache. Stale sessions are dropped lazily on
// access, so it never starts goroutines of its own.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[int64]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[int64]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Page(_ context.Context, session int64, kind Kind, offset, limit int) ([]Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.lookup(session)
	if entry == nil {
		return nil, false, nil
	}
	page, ok := slicePage(entry.lists[kind].items, entry.lists[kind].sealed, offset, limit)
	return page, ok, nil
}

func (c *MemoryCache) Extend(_ context.Context, session int64, kind Kind, offset int, items []Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evict()
	entry := c.lookup(session)
	if entry == nil {
		entry = &cacheEntry{matched: make(map[string]struct{}), lastUsed: c.now()}
		c.entries[session] = entry
	}

	list := &entry.lists[kind]
	fresh := newItems(len(list.items), offset, items)
	list.items = append(list.items, fresh...)
	if kind == KindStrict {
		for _, r := range fresh {
			entry.matched[r.StickerID] = struct{}{}
		}
	}
	return nil
}

func (c *MemoryCache) Seal(_ context.Context, session int64, kind Kind, total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry := c.lookup(session); entry != nil && len(entry.lists[kind].items) == total {
		entry.lists[kind].sealed = true
	}
	return nil
}

func (c *MemoryCache) MatchedIDs(_ context.Context, session int64) (map[string]struct{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.lookup(session)
	if entry == nil || !entry.lists[KindStrict].sealed {
		return nil, false, nil
	}
	ids := make(map[string]struct{}, len(entry.matched))
	for id := range entry.matched {
		ids[id] = struct{}{}
	}
	return ids, true, nil
}

// Len returns the number of live sessions.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evict()
	return len(c.entries)
}

func (c *MemoryCache) lookup(session int64) *cacheEntry {
	entry, ok := c.entries[session]
	if !ok {
		return nil
	}
	now := c.now()
	if now.Sub(entry.lastUsed) > c.ttl {
		delete(c.entries, session)
		return nil
	}
	entry.lastUsed = now
	return entry
}

func (c *MemoryCache) evict() {
	now := c.now()
	for session, entry := range c.entries {
		if now.Sub(entry.lastUsed) > c.ttl {
			delete(c.entries, session)
		}
	}
}

// slicePage answers a page from a cached list: a full page when the list is
// long enough, a short tail when the list is known to be complete.
func slicePage(items []Result, sealed bool, offset, limit int) ([]Result, bool) {
	switch {
	case offset+limit <= len(items):
		return append([]Result(nil), items[offset:offset+limit]...), true
	case sealed && offset <= len(items):
		return append([]Result(nil), items[offset:]...), true
	}
	return nil, false
}

// newItems returns the part of items, fetched at offset, that extends a list
// currently holding have entries. Gaps yield nothing.
func newItems(have, offset int, items []Result) []Result {
	if offset > have {
		return nil
	}
	skip := have - offset
	if skip >= len(items) {
		return nil
	}
	return items[skip:]
}
