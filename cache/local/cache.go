package local

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func newEntry(value string, ttl time.Duration) *entry {
	e := &entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	return e
}

// LocalCache is an in-process cache for single-node deployments and tests.
type LocalCache struct {
	mu     sync.Mutex
	kv     map[string]*entry
	zsets  map[string]*zset
	lists  map[string][]string
	gcStep time.Duration
	stopGC chan struct{}
	once   sync.Once
}

// NewCache creates a LocalCache and starts the background expiry sweep.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:     make(map[string]*entry),
		zsets:  make(map[string]*zset),
		lists:  make(map[string][]string),
		gcStep: interval,
		stopGC: make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background sweep. It is safe to call more than once.
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcStep)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// ---- KV ----

func (c *LocalCache) load(key string) (*entry, bool) {
	e, ok := c.kv[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.kv, key)
		return nil, false
	}
	return e, true
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.load(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = newEntry(value, ttl)
	return nil
}

// Del removes keys of any kind.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.zsets, k)
		delete(c.lists, k)
	}
	return nil
}

// ---- ZSet ----

// Member is a sorted-set member with its score.
type Member struct {
	Member string
	Score  float64
}

type zset struct {
	entries []Member // ascending by score, then member
}

func (z *zset) upsert(score float64, member string) {
	for i, e := range z.entries {
		if e.Member == member {
			z.entries = append(z.entries[:i], z.entries[i+1:]...)
			break
		}
	}
	i := sort.Search(len(z.entries), func(i int) bool {
		e := z.entries[i]
		return e.Score > score || (e.Score == score && e.Member > member)
	})
	z.entries = append(z.entries, Member{})
	copy(z.entries[i+1:], z.entries[i:])
	z.entries[i] = Member{Member: member, Score: score}
}

func (c *LocalCache) ZAdd(_ context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = &zset{}
		c.zsets[key] = z
	}
	z.upsert(score, member)
	return nil
}

// ZRange returns members by ascending score. Negative indexes count from
// the end, as in Redis.
func (c *LocalCache) ZRange(_ context.Context, key string, start, stop int64) ([]Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		return nil, nil
	}
	lo, hi, ok := bounds(int64(len(z.entries)), start, stop)
	if !ok {
		return nil, nil
	}
	return append([]Member(nil), z.entries[lo:hi+1]...), nil
}

func (c *LocalCache) ZScore(_ context.Context, key, member string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if z, ok := c.zsets[key]; ok {
		for _, e := range z.entries {
			if e.Member == member {
				return e.Score, nil
			}
		}
	}
	return 0, ErrNotFound
}

func (c *LocalCache) ZCard(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if z, ok := c.zsets[key]; ok {
		return int64(len(z.entries)), nil
	}
	return 0, nil
}

// ---- List ----

// LPush prepends values one by one, so the last value ends up at index 0.
func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	head := make([]string, 0, len(values)+len(l))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	c.lists[key] = append(head, l...)
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	lo, hi, ok := bounds(int64(len(l)), start, stop)
	if !ok {
		return nil, nil
	}
	return append([]string(nil), l[lo:hi+1]...), nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	lo, hi, ok := bounds(int64(len(l)), start, stop)
	if !ok {
		delete(c.lists, key)
		return nil
	}
	c.lists[key] = append([]string(nil), l[lo:hi+1]...)
	return nil
}

// bounds resolves Redis-style inclusive indexes against a length n.
func bounds(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
