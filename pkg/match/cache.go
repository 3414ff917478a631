package match

import (
	"github.com/Yiling-J/theine-go"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 1000

// Cache memoizes compiled matchers keyed by the normalized pattern
// string, so repeated queries with identical type sets skip
// recompilation. Safe for concurrent use.
type Cache struct {
	cache *theine.Cache[string, *Matcher]
	group singleflight.Group
}

// NewCache builds a matcher cache holding up to maxEntries compiled
// matchers.
func NewCache(maxEntries int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheSize
	}
	cache, err := theine.NewBuilder[string, *Matcher](maxEntries).Build()
	if err != nil {
		panic("failed to build matcher cache: " + err.Error())
	}
	return &Cache{cache: cache}
}

// Get returns the compiled matcher for the pattern set, compiling and
// caching it on first use. Concurrent callers with the same key share a
// single compilation.
func (c *Cache) Get(patterns []TypePattern) (*Matcher, error) {
	key := Key(patterns)
	if m, ok := c.cache.Get(key); ok {
		return m, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		m, err := Compile(patterns)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, m, 1)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matcher), nil
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.cache.Close()
}
