package bin

import (
	"time"

	"github.com/mstgnz/vpos/provider"
	"github.com/patrickmn/go-cache"
)

// Cache is a short lived TTL map of BIN prefix to BinInfo. Entries expire
// on their own; there is no invalidation.
type Cache struct {
	items *cache.Cache
}

// NewCache creates a cache whose entries live for ttl
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{items: cache.New(ttl, 2*ttl)}
}

// Get returns a copy of the cached entry for prefix
func (c *Cache) Get(prefix string) (*provider.BinInfo, bool) {
	v, ok := c.items.Get(prefix)
	if !ok {
		return nil, false
	}
	info := *v.(*provider.BinInfo)
	return &info, true
}

// Set stores info under prefix with the default TTL
func (c *Cache) Set(prefix string, info *provider.BinInfo) {
	stored := *info
	c.items.Set(prefix, &stored, cache.DefaultExpiration)
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.items.ItemCount()
}
