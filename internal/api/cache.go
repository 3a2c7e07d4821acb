package api

import (
	"time"

	"github.com/apibillme/cache"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// searchCache holds recent searches by ID with LRU eviction and a TTL.
type searchCache struct {
	entries cache.Cache
}

func newSearchCache(size int, ttl time.Duration) *searchCache {
	if size < 1 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &searchCache{entries: cache.New(size, cache.WithTTL(ttl))}
}

func (c *searchCache) put(search imagesearch.Search) {
	c.entries.Set(search.ID, search)
}

func (c *searchCache) get(id string) (imagesearch.Search, error) {
	v, ok := c.entries.Get(id)
	if !ok {
		return imagesearch.Search{}, imagesearch.ErrSearchNotFound
	}
	search, ok := v.(imagesearch.Search)
	if !ok {
		return imagesearch.Search{}, imagesearch.ErrSearchNotFound
	}
	return search, nil
}
