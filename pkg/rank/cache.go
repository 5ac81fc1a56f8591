package rank

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ResultCache caches a fully-ranked candidate list per (scheme, key) so
// a composition seen again shortly after skips repeat dictionary lookup
// and scoring work. This plays the role the teacher's hand-rolled
// HotCache played for hot word prefixes, generalized from a custom
// access-counter eviction map to a generic LRU, and from "frequency
// int" entries to whole ranked Candidate slices. Callers that mutate
// the user dictionary or switch LLM settings must Invalidate or
// Purge affected keys themselves; the cache has no notion of staleness
// on its own.
type ResultCache struct {
	cache *lru.Cache[string, []Candidate]
}

func NewResultCache(capacity int) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = 256
	}
	c, err := lru.New[string, []Candidate](capacity)
	if err != nil {
		return nil, err
	}
	return &ResultCache{cache: c}, nil
}

func (rc *ResultCache) Get(key string) ([]Candidate, bool) {
	if rc == nil || rc.cache == nil {
		return nil, false
	}
	return rc.cache.Get(key)
}

func (rc *ResultCache) Put(key string, candidates []Candidate) {
	if rc == nil || rc.cache == nil {
		return
	}
	rc.cache.Add(key, candidates)
}

func (rc *ResultCache) Invalidate(key string) {
	if rc == nil || rc.cache == nil {
		return
	}
	rc.cache.Remove(key)
}

func (rc *ResultCache) Purge() {
	if rc == nil || rc.cache == nil {
		return
	}
	rc.cache.Purge()
}

func (rc *ResultCache) Len() int {
	if rc == nil || rc.cache == nil {
		return 0
	}
	return rc.cache.Len()
}
