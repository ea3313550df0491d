package model

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings of repeated texts, mostly user queries
// that are re-asked within a session.
type CachedEmbedder struct {
	next  Embedder
	cache *cache.Cache
}

func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if x, found := e.cache.Get(text); found {
		return x.([]float32), nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, cache.DefaultExpiration)
	return vec, nil
}
