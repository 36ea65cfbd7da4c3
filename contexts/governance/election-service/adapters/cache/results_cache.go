package cache

import (
	"context"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	"guildhall/contexts/governance/election-service/ports"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const (
	defaultResultsCacheSize = 256
	defaultComputeTimeout   = 10 * time.Second
)

// ResultsCache memoizes tallies by ledger version. Concurrent reads of the
// same version share one computation; a new ballot changes the version, so a
// cached entry is never served for a newer ledger.
type ResultsCache struct {
	entries *lru.Cache
	group   singleflight.Group

	// ComputeTimeout bounds a shared computation, which runs detached from
	// the caller that started it.
	ComputeTimeout time.Duration
}

func NewResultsCache(size int) (*ResultsCache, error) {
	if size <= 0 {
		size = defaultResultsCacheSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ResultsCache{entries: entries, ComputeTimeout: defaultComputeTimeout}, nil
}

func (c *ResultsCache) Load(
	ctx context.Context,
	version string,
	compute func(context.Context) (entities.ElectionResults, error),
) (entities.ElectionResults, error) {
	if value, ok := c.entries.Get(version); ok {
		if results, ok := value.(entities.ElectionResults); ok {
			return results, nil
		}
	}
	ch := c.group.DoChan(version, func() (any, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout())
		defer cancel()
		results, err := compute(computeCtx)
		if err != nil {
			return entities.ElectionResults{}, err
		}
		c.entries.Add(version, results)
		return results, nil
	})
	select {
	case <-ctx.Done():
		return entities.ElectionResults{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return entities.ElectionResults{}, res.Err
		}
		return res.Val.(entities.ElectionResults), nil
	}
}

func (c *ResultsCache) computeTimeout() time.Duration {
	if c.ComputeTimeout > 0 {
		return c.ComputeTimeout
	}
	return defaultComputeTimeout
}

// Len reports how many versions are cached.
func (c *ResultsCache) Len() int {
	return c.entries.Len()
}

var _ ports.ResultsCache = (*ResultsCache)(nil)
