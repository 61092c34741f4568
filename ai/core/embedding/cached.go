package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedService memoizes embeddings by exact text. Concurrent requests for
// the same text share one upstream call.
type CachedService struct {
	next  Service
	memo  *expirable.LRU[string, []float32]
	group singleflight.Group
}

// NewCachedService wraps next with an LRU of size entries that expire after ttl.
func NewCachedService(next Service, size int, ttl time.Duration) *CachedService {
	if size <= 0 {
		size = 512
	}
	return &CachedService{
		next: next,
		memo: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedService) Identity() string {
	return c.next.Identity()
}

func (c *CachedService) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.memo.Get(text); ok {
		return v, nil
	}

	// Waiters may leave early; the shared call runs on under the wrapped
	// service's own timeout.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (any, error) {
		if vec, ok := c.memo.Get(text); ok {
			return vec, nil
		}
		vec, err := c.next.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		c.memo.Add(text, vec)
		return vec, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of memoized vectors.
func (c *CachedService) Len() int {
	return c.memo.Len()
}
