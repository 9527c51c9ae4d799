package credit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryCacheKey = "credit:summary"

// SummaryCache keeps the credit summary aggregate in Redis for a short TTL so
// dashboard polling does not hit the invoice table on every request.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache constructs the cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

// Get returns the cached summary or nil on a miss.
func (c *SummaryCache) Get(ctx context.Context) (*Summary, error) {
	data, err := c.client.Get(ctx, summaryCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Set stores the summary.
func (c *SummaryCache) Set(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryCacheKey, data, c.ttl).Err()
}

// Invalidate drops the cached summary after a mutation.
func (c *SummaryCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, summaryCacheKey).Err()
}
