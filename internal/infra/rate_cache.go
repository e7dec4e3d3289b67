package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/shopspring/decimal"
)

// RateCache keeps recent quotes for a short TTL. bigcache only evicts on
// its clean window, so each entry carries its own timestamp and Get
// enforces the TTL exactly.
type RateCache struct {
	cache *bigcache.BigCache
	ttl   time.Duration
	now   func() time.Time
}

// NewRateCache creates a cache whose entries expire after ttl.
func NewRateCache(ttl time.Duration) (*RateCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.CleanWindow = ttl
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64
	cfg.HardMaxCacheSize = 1 // MB
	cfg.Verbose = false

	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate cache: %w", err)
	}
	return &RateCache{cache: c, ttl: ttl, now: time.Now}, nil
}

// Get returns a cached rate if present and fresh.
func (c *RateCache) Get(key string) (decimal.Decimal, bool) {
	raw, err := c.cache.Get(key)
	if err != nil {
		return decimal.Zero, false
	}

	ts, value, ok := strings.Cut(string(raw), "|")
	if !ok {
		return decimal.Zero, false
	}
	storedAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || c.now().Sub(time.Unix(0, storedAt)) >= c.ttl {
		return decimal.Zero, false
	}

	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return rate, true
}

// Set stores rate under key.
func (c *RateCache) Set(key string, rate decimal.Decimal) {
	entry := strconv.FormatInt(c.now().UnixNano(), 10) + "|" + rate.String()
	_ = c.cache.Set(key, []byte(entry))
}

// Close stops the cleanup goroutine.
func (c *RateCache) Close() error {
	return c.cache.Close()
}
