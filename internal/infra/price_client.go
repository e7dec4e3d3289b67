package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/domain"
)

// DefaultUserAgent identifies the tool to the price service.
const DefaultUserAgent = AppName + "/0.1"

// maxBodyBytes caps the price response; a simple/price body is tiny.
const maxBodyBytes = 1 << 20

// simplePriceResponse is the CoinGecko /simple/price body:
// {"ripple": {"usd": 0.52}}
type simplePriceResponse map[string]map[string]json.Number

// PriceClient fetches spot prices from a CoinGecko-compatible API.
// One FetchRate is at most one HTTP request; it never retries.
type PriceClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client

	// Optional
	cache   *RateCache
	limiter *RateLimiter
	breaker *CircuitBreaker
	metrics *Metrics
}

// PriceClientOption customizes a PriceClient.
type PriceClientOption func(*PriceClient)

// WithAPIKey sends the demo API key header.
func WithAPIKey(key string) PriceClientOption {
	return func(c *PriceClient) { c.apiKey = key }
}

// WithRateCache serves repeated lookups from cache.
func WithRateCache(cache *RateCache) PriceClientOption {
	return func(c *PriceClient) { c.cache = cache }
}

// WithRateLimiter skips the request when the limiter has no tokens.
func WithRateLimiter(limiter *RateLimiter) PriceClientOption {
	return func(c *PriceClient) { c.limiter = limiter }
}

// WithCircuitBreaker skips requests while the breaker is open.
func WithCircuitBreaker(cb *CircuitBreaker) PriceClientOption {
	return func(c *PriceClient) { c.breaker = cb }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *Metrics) PriceClientOption {
	return func(c *PriceClient) { c.metrics = m }
}

// NewPriceClient creates a client with an explicit per-request timeout.
func NewPriceClient(baseURL string, timeout time.Duration, opts ...PriceClientOption) *PriceClient {
	c := &PriceClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPriceClientFromConfig wires cache, limiter and breaker from cfg.
func NewPriceClientFromConfig(cfg *Config, metrics *Metrics) (*PriceClient, error) {
	ps := cfg.PriceService
	opts := []PriceClientOption{WithAPIKey(ps.APIKey), WithMetrics(metrics)}

	if ps.CacheTTLSec > 0 {
		cache, err := NewRateCache(time.Duration(ps.CacheTTLSec) * time.Second)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRateCache(cache))
	}
	if ps.RequestsPerMin > 0 {
		burst := ps.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, WithRateLimiter(NewRateLimiter(burst, float64(ps.RequestsPerMin)/60)))
	}
	if ps.Breaker.FailureThreshold > 0 {
		bc := DefaultCircuitBreakerConfig("price_service")
		bc.FailureThreshold = ps.Breaker.FailureThreshold
		if ps.Breaker.SuccessThreshold > 0 {
			bc.SuccessThreshold = ps.Breaker.SuccessThreshold
		}
		if ps.Breaker.CooldownSec > 0 {
			bc.Timeout = time.Duration(ps.Breaker.CooldownSec) * time.Second
		}
		bc.OnStateChange = metrics.SetBreakerState
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(bc)))
	}

	return NewPriceClient(ps.URL, time.Duration(ps.TimeoutSec)*time.Second, opts...), nil
}

// FetchRate returns the price of one assetID in base. Every failure wraps
// domain.ErrRateFetch.
func (c *PriceClient) FetchRate(ctx context.Context, base domain.FiatCurrency, assetID string) (decimal.Decimal, error) {
	key := assetID + "/" + base.Lower()

	if c.cache != nil {
		if rate, ok := c.cache.Get(key); ok {
			c.metrics.ObserveRateFetch("cache_hit", 0)
			return rate, nil
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		c.metrics.ObserveRateFetch("skipped", 0)
		return decimal.Zero, fmt.Errorf("%w: %s: circuit breaker open", domain.ErrRateFetch, key)
	}
	if c.limiter != nil && !c.limiter.TryAcquire() {
		c.metrics.ObserveRateFetch("skipped", 0)
		return decimal.Zero, fmt.Errorf("%w: %s: client rate limit reached", domain.ErrRateFetch, key)
	}

	start := time.Now()
	rate, err := c.doFetch(ctx, base, assetID)
	elapsed := time.Since(start)

	if err != nil {
		// The caller gave up; that says nothing about the service.
		if ctx.Err() == nil && c.breaker != nil {
			c.breaker.RecordFailure()
		}
		c.metrics.ObserveRateFetch("error", elapsed)
		slog.Debug("Price fetch failed", slog.String("pair", key), slog.Any("error", err))
		return decimal.Zero, fmt.Errorf("%w: %s: %w", domain.ErrRateFetch, key, err)
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	if c.cache != nil {
		c.cache.Set(key, rate)
	}
	c.metrics.ObserveRateFetch("ok", elapsed)
	slog.Debug("Price fetched",
		slog.String("pair", key),
		slog.String("rate", rate.String()),
		slog.Duration("elapsed", elapsed))
	return rate, nil
}

func (c *PriceClient) doFetch(ctx context.Context, base domain.FiatCurrency, assetID string) (decimal.Decimal, error) {
	u, err := url.Parse(c.baseURL + "/simple/price")
	if err != nil {
		return decimal.Zero, err
	}
	q := u.Query()
	q.Set("ids", assetID)
	q.Set("vs_currencies", base.Lower())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return decimal.Zero, err
	}

	var data simplePriceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}

	quotes, ok := data[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("asset %q missing from response", assetID)
	}
	price, ok := quotes[base.Lower()]
	if !ok || price == "" {
		return decimal.Zero, fmt.Errorf("currency %q missing from response", base.Lower())
	}

	rate, err := decimal.NewFromString(price.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad price %q: %w", price, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.New("price must be positive")
	}
	return rate, nil
}

// Close releases the rate cache.
func (c *PriceClient) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
