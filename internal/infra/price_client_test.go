package infra

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"xrpl_qr/internal/domain"
)

// MockRoundTripper allows us to mock HTTP responses
type MockRoundTripper struct {
	Func func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Func(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestPriceClient_FetchRate(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/api/v3/simple/price" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "ripple" {
			t.Errorf("Unexpected ids: %s", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "eur" {
			t.Errorf("Unexpected vs_currencies: %s", got)
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "demo-key" {
			t.Errorf("Unexpected api key header: %q", got)
		}
		w.Write([]byte(`{"ripple":{"eur":0.4771}}`))
	}))
	defer srv.Close()

	client := NewPriceClient(srv.URL+"/api/v3/", 5*time.Second, WithAPIKey("demo-key"))
	rate, err := client.FetchRate(context.Background(), domain.EUR, "ripple")
	if err != nil {
		t.Fatalf("FetchRate failed: %v", err)
	}
	if rate.String() != "0.4771" {
		t.Errorf("Expected 0.4771, got %s", rate)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 request, got %d", hits)
	}
}

func TestPriceClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"rate limited", http.StatusTooManyRequests, `{"status":{"error_code":429}}`},
		{"missing asset", http.StatusOK, `{}`},
		{"missing currency", http.StatusOK, `{"ripple":{"usd":0.52}}`},
		{"null price", http.StatusOK, `{"ripple":{"eur":null}}`},
		{"zero price", http.StatusOK, `{"ripple":{"eur":0}}`},
		{"not json", http.StatusOK, `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewPriceClient("https://price.test/api/v3", time.Second)
			client.httpClient.Transport = &MockRoundTripper{
				Func: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(tt.status, tt.body), nil
				},
			}

			_, err := client.FetchRate(context.Background(), domain.EUR, "ripple")
			if !errors.Is(err, domain.ErrRateFetch) {
				t.Errorf("Expected ErrRateFetch, got %v", err)
			}
		})
	}
}

func TestPriceClient_NetworkError(t *testing.T) {
	client := NewPriceClient("https://price.test/api/v3", time.Second)
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	_, err := client.FetchRate(context.Background(), domain.USD, "ripple")
	if !errors.Is(err, domain.ErrRateFetch) {
		t.Errorf("Expected ErrRateFetch, got %v", err)
	}
}

func TestPriceClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewPriceClient(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := client.FetchRate(context.Background(), domain.USD, "ripple")
	if !errors.Is(err, domain.ErrRateFetch) {
		t.Errorf("Expected ErrRateFetch, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Timeout not enforced, took %s", time.Since(start))
	}
}

func TestPriceClient_CacheAvoidsSecondRequest(t *testing.T) {
	var hits int32
	client := NewPriceClient("https://price.test/api/v3", time.Second)
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&hits, 1)
			return jsonResponse(http.StatusOK, `{"ripple":{"usd":0.52}}`), nil
		},
	}

	cache, err := NewRateCache(time.Minute)
	if err != nil {
		t.Fatalf("NewRateCache failed: %v", err)
	}
	client.cache = cache
	defer client.Close()

	for i := 0; i < 3; i++ {
		rate, err := client.FetchRate(context.Background(), domain.USD, "ripple")
		if err != nil {
			t.Fatalf("FetchRate failed: %v", err)
		}
		if rate.String() != "0.52" {
			t.Errorf("Expected 0.52, got %s", rate)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 request with cache, got %d", hits)
	}
}

func TestPriceClient_OpenBreakerSkipsRequest(t *testing.T) {
	var hits int32
	metrics := NewMetrics()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "price_service",
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange:    metrics.SetBreakerState,
	})

	client := NewPriceClient("https://price.test/api/v3", time.Second, WithCircuitBreaker(cb), WithMetrics(metrics))
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&hits, 1)
			return jsonResponse(http.StatusBadGateway, ``), nil
		},
	}

	for i := 0; i < 4; i++ {
		if _, err := client.FetchRate(context.Background(), domain.USD, "ripple"); !errors.Is(err, domain.ErrRateFetch) {
			t.Fatalf("call %d: expected ErrRateFetch, got %v", i, err)
		}
	}

	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected breaker to stop requests after 2 failures, got %d", hits)
	}
	if got := testutil.ToFloat64(metrics.rateFetches.WithLabelValues("skipped")); got != 2 {
		t.Errorf("Expected 2 skipped fetches, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("price_service")); got != float64(StateOpen) {
		t.Errorf("Expected breaker gauge OPEN, got %v", got)
	}
}

func TestPriceClient_CancelledContextDoesNotTripBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "price_service", FailureThreshold: 1, Timeout: time.Minute})
	client := NewPriceClient("https://price.test/api/v3", time.Second, WithCircuitBreaker(cb))
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchRate(ctx, domain.USD, "ripple")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected breaker CLOSED, got %s", cb.GetState())
	}
}

func TestPriceClient_RateLimiterSkipsRequest(t *testing.T) {
	var hits int32
	clock := newFakeClock()
	client := NewPriceClient("https://price.test/api/v3", time.Second,
		WithRateLimiter(newRateLimiterWithClock(1, 1, clock.Now)))
	client.httpClient.Transport = &MockRoundTripper{
		Func: func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&hits, 1)
			return jsonResponse(http.StatusOK, `{"ripple":{"usd":0.52}}`), nil
		},
	}

	if _, err := client.FetchRate(context.Background(), domain.USD, "ripple"); err != nil {
		t.Fatalf("first FetchRate failed: %v", err)
	}
	if _, err := client.FetchRate(context.Background(), domain.USD, "ripple"); !errors.Is(err, domain.ErrRateFetch) {
		t.Errorf("Expected ErrRateFetch when limited, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 request, got %d", hits)
	}
}

func TestNewPriceClientFromConfig_BreakerDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriceService.Breaker.FailureThreshold = 5
	cfg.PriceService.Breaker.SuccessThreshold = 0
	cfg.PriceService.Breaker.CooldownSec = 0

	client, err := NewPriceClientFromConfig(cfg, NewMetrics())
	if err != nil {
		t.Fatal(err)
	}
	cb := client.breaker
	if cb == nil {
		t.Fatal("expected a circuit breaker")
	}
	def := DefaultCircuitBreakerConfig("price_service")
	if cb.name != "price_service" || cb.failureThreshold != 5 {
		t.Errorf("configured values not applied: name=%s failures=%d", cb.name, cb.failureThreshold)
	}
	if cb.successThreshold != def.SuccessThreshold || cb.timeout != def.Timeout {
		t.Errorf("unset values should fall back to defaults, got success=%d timeout=%s", cb.successThreshold, cb.timeout)
	}

	cfg.PriceService.Breaker.FailureThreshold = 0
	client, err = NewPriceClientFromConfig(cfg, NewMetrics())
	if err != nil {
		t.Fatal(err)
	}
	if client.breaker != nil {
		t.Error("a zero failure threshold disables the breaker")
	}
}
