package resource

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

func testServiceConfig(baseURL string) config.ServiceConfig {
	return config.ServiceConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
		Retry: config.RetryConfig{
			MaxAttempts:    1,
			BackoffInitial: time.Millisecond,
			BackoffMax:     5 * time.Millisecond,
			IdempotentOnly: true,
		},
	}
}

func TestExecutor_Do_buildsRequest(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := NewExecutor(testServiceConfig(srv.URL+"/api/"), nil, nil)
	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{CorrelationID: "corr-1"})

	resp, err := exec.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "categories",
		Query:  map[string][]string{"page": {"2"}},
		Token:  "tok\r\nX-Evil: 1",
		Body:   []byte(`{"name":"Hair"}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if got.URL.Path != "/api/categories" {
		t.Errorf("path = %q, want /api/categories", got.URL.Path)
	}
	if got.URL.Query().Get("page") != "2" {
		t.Errorf("page = %q, want 2", got.URL.Query().Get("page"))
	}
	if h := got.Header.Get("Authorization"); h != "Bearer tokX-Evil: 1" {
		t.Errorf("Authorization = %q, want sanitized bearer", h)
	}
	if got.Header.Get("X-Evil") != "" {
		t.Error("header injection should be stripped")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if got.Header.Get("X-Correlation-Id") != "corr-1" {
		t.Errorf("X-Correlation-Id = %q, want corr-1", got.Header.Get("X-Correlation-Id"))
	}
	if gotBody != `{"name":"Hair"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestExecutor_Do_noTokenNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Authorization should be absent, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("Content-Type should be absent without body")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewExecutor(testServiceConfig(srv.URL), nil, nil)
	if _, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/salons"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

func TestExecutor_Do_retriesIdempotentOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.Retry.MaxAttempts = 3
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	exec := NewExecutor(cfg, nil, metrics)

	resp, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/workers"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	if v := testutil.ToFloat64(metrics.BackendRetriesTotal.WithLabelValues("GET")); v != 2 {
		t.Errorf("retries metric = %v, want 2", v)
	}
}

func TestExecutor_Do_noRetryForPostWhenIdempotentOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.Retry.MaxAttempts = 3
	exec := NewExecutor(cfg, nil, nil)

	resp, err := exec.Do(context.Background(), Request{Method: http.MethodPost, Path: "/workers", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestExecutor_Do_exhaustedRetriesReturnLastResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		w.Write([]byte(`{"message":"upstream slow"}`))
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.Retry.MaxAttempts = 2
	exec := NewExecutor(cfg, nil, nil)

	resp, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/workers"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "upstream slow") {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestExecutor_Do_clientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.CircuitBreaker.FailureThreshold = 2
	exec := NewExecutor(cfg, nil, nil)

	for i := 0; i < 5; i++ {
		if _, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if s := exec.Breaker().State(); s != BreakerClosed {
		t.Errorf("breaker = %v, want closed", s)
	}
}

func TestExecutor_Do_openBreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.CircuitBreaker.FailureThreshold = 2
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	exec := NewExecutor(cfg, nil, metrics)

	for i := 0; i < 2; i++ {
		exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	}
	_, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Do() error = %v, want ErrCircuitOpen", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
	if v := testutil.ToFloat64(metrics.BackendCircuitBreakerState); v != float64(BreakerOpen) {
		t.Errorf("breaker gauge = %v, want %d", v, BreakerOpen)
	}
	if err := exec.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail while the breaker is open")
	}
}

func TestExecutor_Do_connectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	exec := NewExecutor(testServiceConfig(url), nil, nil)
	if _, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}); err == nil {
		t.Fatal("Do() against a closed server should fail")
	}
}

func TestExecutor_Do_contextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	exec := NewExecutor(testServiceConfig(srv.URL), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Do(ctx, Request{Method: http.MethodGet, Path: "/slow"})
	if err == nil {
		t.Fatal("Do() should fail when the context expires")
	}
}

func TestExecutor_Do_limitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	cfg := testServiceConfig(srv.URL)
	cfg.MaxBodyBytes = 10
	exec := NewExecutor(cfg, nil, nil)

	resp, err := exec.Do(context.Background(), Request{Method: http.MethodGet, Path: "/big"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(resp.Body) != 10 {
		t.Errorf("body length = %d, want 10", len(resp.Body))
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := config.RetryConfig{
		BackoffInitial:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        300 * time.Millisecond,
	}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{6, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := calculateBackoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := calculateBackoff(config.RetryConfig{}, 1); got != 100*time.Millisecond {
		t.Errorf("default backoff = %v, want 100ms", got)
	}
}

func TestIsIdempotentMethod(t *testing.T) {
	tests := map[string]bool{
		http.MethodGet:    true,
		http.MethodPut:    true,
		http.MethodDelete: true,
		http.MethodPost:   false,
		http.MethodPatch:  false,
	}
	for m, want := range tests {
		if got := isIdempotentMethod(m); got != want {
			t.Errorf("isIdempotentMethod(%s) = %v, want %v", m, got, want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{502, 503, 504} {
		if !isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 404, 422, 500} {
		if isRetryableStatus(code) {
			t.Errorf("isRetryableStatus(%d) = true, want false", code)
		}
	}
}
