package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

// ErrTimeout is returned when the marketplace did not answer in time.
var ErrTimeout = errors.New("resource: request timed out")

// Request is a single call to the marketplace API.
type Request struct {
	Method string
	// Path is relative to the service base URL, e.g. "/categories/42".
	Path  string
	Query url.Values
	// Token is sent as a bearer credential when non-empty.
	Token       string
	Body        []byte
	ContentType string
	// Resource labels backend metrics; defaults to Path.
	Resource string
}

// Response is the raw answer of the marketplace.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Executor performs HTTP calls against the marketplace API with a circuit
// breaker, bounded retries with exponential backoff and a response size
// limit. Errors returned by Do are always transport-level: any HTTP answer,
// including 4xx and 5xx, is returned as a Response.
type Executor struct {
	cfg     config.ServiceConfig
	baseURL string
	client  *http.Client
	breaker *Breaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewExecutor creates an Executor for the given service. metrics may be nil.
func NewExecutor(cfg config.ServiceConfig, logger *zap.Logger, metrics *observability.Metrics) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := cfg.CircuitBreaker
	e := &Executor{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout,
			cb.ErrorRateThreshold, cb.ErrorRateWindow),
		logger:  logger,
		metrics: metrics,
	}
	e.breaker.OnStateChange(func(s BreakerState) {
		metrics.SetBackendCircuitBreakerState(float64(s))
		logger.Warn("marketplace circuit breaker changed state", zap.String("state", s.String()))
	})
	return e
}

// Breaker exposes the executor's circuit breaker.
func (e *Executor) Breaker() *Breaker { return e.breaker }

// HealthCheck reports the marketplace as unhealthy while the breaker is open.
func (e *Executor) HealthCheck(context.Context) error {
	if e.breaker.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Do executes req, retrying retryable outcomes when the method allows it.
func (e *Executor) Do(ctx context.Context, req Request) (Response, error) {
	resourceLabel := req.Resource
	if resourceLabel == "" {
		resourceLabel = req.Path
	}

	ctx, span := observability.StartSpan(ctx, "resource.request",
		attribute.String("http.request.method", req.Method),
		attribute.String("marketdesk.resource", resourceLabel),
	)
	resp, err := e.executeWithRetry(ctx, req, resourceLabel)
	if err == nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	observability.EndSpanWithError(span, err)
	return resp, err
}

func (e *Executor) executeWithRetry(ctx context.Context, req Request, resourceLabel string) (Response, error) {
	retry := e.cfg.Retry
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	canRetry := isIdempotentMethod(req.Method) || !retry.IdempotentOnly

	var (
		last    Response
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			e.metrics.RecordBackendRetry(req.Method)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(calculateBackoff(retry, attempt)):
			}
		}

		resp, err := e.executeOnce(ctx, req, resourceLabel)
		if err != nil {
			lastErr = err
			if !canRetry || errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
				return Response{}, err
			}
			e.logger.Debug("retrying marketplace call after error",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt+1),
				zap.Int("max", attempts),
				zap.Error(err),
			)
			continue
		}

		if canRetry && isRetryableStatus(resp.StatusCode) && attempt < attempts-1 {
			last, lastErr = resp, nil
			e.logger.Debug("retrying marketplace call after status",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return Response{}, lastErr
	}
	return last, nil
}

func (e *Executor) executeOnce(ctx context.Context, req Request, resourceLabel string) (Response, error) {
	if err := e.breaker.Allow(); err != nil {
		return Response{}, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, e.buildURL(req), body)
	if err != nil {
		return Response{}, fmt.Errorf("resource: build request: %w", err)
	}
	httpReq.Header = buildHeaders(ctx, req)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.breaker.RecordFailure()
		e.metrics.RecordBackendRequest(req.Method, resourceLabel, 0, time.Since(start))
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		if isTimeout(err) {
			return Response{}, ErrTimeout
		}
		return Response{}, fmt.Errorf("resource: %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	limit := e.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	e.metrics.RecordBackendRequest(req.Method, resourceLabel, resp.StatusCode, time.Since(start))
	if err != nil {
		e.breaker.RecordFailure()
		return Response{}, fmt.Errorf("resource: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		e.breaker.RecordFailure()
	case resp.StatusCode < 400:
		e.breaker.RecordSuccess()
	}

	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (e *Executor) buildURL(req Request) string {
	u := e.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func buildHeaders(ctx context.Context, req Request) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		h.Set("Content-Type", sanitizeHeader(ct))
	}
	if req.Token != "" {
		h.Set("Authorization", "Bearer "+sanitizeHeader(req.Token))
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	observability.InjectTraceHeaders(ctx, h)
	return h
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	initial, mult, ceiling := cfg.BackoffInitial, cfg.BackoffMultiplier, cfg.BackoffMax
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if mult <= 0 {
		mult = 2
	}
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt && delay < ceiling; i++ {
		delay = time.Duration(float64(delay) * mult)
	}
	return min(delay, ceiling)
}
