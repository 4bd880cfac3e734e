// Package upstream issues outbound calls to third-party JSON APIs with a
// per-attempt timeout, bounded retries and exponential backoff.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/tides-tomes-go/internal/models"
)

const tracerName = "github.com/irfndi/tides-tomes-go/internal/upstream"

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 8 << 20

// Config controls retry behaviour.
type Config struct {
	MaxAttempts    int           `mapstructure:"max_attempts" json:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" json:"max_delay"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay" json:"rate_limit_delay"` // minimum extra wait after a 429
	UserAgent      string        `mapstructure:"user_agent" json:"user_agent"`
}

// DefaultConfig returns three attempts with 2s doubling backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       30 * time.Second,
		RateLimitDelay: 5 * time.Second,
		UserAgent:      "tides-tomes/1.0",
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customises an Executor.
type Option func(*Executor)

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithCircuitBreakers enables per-endpoint circuit breaking.
func WithCircuitBreakers(m *CircuitBreakerManager) Option {
	return func(e *Executor) { e.breakers = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// Executor performs GET requests against JSON APIs. It never caches and
// never synthesises data; failures come back as models.Failed carrying a
// *RequestError.
type Executor struct {
	cfg      Config
	client   *http.Client
	logger   *logrus.Logger
	sleep    Sleeper
	breakers *CircuitBreakerManager
	tracer   trace.Tracer
}

// NewExecutor creates an executor. Zero config fields take defaults.
func NewExecutor(cfg Config, client *http.Client, logger *logrus.Logger, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.RateLimitDelay < 0 {
		cfg.RateLimitDelay = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	e := &Executor{
		cfg:    cfg,
		client: client,
		logger: logger,
		sleep:  sleepContext,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

// Breakers returns the circuit breaker manager, or nil when disabled.
func (e *Executor) Breakers() *CircuitBreakerManager { return e.breakers }

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// Execute runs spec with up to MaxAttempts attempts. Only transient failures
// (network, timeout, 5xx, 429) are retried. Cancellation of ctx aborts the
// in-flight request and any pending backoff.
func (e *Executor) Execute(ctx context.Context, spec models.RequestSpec) models.FetchResult {
	ctx, span := e.tracer.Start(ctx, "upstream.Execute", trace.WithAttributes(
		attribute.String("upstream.endpoint", spec.Endpoint()),
		attribute.String("upstream.ttl_class", string(spec.TTLClass())),
	))
	defer span.End()

	log := e.logger.WithFields(logrus.Fields{
		"component": "upstream",
		"endpoint":  spec.Endpoint(),
	})

	var breaker *CircuitBreaker
	if e.breakers != nil {
		breaker = e.breakers.GetOrCreate(spec.Endpoint())
		if !breaker.Allow() {
			reqErr := &RequestError{Kind: KindCircuitOpen, Endpoint: spec.Endpoint(), Err: errors.New("circuit breaker is open")}
			log.Warn("Circuit breaker is open, rejecting request")
			span.SetStatus(codes.Error, string(reqErr.Kind))
			return models.Failed(reqErr)
		}
	}

	bo := e.newBackOff()
	var lastErr *RequestError
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = &RequestError{Kind: KindCanceled, Endpoint: spec.Endpoint(), Attempts: attempt - 1, Err: err}
			break
		}

		payload, reqErr := e.attempt(ctx, spec)
		if reqErr == nil {
			span.SetAttributes(attribute.Int("upstream.attempts", attempt))
			if breaker != nil {
				breaker.Record(true)
			}
			if attempt > 1 {
				log.WithField("attempt", attempt).Info("Upstream recovered after retry")
			}
			return models.Live(payload)
		}

		reqErr.Attempts = attempt
		lastErr = reqErr
		if !reqErr.Retryable() || attempt == e.cfg.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if reqErr.Kind == KindRateLimited {
			delay += e.rateLimitDelay(reqErr.RetryAfter)
		}
		log.WithFields(logrus.Fields{
			"attempt":     attempt,
			"kind":        reqErr.Kind,
			"status_code": reqErr.StatusCode,
			"delay_ms":    delay.Milliseconds(),
		}).Warn("Upstream attempt failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			lastErr = &RequestError{Kind: KindCanceled, Endpoint: spec.Endpoint(), Attempts: attempt, Err: err}
			break
		}
	}

	if breaker != nil {
		if lastErr.Retryable() {
			breaker.Record(false)
		} else {
			breaker.Release()
		}
	}

	span.SetAttributes(attribute.Int("upstream.attempts", lastErr.Attempts))
	span.SetStatus(codes.Error, string(lastErr.Kind))
	log.WithFields(logrus.Fields{
		"kind":        lastErr.Kind,
		"status_code": lastErr.StatusCode,
		"attempts":    lastErr.Attempts,
	}).Warn("Upstream request failed")
	return models.Failed(lastErr)
}

// rateLimitDelay is the extra wait after a 429: the configured minimum or
// the server's Retry-After, whichever is larger, capped at MaxDelay.
func (e *Executor) rateLimitDelay(retryAfter time.Duration) time.Duration {
	d := e.cfg.RateLimitDelay
	if retryAfter > d {
		d = retryAfter
	}
	if d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	return d
}

func (e *Executor) attempt(ctx context.Context, spec models.RequestSpec) (json.RawMessage, *RequestError) {
	attemptCtx, cancel := context.WithTimeout(ctx, spec.Timeout())
	defer cancel()

	fail := func(kind ErrorKind, status int, err error) *RequestError {
		return &RequestError{Kind: kind, Endpoint: spec.Endpoint(), StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, spec.URL(), nil)
	if err != nil {
		return nil, fail(KindInvalidRequest, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	for k, v := range spec.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fail(classifyTransportError(ctx, err), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fail(classifyTransportError(ctx, err), resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fail(KindAuth, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	case resp.StatusCode == http.StatusTooManyRequests:
		reqErr := fail(KindRateLimited, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
		reqErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, reqErr
	case resp.StatusCode >= 500:
		return nil, fail(KindServerError, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	case resp.StatusCode >= 400:
		return nil, fail(KindClientError, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	if !json.Valid(body) {
		return nil, fail(KindMalformedPayload, resp.StatusCode, errors.New("response body is not valid JSON"))
	}
	return json.RawMessage(body), nil
}

// classifyTransportError separates caller cancellation from per-attempt
// timeouts and other network failures.
func classifyTransportError(parent context.Context, err error) ErrorKind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
