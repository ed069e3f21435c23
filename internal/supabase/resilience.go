package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"
)

// RetryConfig shapes the retry loop. The delay before retry n is
// InitialBackoff * BackoffMultiplier^(n-1), capped at MaxBackoff and then
// spread by +/- Jitter (a fraction of the delay).
type RetryConfig struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	b := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if b > float64(c.MaxBackoff) {
		b = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		b += b * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(b)
}

func (c RetryConfig) retryableStatus(code int) bool {
	return slices.Contains(c.RetryableStatusCodes, code)
}

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{CircuitClosed: "closed", CircuitOpen: "open", CircuitHalfOpen: "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// CircuitBreakerConfig tunes the breaker. FailureThreshold consecutive
// failures open the circuit for Timeout; SuccessThreshold good probes
// close it. OnStateChange runs synchronously under the breaker's lock.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the default breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned without contacting the backend while the
// circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker counts consecutive backend failures.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	state  CircuitState

	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker. A zero threshold disables it.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, state: CircuitClosed, now: time.Now}
}

// Allow reports ErrCircuitOpen until Timeout has passed since opening,
// then lets probes through in the half-open state.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess resets the failure count or counts a good probe.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure counts a failure; any failed probe reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.config.FailureThreshold <= 0 {
		return
	}
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	if next == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.config.OnStateChange != nil && prev != next {
		cb.config.OnStateChange(prev, next)
	}
}

// State returns the breaker position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ResilientTransport is an http.RoundTripper that retries transient failures
// and short-circuits while the backend is unhealthy.
type ResilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *CircuitBreaker
	onRetry func(method string, attempt int, reason string)
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientTransport wraps base with retry and circuit breaking.
func NewResilientTransport(base http.RoundTripper, cfg ResilienceConfig) *ResilientTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ResilientTransport{
		base:    base,
		retry:   cfg.Retry,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		onRetry: cfg.OnRetry,
		sleep:   sleepContext,
	}
}

// Breaker exposes the transport's circuit breaker.
func (t *ResilientTransport) Breaker() *CircuitBreaker {
	return t.breaker
}

// RoundTrip implements http.RoundTripper.
func (t *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}

	maxRetries := t.retry.MaxRetries
	if !canRetry(req) {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			clone, err := rewind(req)
			if err != nil {
				return nil, err
			}
			req = clone
		}

		resp, err := t.base.RoundTrip(req)

		reason := ""
		switch {
		case err != nil:
			// Caller cancellation is not a backend failure.
			if req.Context().Err() != nil || callerGaveUp(err) {
				return nil, err
			}
			if !retryableError(err) {
				t.breaker.RecordFailure()
				return nil, err
			}
			reason = err.Error()
		case t.retry.retryableStatus(resp.StatusCode):
			reason = resp.Status
		default:
			t.breaker.RecordSuccess()
			return resp, nil
		}

		if attempt >= maxRetries {
			t.breaker.RecordFailure()
			return resp, err
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
		}
		if t.onRetry != nil {
			t.onRetry(req.Method, attempt+1, reason)
		}
		if err := t.sleep(req.Context(), t.retry.backoff(attempt+1)); err != nil {
			return nil, err
		}
	}
}

// canRetry reports whether req may be sent more than once.
func canRetry(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
	default:
		if req.Header.Get("Idempotency-Key") == "" {
			return false
		}
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func callerGaveUp(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func retryableError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

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
