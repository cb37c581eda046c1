package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig controls exponential backoff for upstream requests.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetry is used when an adapter is built without an explicit RetryConfig.
var DefaultRetry = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// ErrCircuitOpen is returned while the upstream circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// fetcher performs GET requests through a circuit breaker with exponential
// backoff retries. Network errors, 429 and 5xx are retried; other statuses fail
// immediately.
type fetcher struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

func newFetcher(name string, client *http.Client, retry RetryConfig) *fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if retry.InitialInterval <= 0 {
		retry = DefaultRetry
	}
	return &fetcher{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         name,
			MaxRequests:  5,
			Interval:     1 * time.Minute,
			Timeout:      2 * time.Minute,
			IsSuccessful: countsAsHealthy,
		}),
		retry: retry,
	}
}

// countsAsHealthy reports whether the breaker should not count err as an
// upstream failure: caller cancellation and non-retryable statuses.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && !statusErr.Retryable()
}

func (f *fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	operation := func() error {
		result, err := f.breaker.Execute(func() (interface{}, error) {
			return f.do(ctx, rawURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retry.InitialInterval
	if f.retry.MaxInterval > 0 {
		bo.MaxInterval = f.retry.MaxInterval
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, f.retry.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fetcher) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
