package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"exchange-rate-resolver/pkg/logger"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// RetryPolicy controls retries within one provider tier. The zero value
// performs a single attempt.
type RetryPolicy struct {
	MaxRetries uint64
	Backoff    time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))
}

// StatusError is a completed HTTP exchange with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned non-OK status: %d", e.StatusCode)
}

type httpClient struct {
	name   string
	client *http.Client
	retry  RetryPolicy
	log    *logger.Logger
}

func newHTTPClient(name string, timeout time.Duration, policy RetryPolicy, log *logger.Logger) *httpClient {
	return &httpClient{
		name: name,
		client: &http.Client{
			Timeout: timeout,
		},
		retry: policy,
		log:   log,
	}
}

// get issues a GET and returns the body of a 2xx response. Transport errors
// and 5xx responses are retried per the policy; 429 and other 4xx are not,
// so a rate-limited upstream is never hammered.
func (c *httpClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var body []byte

	attempt := 0
	err := retry.Do(ctx, c.retry.backoff(), func(ctx context.Context) error {
		attempt++

		b, err := c.getOnce(ctx, url, headers)
		if err == nil {
			body = b
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		c.log.Warn("Provider request failed", "provider", c.name, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *httpClient) getOnce(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}

func statusCodeOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
