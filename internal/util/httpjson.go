package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxErrorBody = 4 << 10

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	Target     string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Target, e.Status, e.Body)
}

// Retryable reports whether the response is worth another attempt (5xx or 429).
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PostJSON sends body once and drains the response.
func PostJSON(ctx context.Context, client *http.Client, target, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(fmt.Errorf("read %s error response: %w", target, readErr), closeErr)
		}
		return &HTTPStatusError{
			Target:     target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", target, err), resp.Body.Close())
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

// RetryPolicy bounds how PostJSONWithRetry retries.
type RetryPolicy struct {
	// MaxAttempts includes the first try; values < 1 mean one attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewBackOff builds the exponential schedule for the policy.
func (p RetryPolicy) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = 200 * time.Millisecond
	}
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = 5 * time.Second
	}
	return b
}

// Tries returns the attempt budget, at least 1.
func (p RetryPolicy) Tries() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// PostJSONWithRetry retries transport errors, 5xx and 429; other 4xx responses stop immediately.
// It returns the number of attempts made.
func PostJSONWithRetry(
	ctx context.Context,
	client *http.Client,
	policy RetryPolicy,
	target, url string,
	body []byte,
	headers map[string]string,
) (int, error) {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := PostJSON(ctx, client, target, url, body, headers)
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy.NewBackOff()),
		backoff.WithMaxTries(policy.Tries()),
	)
	return attempts, err
}
