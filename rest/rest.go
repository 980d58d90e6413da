// Package rest implements the HTTP plumbing shared by the Airtable, Mariana Tek
// and email clients: bounded retry on rate-limited responses and a generic
// fetch-all-pages loop.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// ErrMaxRetries is returned when a request is still being rate limited after
// MaxAttempts attempts.
var ErrMaxRetries = errors.New("exceeded max retries")

const (
	DefaultMaxAttempts = 5

	// Wait applied when a rate-limited response carries no usable Retry-After.
	fallbackDelay = 2 * time.Second
)

// StatusError is the error returned for a non-retryable HTTP error status. It
// carries the status code and response body for the caller's logs.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client issues HTTP requests, transparently retrying responses in the
// Retryable set (HTTP 429 by default) after the delay advertised in the
// Retry-After header. The zero value is not usable - use NewClient.
type Client struct {
	HTTP        *http.Client
	MaxAttempts int
	Retryable   map[int]bool

	sleep func(time.Duration)
	now   func() time.Time
}

func NewClient(statuses ...int) *Client {
	retryable := map[int]bool{http.StatusTooManyRequests: true}
	for _, status := range statuses {
		retryable[status] = true
	}

	return &Client{
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: DefaultMaxAttempts,
		Retryable:   retryable,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Do issues a request and reads the response body in full. A response in the
// Retryable set is retried up to MaxAttempts times, sleeping per the server's
// Retry-After hint between attempts. Any other non-2xx response fails
// immediately with a *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		rq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		for k, values := range header {
			for _, v := range values {
				rq.Header.Add(k, v)
			}
		}

		response, err := c.HTTP.Do(rq)
		if err != nil {
			return nil, err
		}

		b, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			return nil, err
		}

		if c.Retryable[response.StatusCode] {
			delay := c.retryAfter(response.Header.Get("Retry-After"))
			log.Printf("%-5s %s %s rate limited (attempt %d of %d, retrying in %v)", "WARN", method, url, attempt, c.MaxAttempts, delay)
			c.sleep(delay)
			continue
		}

		if response.StatusCode < 200 || response.StatusCode > 299 {
			return nil, &StatusError{
				StatusCode: response.StatusCode,
				Body:       string(b),
			}
		}

		return b, nil
	}

	return nil, fmt.Errorf("%s %s: %w", method, url, ErrMaxRetries)
}

// retryAfter interprets a Retry-After header value as either a number of
// seconds or an HTTP date, falling back to a fixed delay when it is absent or
// unparsable.
func (c *Client) retryAfter(v string) time.Duration {
	if v == "" {
		return fallbackDelay
	}

	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		if delay := at.Sub(c.now()); delay > 0 {
			return delay
		}

		return 0
	}

	return fallbackDelay
}
