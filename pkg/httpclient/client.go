// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides an HTTP client with rate-limit aware retries.
// All upstream provider adapters share this client; its retry exhaustion
// error is the signal the executor treats as a transient adapter failure.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy selects how a failed attempt is retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// BackoffRetry uses exponential backoff from the base delay.
	BackoffRetry
	// HeaderRetry honors provider rate-limit headers, falling back to backoff.
	HeaderRetry
)

// RateLimitInfo carries provider rate-limit hints parsed from response headers.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// HeaderParser extracts rate-limit info from response headers.
type HeaderParser func(http.Header) RateLimitInfo

// StrategyFunc maps an HTTP status code to a retry strategy.
type StrategyFunc func(statusCode int) RetryStrategy

// Client wraps http.Client with bounded retries.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	headerParser HeaderParser
	strategyFunc StrategyFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithTimeout sets the per-request timeout on the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxRetries bounds the number of retry attempts.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the initial backoff delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithHeaderParser installs a provider-specific rate-limit header parser.
func WithHeaderParser(parser HeaderParser) Option {
	return func(c *Client) { c.headerParser = parser }
}

// WithStrategyFunc overrides the status-code → strategy mapping.
func WithStrategyFunc(fn StrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = fn }
}

// New creates a retrying client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   3,
		baseDelay:    time.Second,
		maxDelay:     30 * time.Second,
		headerParser: ParseStandardHeaders,
		strategyFunc: DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy retries rate limits and server errors, nothing else.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return HeaderRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return BackoffRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per the configured strategy. The request
// context governs cancellation; a cancelled context aborts the retry loop.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport-level failure: retry with backoff unless the
			// context is done.
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			if attempt >= c.maxRetries {
				return nil, &RetryableError{
					Message: fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
					Err:     err,
				}
			}
			if !c.sleep(req, c.backoffDelay(attempt)) {
				return nil, req.Context().Err()
			}
			continue
		}

		strategy := c.strategyFunc(resp.StatusCode)
		if strategy == NoRetry {
			return resp, nil
		}
		lastStatus = resp.StatusCode

		var info RateLimitInfo
		if c.headerParser != nil {
			info = c.headerParser(resp.Header)
		}
		_ = resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, &RetryableError{
				StatusCode: lastStatus,
				Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
				RetryAfter: c.retryDelay(strategy, attempt, info),
			}
		}

		delay := c.retryDelay(strategy, attempt, info)
		slog.Debug("Retrying HTTP request",
			"status", lastStatus, "attempt", attempt+1, "delay", delay)
		if !c.sleep(req, delay) {
			return nil, req.Context().Err()
		}
	}

	return nil, &RetryableError{
		StatusCode: lastStatus,
		Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
	}
}

func (c *Client) retryDelay(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	if strategy == HeaderRetry {
		if info.RetryAfter > 0 {
			return min(info.RetryAfter, c.maxDelay)
		}
		if info.ResetTime > 0 {
			if until := time.Until(time.Unix(info.ResetTime, 0)); until > 0 {
				return min(until, c.maxDelay)
			}
		}
	}
	return c.backoffDelay(attempt)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
	return min(delay, c.maxDelay)
}

// sleep waits for the delay or until the request context is cancelled.
// Returns false when cancelled.
func (c *Client) sleep(req *http.Request, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}
