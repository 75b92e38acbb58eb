// Copyright 2025 Kadir Pekel
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

package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrUnexpectedStatus is returned for non-retryable HTTP responses.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// RetryableError reports a connectivity failure the client gave up on.
type RetryableError struct {
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("stream unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Handler receives each event in stream order. Returning an error stops
// the client.
type Handler func(ctx context.Context, ev Event) error

type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }

// Client consumes an SSE endpoint and reconnects with Last-Event-ID after
// the server suggested retry delay.
type Client struct {
	url           string
	httpClient    *http.Client
	headers       http.Header
	headerTimeout time.Duration
	maxRetryDelay time.Duration
	maxAttempts   int

	mu    sync.Mutex
	state *StreamState
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a request header sent on every connection.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithHeaderTimeout bounds the wait for response headers per connection.
func WithHeaderTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.headerTimeout = d
	}
}

// WithMaxRetryDelay caps the server suggested retry delay.
func WithMaxRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithMaxAttempts stops reconnecting after n consecutive failed attempts.
// Zero retries forever.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) ClientOption {
	return func(c *Client) {
		c.state.MaxFrameSize = n
	}
}

// WithLastEventID resumes a stream from a known event id.
func WithLastEventID(id string) ClientOption {
	return func(c *Client) {
		c.state.LastEventID = id
	}
}

// NewClient creates a client for url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:           url,
		httpClient:    &http.Client{},
		headers:       http.Header{},
		headerTimeout: 30 * time.Second,
		state:         NewStreamState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the stream state.
func (c *Client) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

// Run streams events to handler until ctx is done, the handler fails, the
// server answers 204 No Content, or MaxAttempts consecutive connection
// attempts fail.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	failures := 0
	for {
		received, err := c.connect(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var herr handlerError
		switch {
		case errors.As(err, &herr):
			return herr.err
		case errors.Is(err, ErrFrameTooLarge), errors.Is(err, ErrUnexpectedStatus):
			return err
		case errors.Is(err, errNoContent):
			return nil
		}

		if received > 0 {
			failures = 0
		}
		if err != nil {
			failures++
			if c.maxAttempts > 0 && failures >= c.maxAttempts {
				return &RetryableError{Attempts: failures, Err: err}
			}
		}

		delay := c.retryDelay()
		slog.Debug("SSE stream reconnecting", "url", c.url, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var errNoContent = errors.New("server closed stream with 204")

func (c *Client) retryDelay() time.Duration {
	c.mu.Lock()
	delay := c.state.RetryDelay()
	c.mu.Unlock()
	if c.maxRetryDelay > 0 && delay > c.maxRetryDelay {
		return c.maxRetryDelay
	}
	return delay
}

// connect runs one connection and returns how many events it delivered.
func (c *Client) connect(ctx context.Context, handler Handler) (int, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedStatus, err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.mu.Lock()
	for k, vs := range c.state.ReconnectHeaders() {
		req.Header[k] = vs
	}
	c.mu.Unlock()
	req.Header.Set("Cache-Control", "no-cache")

	var timer *time.Timer
	if c.headerTimeout > 0 {
		timer = time.AfterFunc(c.headerTimeout, cancel)
	}
	resp, err := c.httpClient.Do(req)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to connect to SSE stream: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return 0, errNoContent
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return 0, fmt.Errorf("stream returned %s", resp.Status)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("%w: %s - %s", ErrUnexpectedStatus, resp.Status, string(body))
	}

	c.mu.Lock()
	c.state.MarkConnected()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.state.MarkDisconnected()
		c.mu.Unlock()
	}()

	received := 0
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			c.mu.Lock()
			events, feedErr := c.state.Feed(string(buf[:n]))
			c.mu.Unlock()

			for _, ev := range events {
				if err := handler(ctx, ev); err != nil {
					return received, handlerError{err: err}
				}
				received++
			}
			if feedErr != nil {
				return received, feedErr
			}
		}
		if readErr == io.EOF {
			return received, nil
		}
		if readErr != nil {
			return received, fmt.Errorf("SSE stream read failed: %w", readErr)
		}
	}
}
