// Package gateway implements the provider.Gateway capability set for the
// supported cloud storage services (Google Drive, Dropbox, OneDrive) over a
// shared retrying HTTP client with rate limiting and error classification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oneclouds/oneclouds/internal/provider"
)

// Retry and backoff constants.
const (
	maxRetries     = 4
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "oneclouds/0.1"
)

// credentialHolder guards the mutable token pair shared between the request
// path and Refresh.
type credentialHolder struct {
	mu    sync.RWMutex
	creds provider.Credentials
}

func (h *credentialHolder) get() provider.Credentials {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.creds
}

func (h *credentialHolder) set(c provider.Credentials) {
	h.mu.Lock()
	h.creds = c
	h.mu.Unlock()
}

// client is the HTTP transport shared by all gateway implementations.
// It applies the per-account rate limiter before every request, retries
// transient failures with exponential backoff plus jitter, honors
// Retry-After, and classifies terminal failures with the provider sentinels.
// 401 responses are never retried here — classification to ErrAuthExpired is
// immediate so the coordinator can run its refresh-once policy.
type client struct {
	name       string // provider id, used in error messages and logs
	httpClient *http.Client
	limiter    *provider.RateLimiter
	holder     *credentialHolder
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newClient(name string, cfg provider.GatewayConfig, holder *credentialHolder) *client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &client{
		name:       name,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		holder:     holder,
		logger:     cfg.Logger,
		sleepFunc:  sleepContext,
	}
}

// request describes one outbound provider call.
type request struct {
	method      string
	url         string
	body        []byte // replayed on retry; nil for no body
	contentType string
	header      http.Header // extra headers, may be nil
}

// do executes req with rate limiting, retry, and classification. The caller
// owns the response body on success.
func (c *client) do(ctx context.Context, req *request) (*http.Response, error) {
	var attempt int

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}

		resp, err := c.doOnce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.name, ctx.Err())
			}

			// Network errors are transient; retry with backoff.
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("provider", c.name),
					slog.String("method", req.method),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("%s: request canceled: %w", c.name, sleepErr)
				}

				attempt++

				continue
			}

			return nil, &provider.CallError{
				Provider: c.name,
				Message:  fmt.Sprintf("%s %s failed after %d retries: %v", req.method, req.url, maxRetries, err),
				Err:      provider.ErrUnavailable,
			}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("provider", c.name),
				slog.String("method", req.method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%s: request canceled: %w", c.name, err)
			}

			attempt++

			continue
		}

		return nil, &provider.CallError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        provider.ClassifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *client) doOnce(ctx context.Context, req *request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.holder.get().AccessToken)
	httpReq.Header.Set("User-Agent", userAgent)

	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	for k, vals := range req.header {
		for _, v := range vals {
			httpReq.Header.Set(k, v)
		}
	}

	return c.httpClient.Do(httpReq)
}

// getJSON issues a GET and decodes the JSON response into out.
func (c *client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.do(ctx, &request{method: http.MethodGet, url: url})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.CallError{
			Provider: c.name,
			Message:  fmt.Sprintf("decoding response from %s: %v", url, err),
			Err:      provider.ErrMalformed,
		}
	}

	return nil
}

// postJSON issues a POST with a JSON body and decodes the JSON response into
// out (skipped when out is nil).
func (c *client) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", c.name, err)
	}

	resp, err := c.do(ctx, &request{
		method:      http.MethodPost,
		url:         url,
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.CallError{
			Provider: c.name,
			Message:  fmt.Sprintf("decoding response from %s: %v", url, err),
			Err:      provider.ErrMalformed,
		}
	}

	return nil
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// isRetryable reports whether the given HTTP status code should be retried.
// 401 is deliberately absent: auth expiry is the coordinator's business.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// sleepContext waits for d or until ctx is canceled.
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
