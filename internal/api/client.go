// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// MaxErrorBodySize bounds how much of an error body we read for detail.
	MaxErrorBodySize = 64 * 1024
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// ERRORS
// =============================================================================

// APIError is an error response from the dashboard backend. The backend
// reports failures as a JSON body of the form {"detail": "..."}.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("API error (HTTP %d)", e.Status)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// decodeError turns a non-2xx response into an *APIError, pulling the
// human-readable detail out of the body when the backend provides one.
func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		apiErr.Detail = payload.Detail
	}
	return apiErr
}

// =============================================================================
// TOKEN PROVIDER
// =============================================================================

// TokenProvider supplies bearer tokens and refreshes stale ones.
// It is satisfied by session.Manager.
type TokenProvider interface {
	// Token returns the current bearer token, or empty when anonymous.
	Token() string
	// Refresh exchanges the stale token for a fresh one. Concurrent calls
	// must coalesce; a failure means the session is gone.
	Refresh(ctx context.Context, stale string) (string, error)
}

// =============================================================================
// API CLIENT
// =============================================================================

// Client is the request gateway to the dashboard backend. Every call gets
// the current bearer token injected; a 401 response triggers exactly one
// token refresh and one retry, then the failure propagates. The retry
// depth is bounded at one so a dead session can never loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout: streaming responses are bounded by
	// context and the transport's idle watchdog instead.
	streamClient *http.Client
	tokens       TokenProvider
	limiter      *rate.Limiter
}

// NewClient creates a gateway for the backend at baseURL using tokens for
// authentication.
func NewClient(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		streamClient: &http.Client{
			Transport: sharedTransport,
		},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithRateLimit throttles outbound requests to rps per second.
// Zero or negative means unlimited.
func (c *Client) WithRateLimit(rps float64) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// BaseURL returns the backend base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// CORE REQUEST PATH
// =============================================================================

// Request performs a JSON request against the backend. body is marshaled
// as the JSON request body when non-nil; out is unmarshaled from the
// response body when non-nil.
func (c *Client) Request(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.roundTrip(ctx, c.httpClient, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Stream performs a request whose response body stays open for streaming.
// The caller owns resp.Body and must close it. The current token is
// injected once and never refreshed: a stream has no clean resume point,
// so an expired token surfaces as a failed turn rather than a retry.
func (c *Client) Stream(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, c.streamClient, method, path, payload, "application/json", c.tokens.Token())
	if err != nil {
		return nil, err
	}
	return c.checkStatus(resp)
}

// roundTrip sends the request with the current token, refreshing and
// retrying exactly once on 401. On success the response body is live and
// owned by the caller.
func (c *Client) roundTrip(ctx context.Context, client *http.Client, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token := c.tokens.Token()
	resp, err := c.send(ctx, client, method, path, payload, "application/json", token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return c.checkStatus(resp)
	}

	// Anonymous requests that come back 401 are a plain failure: there is
	// no token to refresh.
	if token == "" {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	// RELIABILITY: Exactly one refresh, exactly one retry. A second 401
	// propagates; we never loop on a dead session.
	resp.Body.Close()
	fresh, err := c.tokens.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, client, method, path, payload, "application/json", fresh)
	if err != nil {
		return nil, err
	}
	return c.checkStatus(resp)
}

// send builds and executes a single HTTP request.
func (c *Client) send(ctx context.Context, client *http.Client, method, path string, payload []byte, contentType, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// SECURITY: Log method, path, and status only. Never bodies or tokens.
	start := time.Now()
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, time.Since(start))
	return resp, nil
}

// checkStatus converts non-2xx responses into errors.
func (c *Client) checkStatus(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

// =============================================================================
// DOWNLOADS
// =============================================================================

// Download fetches a binary payload (a document blob). It returns the
// content and the filename from the Content-Disposition header, if any.
func (c *Client) Download(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.roundTrip(ctx, c.httpClient, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read download: %w", err)
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}
	return data, filename, nil
}

// =============================================================================
// UPLOADS
// =============================================================================

// Upload sends content as a multipart form file under the given field name.
// The content is buffered so the 401 retry can resend it.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, out interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token := c.tokens.Token()
	resp, err := c.send(ctx, c.httpClient, http.MethodPost, path, buf.Bytes(), writer.FormDataContentType(), token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		resp.Body.Close()
		fresh, err := c.tokens.Refresh(ctx, token)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, c.httpClient, http.MethodPost, path, buf.Bytes(), writer.FormDataContentType(), fresh)
		if err != nil {
			return err
		}
	}

	resp, err = c.checkStatus(resp)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
