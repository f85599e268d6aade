// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/morganforge/denali/internal/session"
)

// =============================================================================
// AUTH CLIENT
// =============================================================================

// AuthClient talks to the backend's authentication endpoints. It satisfies
// session.Backend and deliberately bypasses the gateway's 401 handling:
// a 401 from login or refresh IS the answer, not a trigger for more
// refreshing.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthClient creates an auth client for the backend at baseURL.
func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
	}
}

// WithTimeout sets the timeout for auth requests.
func (a *AuthClient) WithTimeout(timeout time.Duration) *AuthClient {
	a.httpClient.Timeout = timeout
	return a
}

// tokenResponse is the backend's shape for login and refresh responses.
type tokenResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// =============================================================================
// SESSION BACKEND IMPLEMENTATION
// =============================================================================

// Login exchanges credentials for a bearer token.
func (a *AuthClient) Login(ctx context.Context, email, password string) (session.LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := a.post(ctx, "/api/auth/login", "", body, &resp); err != nil {
		// A 401 here is a definitive answer about the credentials, not a
		// stale-token condition.
		if IsStatus(err, http.StatusUnauthorized) {
			return session.LoginResult{}, session.ErrInvalidCredentials
		}
		return session.LoginResult{}, err
	}
	return session.LoginResult{Token: resp.Token, User: resp.User}, nil
}

// Refresh exchanges a still-presented token for a fresh one.
func (a *AuthClient) Refresh(ctx context.Context, token string) (session.LoginResult, error) {
	var resp tokenResponse
	if err := a.post(ctx, "/api/auth/refresh", token, nil, &resp); err != nil {
		return session.LoginResult{}, err
	}
	return session.LoginResult{Token: resp.Token, User: resp.User}, nil
}

// CurrentUser fetches the profile for the given token.
func (a *AuthClient) CurrentUser(ctx context.Context, token string) (session.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/auth/me", nil)
	if err != nil {
		return session.User{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return session.User{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The backend refusing the token is a verdict on the session, not
		// a transport hiccup; the session manager purges on this.
		return session.User{}, fmt.Errorf("%w: %v", session.ErrTokenRejected, decodeError(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.User{}, decodeError(resp)
	}

	var user session.User
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return session.User{}, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, &user); err != nil {
		return session.User{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return user, nil
}

// Logout invalidates the token server-side.
func (a *AuthClient) Logout(ctx context.Context, token string) error {
	return a.post(ctx, "/api/auth/logout", token, nil, nil)
}

// =============================================================================
// HELPERS
// =============================================================================

// post sends a single JSON POST with optional bearer token. No retries.
func (a *AuthClient) post(ctx context.Context, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

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
