// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/morganforge/denali/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotAuthenticated indicates no session is active
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired indicates the session could not be refreshed
	ErrSessionExpired = errors.New("session expired: please log in again")
	// ErrInvalidCredentials indicates the backend rejected a login
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrTokenRejected indicates the backend refused the presented token
	ErrTokenRejected = errors.New("token rejected by backend")
)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the session lifecycle state.
type State int

const (
	// StateAnonymous means no credentials are held.
	StateAnonymous State = iota
	// StateAuthenticating means a login is in flight.
	StateAuthenticating
	// StateAuthenticated means a token is held and presumed valid.
	StateAuthenticated
	// StateRefreshing means a token refresh is in flight.
	StateRefreshing
	// StateExpired means a refresh failed and credentials were purged.
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// =============================================================================
// USER PROFILE
// =============================================================================

// User is the authenticated user's profile as reported by the backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"` // "admin" or "user"
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// LoginResult is a fresh token plus the profile it belongs to.
type LoginResult struct {
	Token string
	User  User
}

// Backend is the authentication surface of the dashboard API.
// It is satisfied by api.AuthClient; session depends only on this
// interface so the two packages never import each other.
type Backend interface {
	// Login exchanges credentials for a token.
	Login(ctx context.Context, email, password string) (LoginResult, error)
	// Refresh exchanges a still-presented (possibly stale) token for a new one.
	Refresh(ctx context.Context, token string) (LoginResult, error)
	// CurrentUser fetches the profile for the given token.
	CurrentUser(ctx context.Context, token string) (User, error)
	// Logout invalidates the token server-side.
	Logout(ctx context.Context, token string) error
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the bearer token and user profile for the running client.
// All access goes through Manager so there is exactly one source of truth
// for "who am I and what token do I present".
type Manager struct {
	mu sync.Mutex

	backend Backend
	creds   *store.Store

	state State
	token string
	user  User

	// Single-flight refresh: concurrent failed requests coalesce into one
	// refresh call, everyone gets the same outcome.
	refresh singleflight.Group

	// Callbacks
	onUnauthenticated func()
	onStateChange     func(State)
}

// NewManager creates a session manager backed by the given auth backend
// and credential store.
func NewManager(backend Backend, creds *store.Store) *Manager {
	return &Manager{
		backend: backend,
		creds:   creds,
		state:   StateAnonymous,
	}
}

// =============================================================================
// CALLBACKS
// =============================================================================

// SetUnauthenticatedCallback sets the function called when the session is
// lost (refresh failure or server-side invalidation). Called outside the
// manager lock.
func (m *Manager) SetUnauthenticatedCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnauthenticated = fn
}

// SetStateChangeCallback sets the function called after every state
// transition. Called outside the manager lock.
func (m *Manager) SetStateChangeCallback(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// setState transitions to a new state and returns the change callback to
// invoke, or nil. Caller must hold m.mu and invoke the result after unlock.
func (m *Manager) setState(s State) func() {
	if m.state == s {
		return nil
	}
	m.state = s
	if m.onStateChange == nil {
		return nil
	}
	fn := m.onStateChange
	return func() { fn(s) }
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the current bearer token, or empty if not authenticated.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// CurrentUser returns the cached user profile and whether one is held.
func (m *Manager) CurrentUser() (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, m.token != ""
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore loads persisted credentials at startup. An absent or unreadable
// store leaves the session anonymous; it never fails startup.
func (m *Manager) Restore() {
	creds, err := m.creds.Load()
	if err != nil || creds.Empty() {
		return
	}

	var user User
	if len(creds.User) > 0 {
		// Corrupt profile JSON degrades to an empty profile, not a failure.
		_ = json.Unmarshal(creds.User, &user)
	}

	m.mu.Lock()
	m.token = creds.Token
	m.user = user
	notify := m.setState(StateAuthenticated)
	m.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// Login authenticates with the backend and persists the resulting
// credentials. On failure the session stays (or returns to) anonymous.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	notify := m.setState(StateAuthenticating)
	m.mu.Unlock()
	if notify != nil {
		notify()
	}

	result, err := m.backend.Login(ctx, email, password)
	if err != nil {
		m.mu.Lock()
		notify = m.setState(StateAnonymous)
		m.mu.Unlock()
		if notify != nil {
			notify()
		}
		return fmt.Errorf("login failed: %w", err)
	}

	m.adopt(result)
	return nil
}

// Logout invalidates the session server-side (best effort) and purges
// local credentials. Idempotent: logging out an anonymous session is a
// no-op that succeeds.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token != "" {
		// Server-side invalidation is best effort: local purge happens
		// regardless, so an unreachable backend cannot trap a logout.
		_ = m.backend.Logout(ctx, token)
	}

	return m.purge(StateAnonymous, false)
}

// adopt installs a fresh login result as the active session and persists it.
func (m *Manager) adopt(result LoginResult) {
	profile, _ := json.Marshal(result.User)

	m.mu.Lock()
	m.token = result.Token
	m.user = result.User
	notify := m.setState(StateAuthenticated)
	m.mu.Unlock()

	// Persistence failure is non-fatal: the in-memory session works for
	// this run, the user just logs in again next time.
	_ = m.creds.Save(store.Credentials{Token: result.Token, User: profile})

	if notify != nil {
		notify()
	}
}

// purge drops token and profile, clears the store, and transitions to the
// given terminal state. fireUnauth controls the unauthenticated callback.
func (m *Manager) purge(to State, fireUnauth bool) error {
	m.mu.Lock()
	m.token = ""
	m.user = User{}
	notify := m.setState(to)
	onUnauth := m.onUnauthenticated
	m.mu.Unlock()

	err := m.creds.Clear()

	if notify != nil {
		notify()
	}
	if fireUnauth && onUnauth != nil {
		onUnauth()
	}
	return err
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh exchanges the current token for a new one. stale is the token the
// caller observed failing; if the session has already moved past it (another
// caller refreshed first), the current token is returned without a network
// call. Concurrent callers coalesce into a single backend refresh.
//
// On refresh failure the credentials are purged, the session transitions to
// expired, and the unauthenticated callback fires: a dead token is never
// presented again.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	current := m.token
	m.mu.Unlock()

	if current == "" {
		return "", ErrNotAuthenticated
	}
	if stale != "" && current != stale {
		// Someone already refreshed past the token this caller saw fail.
		return current, nil
	}

	v, err, _ := m.refresh.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, stale)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// doRefresh runs inside the single-flight group.
func (m *Manager) doRefresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	current := m.token
	if current == "" {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if stale != "" && current != stale {
		m.mu.Unlock()
		return current, nil
	}
	notify := m.setState(StateRefreshing)
	m.mu.Unlock()
	if notify != nil {
		notify()
	}

	result, err := m.backend.Refresh(ctx, current)
	if err != nil {
		// An interrupted refresh says nothing about the token; keep the
		// session and let a later caller try again.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.mu.Lock()
			notify := m.setState(StateAuthenticated)
			m.mu.Unlock()
			if notify != nil {
				notify()
			}
			return "", err
		}
		_ = m.purge(StateExpired, true)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	m.adopt(result)
	return result.Token, nil
}

// =============================================================================
// PROFILE
// =============================================================================

// LoadCurrentUser fetches the profile for the active token and caches it.
func (m *Manager) LoadCurrentUser(ctx context.Context) (User, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == "" {
		return User{}, ErrNotAuthenticated
	}

	user, err := m.backend.CurrentUser(ctx, token)
	if err != nil {
		// A token the backend refuses is dead weight: purge it so it is
		// never presented again. Transport failures keep the session.
		if errors.Is(err, ErrTokenRejected) {
			_ = m.purge(StateExpired, true)
		}
		return User{}, err
	}

	profile, _ := json.Marshal(user)

	m.mu.Lock()
	// A logout or refresh may have raced us; only cache against the same token.
	tokenStillCurrent := m.token == token
	if tokenStillCurrent {
		m.user = user
	}
	m.mu.Unlock()

	if tokenStillCurrent {
		_ = m.creds.Save(store.Credentials{Token: token, User: profile})
	}
	return user, nil
}
