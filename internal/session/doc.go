// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the authenticated session for the denali client.
//
// # Key Types
//
//   - Manager: single source of truth for the bearer token, user profile,
//     and session lifecycle state
//   - Backend: the authentication surface of the dashboard API, satisfied
//     by api.AuthClient
//
// The manager coalesces concurrent token refreshes into a single backend
// call (singleflight), so a burst of 401s triggers exactly one refresh and
// every waiter observes the same outcome. A failed refresh purges the
// stored credentials and fires the unauthenticated callback; a dead token
// is never presented to the backend again.
package session
