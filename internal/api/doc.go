// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the request gateway to the dashboard backend.
//
// # Key Types
//
//   - Client: authenticated gateway with bearer injection, bounded 401
//     refresh-and-retry, rate limiting, and typed endpoint wrappers
//   - AuthClient: the authentication endpoints, satisfying session.Backend
//   - APIError: a backend failure with HTTP status and the {"detail"}
//     message the backend attaches
//
// The 401 policy is deliberately shallow: one refresh, one retry, then the
// error propagates. Two paths sit outside it: AuthClient, because a 401
// from login or refresh is the final answer, and Stream, because a broken
// stream has no clean resume point.
package api
