// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists login credentials between client sessions.
//
// # Key Types
//
//   - Credentials: bearer token plus serialized user profile, persisted
//     as a single unit
//   - Store: sealed file storage under the state directory
//
// Credentials are sealed with ChaCha20-Poly1305 before hitting disk and
// written atomically. A file that fails to load for any reason (missing,
// truncated, tampered, wrong key) is treated as an absent session rather
// than a fatal error.
package store
