// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds conversation state and reconciles it with the
// backend.
//
// # Key Types
//
//   - MessageID: two-phase identity, pending (client temp ID) until the
//     backend settles it to a server-assigned ID
//   - ChatMessage: one transcript entry, with streaming accumulation for
//     assistant answers
//   - Transcript: the ordered per-chat history including optimistic
//     entries
//   - Reconciler: submits turns optimistically, streams the answer in,
//     and settles both sides of the turn atomically
//
// Settling swaps the user and assistant IDs in one step, and only when
// the backend supplied both; sources are deduplicated case-insensitively
// keeping the first casing seen; a failed turn renders a fixed fallback
// apology in place of whatever partial answer arrived.
package model
