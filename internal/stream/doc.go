// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes the backend's token stream for a chat turn.
//
// # Key Types
//
//   - Transport: turns the newline-delimited response stream into
//     handler callbacks
//   - Handler: per-turn callbacks; exactly one terminal callback fires
//   - Done: the terminal payload with settled message IDs, sources, and
//     confidence
//   - StreamError: a failure carrying the partial answer for diagnostics
//
// The transport guarantees a turn always settles: an error event, a
// dropped connection, an EOF without completion, a cancelled context, and
// a stream gone silent past the idle timeout all resolve to exactly one
// OnError. Malformed lines are dropped without killing the turn.
package stream
