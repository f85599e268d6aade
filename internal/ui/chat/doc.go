// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive chat screen of the denali TUI.
//
// The package is a standard bubbletea program split across files:
//
//   - model.go: the Model struct and constructor
//   - update.go: message and key handling
//   - view.go: sidebar, transcript, input, and status bar rendering
//   - commands.go: tea.Cmd factories for background API work
//   - messages.go: the message types those commands resolve to
//
// # Key Types
//
//   - Model: root bubbletea model; owns the API client, the session
//     manager, and the conversation reconciler
//   - TranscriptChangedMsg: pushed from outside the program (via
//     Program.Send) whenever the reconciler mutates a transcript, so
//     streamed tokens repaint without polling
//   - SessionLostMsg: pushed when credentials are purged; the program
//     quits so the shell can re-prompt for login
//
// All network work happens in commands; Update never blocks. A
// streaming turn runs in a single long-lived command, with the
// token-by-token repaints arriving through TranscriptChangedMsg rather
// than through the command's own result.
package chat
