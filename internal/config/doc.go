// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for denali.
//
// # Key Types
//
//   - Config: complete client configuration with server, stream, storage,
//     and UI sections
//   - Watcher: fsnotify-based hot reload of the config file
//
// # Precedence
//
// Built-in defaults, then ~/.denali/config.toml, then DENALI_* environment
// variables. Validation clamps out-of-range numeric values rather than
// failing, so a sloppy hand-edited config still starts the client.
package config
