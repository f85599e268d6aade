// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/morganforge/denali/internal/util"
	"golang.org/x/crypto/chacha20poly1305"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// credentialsFile holds the sealed credential payload
	credentialsFile = "credentials"
	// keyFile holds the random sealing key, created 0600 on first save
	keyFile = "store.key"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrKeyStoreFailed indicates the sealing key could not be created or read
	ErrKeyStoreFailed = errors.New("credential key storage failed")
)

// =============================================================================
// SECURITY HELPERS
// =============================================================================

// ZeroBytes securely zeros sensitive byte slices to prevent memory disclosure.
// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credentials is the unit of persistence: the bearer token and the serialized
// user profile travel together, so a load never observes one without the other.
type Credentials struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// Empty reports whether the credentials carry no token.
func (c Credentials) Empty() bool {
	return c.Token == ""
}

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// Store persists credentials in a single file under the state directory,
// sealed with ChaCha20-Poly1305. The sealing key lives next to it with
// 0600 permissions and is generated on first save.
type Store struct {
	dir string
}

// New creates a credential store rooted at the given state directory.
// The directory is created lazily on first save.
func New(stateDir string) *Store {
	return &Store{dir: stateDir}
}

func (s *Store) credentialsPath() string {
	return filepath.Join(s.dir, credentialsFile)
}

func (s *Store) keyPath() string {
	return filepath.Join(s.dir, keyFile)
}

// =============================================================================
// KEY MANAGEMENT
// =============================================================================

// loadOrCreateKey returns the sealing key, generating one on first use.
func (s *Store) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath())
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: key file has %d bytes, want %d",
				ErrKeyStoreFailed, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
	}

	// RELIABILITY: Atomic write with fsync prevents key loss on crash.
	if err := util.AtomicWriteFile(s.keyPath(), key, 0600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreFailed, err)
	}
	return key, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Save seals the credentials and writes them atomically. Token and user
// profile are written as one payload so a crash cannot split them.
func (s *Store) Save(creds Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	defer ZeroBytes(plaintext)

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}
	defer ZeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Output format: nonce || ciphertext || tag
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	// RELIABILITY: Atomic write with fsync prevents credential loss on crash.
	if err := util.AtomicWriteFile(s.credentialsPath(), sealed, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Load returns the stored credentials. A missing, unreadable, truncated, or
// undecryptable file loads as absent (zero credentials, nil error): stale or
// tampered state means the user logs in again, it never wedges startup.
func (s *Store) Load() (Credentials, error) {
	sealed, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		return Credentials{}, nil
	}

	key, err := os.ReadFile(s.keyPath())
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return Credentials{}, nil
	}
	defer ZeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Credentials{}, nil
	}
	if len(sealed) < aead.NonceSize() {
		return Credentials{}, nil
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Authentication tag mismatch: wrong key or tampered file.
		return Credentials{}, nil
	}
	defer ZeroBytes(plaintext)

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return Credentials{}, nil
	}
	return creds, nil
}

// Clear removes the stored credentials. Idempotent: clearing an already
// empty store succeeds. The sealing key is kept for the next login.
func (s *Store) Clear() error {
	if err := os.Remove(s.credentialsPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
