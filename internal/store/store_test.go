// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ROUND TRIP TESTS
// =============================================================================

func TestSaveLoad(t *testing.T) {
	s := New(t.TempDir())

	in := Credentials{
		Token: "tok-abc123",
		User:  json.RawMessage(`{"id":"u-7","email":"maria@example.com","name":"Maria","role":"user"}`),
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, in.Token, out.Token)
	require.JSONEq(t, string(in.User), string(out.User))
}

func TestSave_Overwrite(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Save(Credentials{Token: "first"}))
	require.NoError(t, s.Save(Credentials{Token: "second"}))

	out, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "second", out.Token)
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save(Credentials{Token: "tok"}))

	for _, name := range []string{credentialsFile, keyFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm(),
			"%s should be owner-only", name)
	}
}

func TestSave_CiphertextNotPlaintext(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save(Credentials{Token: "super-secret-token"}))

	raw, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("super-secret-token")),
		"token must not appear in plaintext on disk")
}

// =============================================================================
// ABSENT AND CORRUPT STATE TESTS
// =============================================================================

func TestLoad_Missing(t *testing.T) {
	s := New(t.TempDir())

	creds, err := s.Load()
	require.NoError(t, err, "load of an empty store is not an error")
	require.True(t, creds.Empty())
}

func TestLoad_Tampered(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save(Credentials{Token: "tok"}))

	// Flip a byte in the sealed payload
	path := filepath.Join(dir, credentialsFile)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0600))

	creds, err := s.Load()
	require.NoError(t, err, "tampered credentials load as absent, not as an error")
	require.True(t, creds.Empty())
}

func TestLoad_Truncated(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save(Credentials{Token: "tok"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, credentialsFile), []byte("x"), 0600))

	creds, err := s.Load()
	require.NoError(t, err)
	require.True(t, creds.Empty(), "truncated credentials load as absent")
}

func TestLoad_MissingKey(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save(Credentials{Token: "tok"}))
	require.NoError(t, os.Remove(filepath.Join(dir, keyFile)))

	creds, err := s.Load()
	require.NoError(t, err)
	require.True(t, creds.Empty(), "credentials without their key load as absent")
}

// =============================================================================
// CLEAR TESTS
// =============================================================================

func TestClear(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Save(Credentials{Token: "tok"}))
	require.NoError(t, s.Clear())

	creds, err := s.Load()
	require.NoError(t, err)
	require.True(t, creds.Empty())
}

func TestClear_Idempotent(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing an already-empty store is fine")
}
