// denali - terminal client for the Denali assistant dashboard.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/morganforge/denali/internal/api"
	"github.com/morganforge/denali/internal/config"
	"github.com/morganforge/denali/internal/model"
	"github.com/morganforge/denali/internal/session"
	"github.com/morganforge/denali/internal/store"
	"github.com/morganforge/denali/internal/stream"
	"github.com/morganforge/denali/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const maxLoginAttempts = 3

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("denali %s (%s, %s)\n", Version, GitCommit, BuildDate)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	stateDir, err := cfg.StateDir()
	if err != nil {
		return fmt.Errorf("failed to resolve state directory: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Request logging goes to a file; stderr belongs to the TUI. The log
	// carries methods, paths, and statuses only, never tokens or bodies.
	logPath := filepath.Join(stateDir, "denali.log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600); err == nil {
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	creds := store.New(stateDir)
	auth := api.NewAuthClient(cfg.Server.BaseURL)
	sess := session.NewManager(auth, creds)
	sess.Restore()

	// A restored token is validated against the backend before use; a
	// revoked token is purged here instead of being presented to the TUI.
	// An unreachable backend keeps the cached session and lets the
	// gateway's own 401 handling sort it out later.
	if sess.State() == session.StateAuthenticated {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
		_, err := sess.LoadCurrentUser(ctx)
		cancel()
		if err != nil && sess.State() != session.StateAuthenticated {
			fmt.Fprintln(os.Stderr, "Stored session is no longer valid.")
		}
	}

	// Persisted credentials may be absent or stale; prompt before
	// entering the alternate screen so the password never fights the TUI.
	if sess.State() != session.StateAuthenticated {
		if err := promptLogin(sess); err != nil {
			return err
		}
	}

	client := api.NewClient(cfg.Server.BaseURL, sess).
		WithTimeout(cfg.RequestTimeout()).
		WithRateLimit(cfg.Server.MaxRequestsPerSec)
	transport := stream.NewTransport(client).WithIdleTimeout(cfg.IdleTimeout())
	reconciler := model.NewReconciler(transport)

	m := chat.New(client, sess, reconciler, cfg.UI)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Streamed tokens and settles repaint through Program.Send, so the
	// reconciler never touches the bubbletea model directly.
	reconciler.SetChangeCallback(func(chatID string) {
		p.Send(chat.TranscriptChangedMsg{ChatID: chatID})
	})
	sess.SetUnauthenticatedCallback(func() {
		p.Send(chat.SessionLostMsg{})
	})

	if path, err := config.Path(); err == nil {
		if w, err := config.Watch(path, func(next config.Config) {
			p.Send(chat.ConfigReloadedMsg{Config: next})
		}); err == nil {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		return err
	}

	if sess.State() != session.StateAuthenticated {
		fmt.Println("Session ended. Run denali again to log in.")
	}
	return nil
}

// promptLogin reads an email and password from the terminal and logs
// in, retrying a few times on bad credentials.
func promptLogin(sess *session.Manager) error {
	reader := bufio.NewReader(os.Stdin)

	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		fmt.Print("Email: ")
		email, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(email)

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		if err := sess.Login(context.Background(), email, string(password)); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			continue
		}
		if user, ok := sess.CurrentUser(); ok {
			fmt.Printf("Welcome, %s\n", user.Name)
		}
		return nil
	}
	return fmt.Errorf("giving up after %d login attempts", maxLoginAttempts)
}
