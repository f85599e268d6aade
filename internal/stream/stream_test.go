// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// httpStreamer adapts an httptest server to the StreamClient interface.
type httpStreamer struct {
	url string
}

func (s httpStreamer) StreamMessage(ctx context.Context, chatID string, content string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// recorder collects handler callbacks for assertions.
type recorder struct {
	mu     sync.Mutex
	tokens []string
	dones  []Done
	errs   []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnToken: func(tok string) {
			r.mu.Lock()
			r.tokens = append(r.tokens, tok)
			r.mu.Unlock()
		},
		OnDone: func(d Done) {
			r.mu.Lock()
			r.dones = append(r.dones, d)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.tokens, "")
}

func (r *recorder) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dones) + len(r.errs)
}

func serveStream(t *testing.T, fn func(w http.ResponseWriter, flush func())) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		fn(w, flusher.Flush)
	}))
}

// =============================================================================
// HAPPY PATH TESTS
// =============================================================================

func TestStreamTurn_TokensInOrder(t *testing.T) {
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"Sure\"}\n\n")
		flush()
		fmt.Fprint(w, "data: {\"token\":\", here is\"}\n\n")
		fmt.Fprint(w, "data: {\"token\":\" a summary.\"}\n\n")
		fmt.Fprint(w, `data: {"done":true,"sources":["Handbook.pdf"],"user_message_id":"u-9","assistant_message_id":"a-10","confidence":{"confidence_level":"high"}}`+"\n\n")
		flush()
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	if err := tr.StreamTurn(context.Background(), "c1", "Summarize", rec.handler()); err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}

	if got := rec.text(); got != "Sure, here is a summary." {
		t.Errorf("accumulated = %q", got)
	}
	if len(rec.dones) != 1 {
		t.Fatalf("OnDone fired %d times, want 1", len(rec.dones))
	}
	done := rec.dones[0]
	if done.UserMessageID != "u-9" || done.AssistantMessageID != "a-10" {
		t.Errorf("IDs = %s/%s, want u-9/a-10", done.UserMessageID, done.AssistantMessageID)
	}
	if len(done.Sources) != 1 || done.Sources[0] != "Handbook.pdf" {
		t.Errorf("Sources = %v", done.Sources)
	}
	if done.Confidence == nil || done.Confidence.Level != "high" {
		t.Errorf("Confidence = %+v", done.Confidence)
	}
	if len(rec.errs) != 0 {
		t.Errorf("OnError fired: %v", rec.errs)
	}
}

func TestStreamTurn_SplitAcrossChunks(t *testing.T) {
	// One event arrives split across two network writes; the transport
	// must buffer until the newline completes it.
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, `data: {"token":"hel`)
		flush()
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, "lo\"}\n")
		fmt.Fprint(w, "data: {\"done\":true}\n")
		flush()
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	if err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler()); err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}
	if got := rec.text(); got != "hello" {
		t.Errorf("accumulated = %q, want hello", got)
	}
	if len(rec.tokens) != 1 {
		t.Errorf("token events = %d, want 1 (no partial dispatch)", len(rec.tokens))
	}
}

func TestStreamTurn_MalformedLinesDropped(t *testing.T) {
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"ok\"}\n")
		fmt.Fprint(w, "data: {not json at all\n")
		fmt.Fprint(w, ": keepalive comment\n")
		fmt.Fprint(w, "data: {\"token\":\"!\"}\n")
		fmt.Fprint(w, "data: {\"done\":true}\n")
		flush()
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	if err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler()); err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}
	if got := rec.text(); got != "ok!" {
		t.Errorf("accumulated = %q, want ok!", got)
	}
	if len(rec.dones) != 1 {
		t.Errorf("OnDone fired %d times, want 1", len(rec.dones))
	}
}

// =============================================================================
// FAILURE PATH TESTS
// =============================================================================

func TestStreamTurn_ErrorEvent(t *testing.T) {
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"part\"}\n")
		fmt.Fprint(w, "data: {\"error\":\"model backend unavailable\"}\n")
		// Anything after the terminal event must be ignored.
		fmt.Fprint(w, "data: {\"token\":\"ghost\"}\n")
		fmt.Fprint(w, "data: {\"done\":true}\n")
		flush()
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler())
	if err == nil {
		t.Fatal("StreamTurn should fail on error event")
	}

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error = %v, want *StreamError", err)
	}
	if streamErr.Partial != "part" {
		t.Errorf("Partial = %q, want part", streamErr.Partial)
	}
	if !strings.Contains(streamErr.Err.Error(), "model backend unavailable") {
		t.Errorf("inner error = %v", streamErr.Err)
	}
	if rec.terminalCount() != 1 {
		t.Errorf("terminal callbacks = %d, want exactly 1", rec.terminalCount())
	}
	if got := rec.text(); got != "part" {
		t.Errorf("tokens after terminal leaked: %q", got)
	}
	if len(rec.dones) != 0 {
		t.Error("OnDone must not fire after an error event")
	}
}

func TestStreamTurn_EOFWithoutTerminal(t *testing.T) {
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"half an ans\"}\n")
		flush()
		// Connection closes with no done or error event.
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler())
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error = %v, want *StreamError", err)
	}
	if streamErr.Partial != "half an ans" {
		t.Errorf("Partial = %q", streamErr.Partial)
	}
	if len(rec.errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(rec.errs))
	}
}

func TestStreamTurn_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"one\"}\n")
		flush()
		<-release
	})
	defer server.Close()
	defer close(release)

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL}).WithIdleTimeout(100 * time.Millisecond)

	start := time.Now()
	err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler())
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("error = %v, want ErrIdleTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("turn took %v, idle timeout did not fire promptly", elapsed)
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) && streamErr.Partial != "one" {
		t.Errorf("Partial = %q, want one", streamErr.Partial)
	}
	if rec.terminalCount() != 1 {
		t.Errorf("terminal callbacks = %d, want 1", rec.terminalCount())
	}
}

func TestStreamTurn_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"x\"}\n")
		flush()
		<-release
	})
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := tr.StreamTurn(ctx, "c1", "hi", rec.handler())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if rec.terminalCount() != 1 {
		t.Errorf("terminal callbacks = %d, want 1", rec.terminalCount())
	}
}

func TestStreamTurn_RequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler())
	if err == nil {
		t.Fatal("StreamTurn should fail when the request is rejected")
	}
	if len(rec.errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(rec.errs))
	}
	if len(rec.tokens) != 0 || len(rec.dones) != 0 {
		t.Error("no tokens or done should be delivered on request failure")
	}
}

// =============================================================================
// READER LIFECYCLE TESTS
// =============================================================================

func TestStreamTurn_TrailingLinesAfterDone(t *testing.T) {
	// A server that keeps talking after the terminal event must not wedge
	// the turn or leak its output into the handler.
	server := serveStream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, "data: {\"token\":\"hi\"}\n")
		fmt.Fprint(w, "data: {\"done\":true}\n")
		for i := 0; i < 64; i++ {
			fmt.Fprint(w, ": keepalive\n")
		}
		flush()
	})
	defer server.Close()

	rec := &recorder{}
	tr := NewTransport(httpStreamer{url: server.URL})
	if err := tr.StreamTurn(context.Background(), "c1", "hi", rec.handler()); err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}
	if len(rec.dones) != 1 {
		t.Errorf("OnDone fired %d times, want 1", len(rec.dones))
	}
	if got := rec.text(); got != "hi" {
		t.Errorf("accumulated = %q, want hi", got)
	}
}

func TestReadLines_StopsWhenAbandoned(t *testing.T) {
	// Once the event loop is gone, the reader must exit even with lines
	// still buffered and nobody receiving.
	input := strings.NewReader(strings.Repeat("data: {\"token\":\"x\"}\n", 100))
	lines := make(chan lineMsg, 1)
	quit := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		readLines(input, lines, quit)
		close(finished)
	}()

	<-lines // reader is mid-stream, blocked on a full channel
	close(quit)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("reader did not exit after the turn was abandoned")
	}
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		ok    bool
		token string
	}{
		{"sse framed", `data: {"token":"hi"}`, true, "hi"},
		{"bare json", `{"token":"hi"}`, true, "hi"},
		{"no space after colon", `data:{"token":"hi"}`, true, "hi"},
		{"comment", `: keepalive`, false, ""},
		{"garbage", `data: not-json`, false, ""},
		{"empty data", `data: `, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := parseEvent([]byte(tc.line))
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && ev.Token != tc.token {
				t.Errorf("Token = %q, want %q", ev.Token, tc.token)
			}
		})
	}
}
