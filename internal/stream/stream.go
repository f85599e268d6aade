// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/morganforge/denali/internal/api"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultIdleTimeout is how long a turn may go without any stream
	// activity before the transport gives up on it.
	DefaultIdleTimeout = 90 * time.Second

	// MaxEventSize is the maximum allowed size for a single stream line.
	// SECURITY: Line size limit prevents memory exhaustion from a
	// misbehaving backend.
	MaxEventSize = 256 * 1024
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTruncated indicates the stream ended without a terminal event.
	ErrTruncated = errors.New("stream ended without completion")

	// ErrIdleTimeout indicates the stream went silent for too long.
	ErrIdleTimeout = errors.New("stream idle timeout")
)

// StreamError is a mid-turn failure that preserves any partial answer
// received before the stream broke.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// EVENT TYPES
// =============================================================================

// Done is the terminal payload of a successful turn.
type Done struct {
	Sources            []string
	UserMessageID      string
	AssistantMessageID string
	Confidence         *api.Confidence
}

// Handler receives stream events for one turn. Exactly one terminal
// callback fires per turn: OnDone or OnError, never both, never twice.
// Nil callbacks are skipped.
type Handler struct {
	OnToken func(token string)
	OnDone  func(done Done)
	OnError func(err error)
}

// event is the wire shape of one stream line. Token, done, and error
// events share the same envelope; the populated fields tell them apart.
type event struct {
	Token              string          `json:"token"`
	Done               bool            `json:"done"`
	Error              string          `json:"error"`
	Sources            []string        `json:"sources"`
	UserMessageID      string          `json:"user_message_id"`
	AssistantMessageID string          `json:"assistant_message_id"`
	Confidence         *api.Confidence `json:"confidence"`
}

// =============================================================================
// STREAMING TRANSPORT
// =============================================================================

// StreamClient opens the streaming response for a posted message.
// It is satisfied by api.Client, which injects the current token once
// without the gateway's refresh-and-retry: an expired token shows up
// here as a request failure, not a retried stream.
type StreamClient interface {
	StreamMessage(ctx context.Context, chatID string, content string) (*http.Response, error)
}

// Transport consumes the backend's newline-delimited answer stream and
// turns it into handler callbacks.
type Transport struct {
	client      StreamClient
	idleTimeout time.Duration
}

// NewTransport creates a streaming transport over the given client.
func NewTransport(client StreamClient) *Transport {
	return &Transport{
		client:      client,
		idleTimeout: DefaultIdleTimeout,
	}
}

// WithIdleTimeout sets how long the stream may go silent before the
// transport synthesizes a failure. Zero or negative restores the default.
func (t *Transport) WithIdleTimeout(d time.Duration) *Transport {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	t.idleTimeout = d
	return t
}

// lineMsg carries one raw line (or the reader's final error) from the
// reader goroutine to the event loop.
type lineMsg struct {
	data []byte
	err  error
}

// StreamTurn posts content to the chat and consumes the response stream.
// It blocks until the turn reaches a terminal state and returns the error
// it delivered to the handler (nil after OnDone). Cancelling ctx aborts
// the turn; a silent stream is aborted after the idle timeout.
func (t *Transport) StreamTurn(ctx context.Context, chatID string, content string, h Handler) error {
	resp, err := t.client.StreamMessage(ctx, chatID, content)
	if err != nil {
		return t.fail(h, err)
	}
	defer resp.Body.Close()

	// The reader goroutine owns resp.Body reads; the event loop owns
	// dispatch and timing. Closing the body unblocks a stuck read, and
	// closing abandoned unblocks a send with no receiver left, so the
	// reader cannot outlive the turn even when the server keeps talking
	// past the terminal event.
	lines := make(chan lineMsg, 16)
	abandoned := make(chan struct{})
	defer close(abandoned)
	go readLines(resp.Body, lines, abandoned)

	var partial strings.Builder
	timer := time.NewTimer(t.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			resp.Body.Close()
			return t.fail(h, &StreamError{Partial: partial.String(), Err: ctx.Err()})

		case <-timer.C:
			resp.Body.Close()
			return t.fail(h, &StreamError{Partial: partial.String(), Err: ErrIdleTimeout})

		case msg := <-lines:
			if msg.err != nil {
				if errors.Is(msg.err, io.EOF) {
					// EOF with no terminal event still settles the turn.
					return t.fail(h, &StreamError{Partial: partial.String(), Err: ErrTruncated})
				}
				return t.fail(h, &StreamError{Partial: partial.String(), Err: msg.err})
			}

			ev, ok := parseEvent(msg.data)
			if !ok {
				// Malformed lines are dropped; they still count as
				// activity for the idle watchdog.
				resetTimer(timer, t.idleTimeout)
				continue
			}

			switch {
			case ev.Error != "":
				resp.Body.Close()
				return t.fail(h, &StreamError{Partial: partial.String(), Err: errors.New(ev.Error)})

			case ev.Done:
				resp.Body.Close()
				if h.OnDone != nil {
					h.OnDone(Done{
						Sources:            ev.Sources,
						UserMessageID:      ev.UserMessageID,
						AssistantMessageID: ev.AssistantMessageID,
						Confidence:         ev.Confidence,
					})
				}
				return nil

			case ev.Token != "":
				partial.WriteString(ev.Token)
				if h.OnToken != nil {
					h.OnToken(ev.Token)
				}
				resetTimer(timer, t.idleTimeout)
			}
		}
	}
}

// fail delivers the terminal error callback and returns the same error.
func (t *Transport) fail(h Handler, err error) error {
	if h.OnError != nil {
		h.OnError(err)
	}
	return err
}

// =============================================================================
// LINE READING
// =============================================================================

// readLines reads newline-delimited lines from the stream and forwards
// them. A partial line is buffered until its newline arrives; a trailing
// partial line at EOF is forwarded before the EOF itself. Closing quit
// releases the reader once nobody is receiving.
func readLines(r io.Reader, out chan<- lineMsg, quit <-chan struct{}) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > MaxEventSize {
			forward(out, lineMsg{err: fmt.Errorf("stream line too large: %d bytes", len(line))}, quit)
			return
		}
		if trimmed := bytes.TrimRight(line, "\r\n"); len(trimmed) > 0 {
			if !forward(out, lineMsg{data: trimmed}, quit) {
				return
			}
		}
		if err != nil {
			forward(out, lineMsg{err: err}, quit)
			return
		}
	}
}

// forward sends one message unless the turn has been abandoned.
func forward(out chan<- lineMsg, msg lineMsg, quit <-chan struct{}) bool {
	select {
	case out <- msg:
		return true
	case <-quit:
		return false
	}
}

// parseEvent decodes one stream line. The backend frames events as SSE
// data lines ("data: {...}"); a bare JSON object is accepted too.
// Returns ok=false for anything that does not decode.
func parseEvent(line []byte) (event, bool) {
	if bytes.HasPrefix(line, []byte("data:")) {
		line = bytes.TrimSpace(line[5:])
	}
	if len(line) == 0 || line[0] != '{' {
		return event{}, false
	}

	var ev event
	if err := json.Unmarshal(line, &ev); err != nil {
		return event{}, false
	}
	return ev, true
}

// resetTimer safely rearms a timer that may have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
