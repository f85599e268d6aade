// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"sync"

	"github.com/morganforge/denali/internal/api"
	"github.com/morganforge/denali/internal/stream"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// FallbackApology replaces the assistant answer whenever a turn fails,
// so a failed turn never renders a half answer or an empty bubble.
const FallbackApology = "Sorry, I ran into a problem answering that. Please try again."

var (
	// ErrTurnInFlight indicates the chat already has an active turn.
	ErrTurnInFlight = errors.New("a turn is already in flight for this chat")
)

// =============================================================================
// RECONCILER
// =============================================================================

// TurnStreamer runs one streaming turn. It is satisfied by
// stream.Transport.
type TurnStreamer interface {
	StreamTurn(ctx context.Context, chatID string, content string, h stream.Handler) error
}

// Reconciler keeps per-chat transcripts consistent with the backend
// through optimistic updates. A submitted turn appears immediately with
// pending IDs; when the backend settles the turn, both the user and
// assistant IDs swap atomically so no observer ever sees a half-settled
// pair.
type Reconciler struct {
	mu sync.Mutex

	streamer    TurnStreamer
	transcripts map[string]*Transcript
	inflight    map[string]context.CancelFunc

	onChange func(chatID string)
}

// NewReconciler creates a reconciler over the given turn streamer.
func NewReconciler(streamer TurnStreamer) *Reconciler {
	return &Reconciler{
		streamer:    streamer,
		transcripts: make(map[string]*Transcript),
		inflight:    make(map[string]context.CancelFunc),
	}
}

// SetChangeCallback sets the function called after every transcript
// mutation. Called outside the reconciler lock.
func (r *Reconciler) SetChangeCallback(fn func(chatID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// notifyChange fires the change callback outside the lock.
func (r *Reconciler) notifyChange(chatID string) {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(chatID)
	}
}

// =============================================================================
// TRANSCRIPT ACCESS
// =============================================================================

// transcriptLocked returns the chat's transcript, creating it if needed.
// Caller must hold r.mu.
func (r *Reconciler) transcriptLocked(chatID string) *Transcript {
	t, ok := r.transcripts[chatID]
	if !ok {
		t = NewTranscript(chatID)
		r.transcripts[chatID] = t
	}
	return t
}

// Transcript returns the chat's transcript, creating an empty one if the
// chat has not been seen yet.
func (r *Reconciler) Transcript(chatID string) *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcriptLocked(chatID)
}

// LoadHistory replaces a chat's transcript with the backend's stored
// history. Refuses to clobber a chat with a turn in flight.
func (r *Reconciler) LoadHistory(chatID string, history []api.Message) error {
	r.mu.Lock()
	if _, busy := r.inflight[chatID]; busy {
		r.mu.Unlock()
		return ErrTurnInFlight
	}
	r.transcripts[chatID] = FromHistory(chatID, history)
	r.mu.Unlock()

	r.notifyChange(chatID)
	return nil
}

// MessageView is an immutable copy of one message's render state.
type MessageView struct {
	ID         MessageID
	Role       Role
	Content    string
	Sources    []string
	Confidence *api.Confidence
	Streaming  bool
	Failed     bool
}

// Snapshot copies the chat's messages under the reconciler lock so the
// UI goroutine can render without racing a streaming turn. Returns nil
// for a chat with no local state.
func (r *Reconciler) Snapshot(chatID string) []MessageView {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transcripts[chatID]
	if !ok {
		return nil
	}
	views := make([]MessageView, 0, t.Len())
	for _, m := range t.Messages() {
		views = append(views, MessageView{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.DisplayContent(),
			Sources:    m.Sources,
			Confidence: m.Confidence,
			Streaming:  m.Streaming,
			Failed:     m.Failed,
		})
	}
	return views
}

// DropTranscript forgets a chat's local state (after a delete).
func (r *Reconciler) DropTranscript(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, busy := r.inflight[chatID]; busy {
		cancel()
		delete(r.inflight, chatID)
	}
	delete(r.transcripts, chatID)
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// InFlight reports whether the chat has an active turn.
func (r *Reconciler) InFlight(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inflight[chatID]
	return busy
}

// CancelTurn aborts the chat's active turn, if any. The turn settles
// through its error path like any other failure.
func (r *Reconciler) CancelTurn(chatID string) {
	r.mu.Lock()
	cancel, busy := r.inflight[chatID]
	r.mu.Unlock()
	if busy {
		cancel()
	}
}

// SubmitTurn sends a user message and reconciles the streamed answer into
// the chat's transcript. It blocks until the turn settles and returns the
// turn's terminal error, if any. At most one turn per chat runs at a
// time; a second submission fails fast with ErrTurnInFlight.
func (r *Reconciler) SubmitTurn(ctx context.Context, chatID string, content string) error {
	r.mu.Lock()
	if _, busy := r.inflight[chatID]; busy {
		r.mu.Unlock()
		return ErrTurnInFlight
	}

	turnCtx, cancel := context.WithCancel(ctx)
	r.inflight[chatID] = cancel

	// Optimistic append: the turn is visible immediately under pending
	// IDs, before the backend has acknowledged anything.
	t := r.transcriptLocked(chatID)
	userMsg := NewUserMessage(content)
	asstMsg := NewStreamingAssistantMessage()
	t.Append(userMsg)
	t.Append(asstMsg)
	r.mu.Unlock()

	r.notifyChange(chatID)

	defer func() {
		r.mu.Lock()
		delete(r.inflight, chatID)
		r.mu.Unlock()
		cancel()
	}()

	handler := stream.Handler{
		OnToken: func(token string) {
			r.mu.Lock()
			asstMsg.AppendToken(token)
			r.mu.Unlock()
			r.notifyChange(chatID)
		},

		OnDone: func(done stream.Done) {
			r.mu.Lock()
			// Both IDs swap under one lock, and only when the backend
			// actually sent them: no observer ever sees a half-settled
			// pair, and a bare done event leaves both temp IDs intact.
			if done.UserMessageID != "" && done.AssistantMessageID != "" {
				userMsg.ID = SettledID(done.UserMessageID)
				asstMsg.ID = SettledID(done.AssistantMessageID)
			}
			asstMsg.FinalizeStream()
			asstMsg.Sources = DedupSources(done.Sources)
			asstMsg.Confidence = done.Confidence
			r.mu.Unlock()
			r.notifyChange(chatID)
		},

		OnError: func(err error) {
			r.mu.Lock()
			asstMsg.FinalizeStream()
			asstMsg.Failed = true
			// Partial output is discarded: a failed turn always renders
			// the fixed apology, never half an answer.
			asstMsg.Content = FallbackApology
			r.mu.Unlock()
			r.notifyChange(chatID)
		},
	}

	return r.streamer.StreamTurn(turnCtx, chatID, content, handler)
}
