// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/morganforge/denali/internal/session"
)

// =============================================================================
// DATA TYPES
// =============================================================================

// Chat is a conversation as listed by the backend.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a settled message as stored by the backend.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatDetail is a conversation with its full message history.
type ChatDetail struct {
	Chat
	Messages []Message `json:"messages"`
}

// Confidence is the backend's self-assessment of how well-grounded an
// answer is in the retrieved documents.
type Confidence struct {
	Level string   `json:"confidence_level"` // "high", "medium", "low", or "none"
	Flags []string `json:"flags,omitempty"`
}

// Feedback is a recorded rating for an assistant message.
type Feedback struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Type      string    `json:"feedback_type"` // "positive" or "negative"
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is an uploaded knowledge-base file.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Category   string    `json:"category"`
	Status     string    `json:"status"` // "processing", "ready", or "error"
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// =============================================================================
// CHATS
// =============================================================================

// ListChats returns the user's conversations, most recently updated first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.Request(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates a new conversation.
func (c *Client) CreateChat(ctx context.Context, title string) (Chat, error) {
	var chat Chat
	body := map[string]string{"title": title}
	if err := c.Request(ctx, http.MethodPost, "/api/chats", body, &chat); err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// GetChat returns a conversation with its full message history.
func (c *Client) GetChat(ctx context.Context, chatID string) (ChatDetail, error) {
	var detail ChatDetail
	path := fmt.Sprintf("/api/chats/%s", chatID)
	if err := c.Request(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return ChatDetail{}, err
	}
	return detail, nil
}

// DeleteChat removes a conversation and its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/api/chats/%s", chatID)
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// StreamMessage posts a user message and returns the live streaming
// response. The caller owns resp.Body; the stream package consumes it.
func (c *Client) StreamMessage(ctx context.Context, chatID string, content string) (*http.Response, error) {
	path := fmt.Sprintf("/api/chats/%s/messages", chatID)
	body := map[string]string{"content": content}
	return c.Stream(ctx, http.MethodPost, path, body)
}

// =============================================================================
// FEEDBACK AND CONFIDENCE
// =============================================================================

// SubmitFeedback records a thumbs up or down for an answer. Submitting
// again for the same message replaces the earlier rating.
func (c *Client) SubmitFeedback(ctx context.Context, messageID string, positive bool, comment string) error {
	feedbackType := "negative"
	if positive {
		feedbackType = "positive"
	}
	body := map[string]string{
		"message_id":    messageID,
		"feedback_type": feedbackType,
	}
	if comment != "" {
		body["comment"] = comment
	}
	return c.Request(ctx, http.MethodPost, "/api/feedback", body, nil)
}

// GetFeedback returns the recorded feedback for a message, if any.
func (c *Client) GetFeedback(ctx context.Context, messageID string) (Feedback, error) {
	var fb Feedback
	path := fmt.Sprintf("/api/feedback/message/%s", messageID)
	if err := c.Request(ctx, http.MethodGet, path, nil, &fb); err != nil {
		return Feedback{}, err
	}
	return fb, nil
}

// DeleteFeedback withdraws previously submitted feedback.
func (c *Client) DeleteFeedback(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/api/feedback/message/%s", messageID)
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// GetConfidence fetches the confidence assessment for an assistant message.
func (c *Client) GetConfidence(ctx context.Context, messageID string) (Confidence, error) {
	var conf Confidence
	path := fmt.Sprintf("/api/messages/%s/confidence", messageID)
	if err := c.Request(ctx, http.MethodGet, path, nil, &conf); err != nil {
		return Confidence{}, err
	}
	return conf, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// ListDocuments returns the knowledge-base documents.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.Request(ctx, http.MethodGet, "/api/documents", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UploadDocument uploads a file into the knowledge base. Processing is
// asynchronous; the returned document starts in status "processing".
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (Document, error) {
	var doc Document
	if err := c.Upload(ctx, "/api/documents", "file", filename, content, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DownloadDocument fetches a document's raw content. The returned filename
// comes from the Content-Disposition header when present.
func (c *Client) DownloadDocument(ctx context.Context, documentID string) ([]byte, string, error) {
	path := fmt.Sprintf("/api/documents/%s/download", documentID)
	return c.Download(ctx, path)
}

// DeleteDocument removes a document and its chunks from the knowledge base.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	path := fmt.Sprintf("/api/documents/%s", documentID)
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// PROFILE
// =============================================================================

// UpdateProfile updates the user's display name and email.
func (c *Client) UpdateProfile(ctx context.Context, name, email string) (session.User, error) {
	var user session.User
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	if email != "" {
		body["email"] = email
	}
	if err := c.Request(ctx, http.MethodPut, "/api/auth/profile", body, &user); err != nil {
		return session.User{}, err
	}
	return user, nil
}

// ChangePassword changes the user's password.
func (c *Client) ChangePassword(ctx context.Context, current, updated string) error {
	body := map[string]string{
		"current_password": current,
		"new_password":     updated,
	}
	return c.Request(ctx, http.MethodPut, "/api/auth/password", body, nil)
}
