// Package inference defines the language-model boundary used by the turn
// loop and its provider adapters.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one text message in the conversation.
type Message struct {
	Role Role
	Text string
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Usage reports token counts for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request is one inference call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// Response is the model's answer. Text may be empty when only tools are
// requested.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
	Model      string
}

// Client performs inference.
type Client interface {
	Infer(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

var (
	ErrNoAPIKey        = errors.New("API key not configured")
	ErrNoMessages      = errors.New("request has no messages")
	ErrUnknownProvider = errors.New("unknown inference provider")
)

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NormalizeMessages merges consecutive messages with the same role and makes
// sure the conversation opens with a user message, which both providers
// require. Empty messages are dropped.
func NormalizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Text += "\n\n" + m.Text
			continue
		}
		out = append(out, m)
	}
	if len(out) > 0 && out[0].Role != RoleUser {
		out = append([]Message{{Role: RoleUser, Text: "(conversation resumed)"}}, out...)
	}
	return out
}
