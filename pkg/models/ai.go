// Package models contains shared data models used across the testscout codebase.
package models

import (
	"context"
	"fmt"
)

// AIProvider is the interface every LLM integration implements.
// Never call specific LLM providers directly; always inject this interface.
type AIProvider interface {
	// Complete sends a conversation and returns the model's reply.
	Complete(ctx context.Context, messages []Message) (*Completion, error)
	// Name returns the provider identifier (e.g., "ollama", "anthropic").
	Name() string
	// Model returns the configured model identifier.
	Model() string
}

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a provider reply.
type Completion struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// ProviderError describes a failed provider call. StatusCode is zero for
// transport failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Timeout    bool
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: API error (%d): %s", e.Provider, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether an immediate retry may succeed: server-side
// failures and timeouts. Client errors (auth, validation, rate limit) are permanent.
func (e *ProviderError) Transient() bool {
	if e.Timeout {
		return true
	}
	return e.StatusCode >= 500
}
