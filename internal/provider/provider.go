package provider

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Provider is a single generative-model backend. Implementations must be
// safe for concurrent Complete calls; they hold no per-call state.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Error carries the upstream status so callers can classify failures
// without depending on any one SDK's error type.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func IsRateLimit(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.StatusCode == 429
	}
	return false
}

func IsAuth(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.StatusCode == 401 || pe.StatusCode == 403
	}
	return false
}

func IsRetryable(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.StatusCode == 429 || pe.StatusCode >= 500
	}
	return false
}
