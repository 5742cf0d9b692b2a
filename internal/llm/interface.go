package llm

import (
	"context"
	"time"
)

// LLMClient defines the interface for LLM clients (both basic and fallback).
// It embeds adapters.LLMClient's Call method so either Client or
// FallbackClient can be handed directly to an agents.LLMAgent, while still
// exposing the richer chat-message methods to callers that want them.
type LLMClient interface {
	// Call satisfies adapters.LLMClient.
	Call(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float64, timeout time.Duration) (string, error)

	// Complete sends a chat completion request with the given messages
	Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error)

	// CompleteWithRetry attempts completion with retries on transient failures
	CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error)

	// CompleteWithSystem is a convenience method for system + user prompts
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ParseJSONResponse extracts and parses JSON from LLM response content
	ParseJSONResponse(content string, target interface{}) error
}

// Ensure Client implements LLMClient interface
var _ LLMClient = (*Client)(nil)

// Ensure FallbackClient implements LLMClient interface
var _ LLMClient = (*FallbackClient)(nil)
