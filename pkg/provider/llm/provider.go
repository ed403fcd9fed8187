// Package llm defines the Provider interface for the reasoning service.
//
// The interview core uses a language model for two judgments: drafting the
// question plan at session start and scoring each answer. Both are single
// request/response exchanges that expect a JSON document back, so the
// interface is deliberately narrow: one blocking completion call plus static
// model metadata.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is a single conversation turn.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text of the message.
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message usually carries
	// the material to judge.
	Messages []Message

	// SystemPrompt is injected before Messages with system priority.
	SystemPrompt string

	// Temperature controls randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a JSON object when it
	// supports doing so. Callers must still validate the reply.
	JSONMode bool
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities describes static properties of the configured model.
type ModelCapabilities struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsJSONMode bool
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns promptly
	// with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns metadata for the configured model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
