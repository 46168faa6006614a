package repository

import (
	"context"
)

// Usage carries the token and cost metadata the LLM backend reported for one
// call. Cost is a passthrough of whatever the backend returned (OpenRouter
// reports it as usage.cost); it is never recomputed from token counts, since
// pricing is backend-defined.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

// Add accumulates another call's usage into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Cost += other.Cost
}

// Completion is the result of a single chat-completion call.
type Completion struct {
	Text  string
	Usage Usage
}

// LLMClient defines the interface for chat-completion backends.
type LLMClient interface {
	Complete(ctx context.Context, model, systemPrompt, userMessage string) (Completion, error)
}
