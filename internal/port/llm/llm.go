// Package llm defines the port to the code-intelligence (LLM) service.
package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	Prompt      string
	Model       string // empty = provider default
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the completion text and the model that produced it.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Completer produces text completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
