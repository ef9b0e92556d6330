// Package anthropic adapts the Anthropic Messages API to the llm.Completer port.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/port/llm"
	"github.com/Strob0t/OpsForge/internal/resilience"
)

// DefaultModel is used when a request names no model.
const DefaultModel = anthropic.ModelClaudeSonnet4_20250514

// Client completes prompts with Claude models.
type Client struct {
	inner     anthropic.Client
	maxTokens int64
	breaker   *resilience.Breaker
}

// NewClient creates a client. Extra options (base URL, HTTP client) are
// appended after the API key. SDK-level retries are disabled; retry policy
// belongs to the caller.
func NewClient(apiKey string, maxTokens int64, opts ...option.RequestOption) *Client {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	all := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)
	return &Client{inner: anthropic.NewClient(all...), maxTokens: maxTokens}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) { c.breaker = b }

// Complete sends a single user message and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := anthropic.Model(req.Model)
	if req.Model == "" {
		model = DefaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var msg *anthropic.Message
	call := func() error {
		var err error
		msg, err = c.inner.Messages.New(ctx, params)
		return classify(err)
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
	} else {
		err = call()
	}
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic complete %s: %w", model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return llm.Response{
		Content: sb.String(),
		Model:   string(model),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// classify maps SDK errors onto domain sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == 529 {
			return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}
