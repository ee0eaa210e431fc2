// Package llm proxies chat completions for the dashboard's prompt tooling.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/internal/config"
	"voice-agent-platform/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrNotConfigured   = errors.New("llm is not configured")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	maxMaxTokens       = 4000
)

type Message struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

type CompletionRequest struct {
	Messages    []Message `json:"messages" binding:"required,min=1,dive"`
	Model       string    `json:"model"`
	Temperature *float32  `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type CompletionResponse struct {
	Message      string `json:"message"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model"`
}

type Client struct {
	client *openai.Client
	model  string
}

type Option func(*openai.ClientConfig)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *openai.ClientConfig) { c.BaseURL = u }
}

// NewClient returns nil when no API key is configured; Complete on a nil
// client reports ErrNotConfigured.
func NewClient(cfg config.OpenAIConfig, opts ...Option) *Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	for _, o := range opts {
		o(&oc)
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{client: openai.NewClientWithConfig(oc), model: model}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if c == nil {
		return CompletionResponse{}, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w: messages are required", ErrInvalidArgument)
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	temperature := float32(defaultTemperature)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens > maxMaxTokens {
		maxTokens = maxMaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	log := logger.From(ctx).With("model", model, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.Warn("llm completion failed", "err", err)
		return CompletionResponse{}, fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, errors.New("llm completion: no choices returned")
	}

	log.Info("llm completion", "tokens", resp.Usage.TotalTokens)
	return CompletionResponse{
		Message:      resp.Choices[0].Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
	}, nil
}
