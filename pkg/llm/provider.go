// Package llm wraps the hosted text generators used for planning and chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers without any text
var ErrEmptyResponse = errors.New("llm: empty response")

// Provider is a text generator backend
type Provider interface {
	// Generate runs one completion
	Generate(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// Message is one chat turn sent to a provider
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request contains the parameters for one completion
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	// Temperature is sent only when set, so an explicit zero survives
	Temperature *float64
}

// Response is the provider answer
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token counts reported by the provider
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Config selects and configures a provider
type Config struct {
	Provider  string `json:"provider" mapstructure:"provider"` // "openai", "anthropic"
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// Temperature returns a pointer suitable for Request.Temperature
func Temperature(v float64) *float64 {
	return &v
}

// NewProvider creates a provider from config
func NewProvider(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: api key is required for provider %q", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Complete is a convenience wrapper for a single user message
func Complete(ctx context.Context, p Provider, request Request, prompt string) (string, error) {
	request.Messages = append(request.Messages, Message{Role: "user", Content: prompt})
	resp, err := p.Generate(ctx, request)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", p.Name(), err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
