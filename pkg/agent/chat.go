package agent

import (
	"context"
	"strings"

	"github.com/harun/skagent/pkg/llm"
	"github.com/rs/zerolog"
)

const chatTemperature = 0.3

// ChatExecutor answers instructions through a text generator
type ChatExecutor struct {
	provider  llm.Provider
	composer  *Composer
	model     string
	maxTokens int
	logger    zerolog.Logger
}

// ChatConfig configures a ChatExecutor
type ChatConfig struct {
	Provider  llm.Provider
	Composer  *Composer
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// NewChatExecutor creates the "chat" executor
func NewChatExecutor(cfg ChatConfig) *ChatExecutor {
	if cfg.Composer == nil {
		cfg.Composer = NewComposer(nil)
	}
	return &ChatExecutor{
		provider:  cfg.Provider,
		composer:  cfg.Composer,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger.With().Str("executor", "chat").Logger(),
	}
}

// Name returns "chat"
func (c *ChatExecutor) Name() string { return "chat" }

// Description is shown to planners
func (c *ChatExecutor) Description() string {
	return "Answers questions, explains results and holds conversation"
}

// Execute composes the prompt and asks the model. A generation failure is
// a failed result, not an error, so it stays retry-eligible. Cancellation
// is returned as an error.
func (c *ChatExecutor) Execute(ctx context.Context, execCtx *Context) (Result, error) {
	prompt := c.composer.Compose(execCtx)

	resp, err := c.provider.Generate(ctx, llm.Request{
		Model:        c.model,
		SystemPrompt: prompt.System,
		Messages:     []llm.Message{{Role: "user", Content: prompt.User}},
		MaxTokens:    c.maxTokens,
		Temperature:  llm.Temperature(chatTemperature),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		c.logger.Warn().Err(err).Str("run_id", execCtx.RunID).Msg("Chat generation failed")
		return Failed("", err.Error()), nil
	}

	output := strings.TrimSpace(resp.Content)
	if output == "" {
		return Failed("", llm.ErrEmptyResponse.Error()), nil
	}
	return Succeeded(output), nil
}
