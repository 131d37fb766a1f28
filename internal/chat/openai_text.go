package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// OpenAIText completes prompts through an OpenAI-compatible chat endpoint.
// Setting BaseURL points it at OpenRouter or any other compatible gateway.
type OpenAIText struct {
	client *openai.Client
	model  string
	policy *CallPolicy
}

// OpenAITextConfig configures an OpenAIText client.
type OpenAITextConfig struct {
	APIKey     string
	BaseURL    string // default https://api.openai.com/v1
	Model      string // default gpt-4o-mini
	HTTPClient *http.Client
}

// NewOpenAIText creates a text completer. A nil policy uses the defaults.
func NewOpenAIText(cfg OpenAITextConfig, policy *CallPolicy) (*OpenAIText, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = ModelGPT4oMini
	}
	if policy == nil {
		policy = NewCallPolicy(DefaultCallTimeout, DefaultMaxRetries, 0)
	}
	return &OpenAIText{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		policy: policy,
	}, nil
}

// Model returns the model ID requests are sent to.
func (c *OpenAIText) Model() string { return c.model }

// Complete sends one system+user exchange and returns the trimmed reply.
func (c *OpenAIText) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()
	var content string
	err := c.policy.Do(ctx, "openai.chat", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return thumbnail.ErrEmptyCompletion
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai completion (%s): %w", c.model, err)
	}

	log.Debug().
		Str("model", c.model).
		Int("prompt_chars", len(user)).
		Int("response_chars", len(content)).
		Dur("duration", time.Since(start)).
		Msg("Text completion finished")

	if content == "" {
		return "", thumbnail.ErrEmptyCompletion
	}
	return content, nil
}
