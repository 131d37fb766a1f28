package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// GeminiText completes prompts with a Gemini text model.
type GeminiText struct {
	models contentGenerator
	model  string
	policy *CallPolicy
}

// NewGeminiText wraps client. An empty model uses gemini-2.5-flash.
func NewGeminiText(client *genai.Client, model string, policy *CallPolicy) *GeminiText {
	return newGeminiText(client.Models, model, policy)
}

func newGeminiText(models contentGenerator, model string, policy *CallPolicy) *GeminiText {
	if model == "" {
		model = ModelGemini25Flash
	}
	if policy == nil {
		policy = NewCallPolicy(DefaultCallTimeout, DefaultMaxRetries, 0)
	}
	return &GeminiText{models: models, model: model, policy: policy}
}

// Model returns the model ID requests are sent to.
func (g *GeminiText) Model() string { return g.model }

// Complete sends one system+user exchange and returns the trimmed reply.
func (g *GeminiText) Complete(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}

	start := time.Now()
	var text string
	err := g.policy.Do(ctx, "gemini.text", func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(user), config)
		if err != nil {
			return err
		}
		if resp == nil {
			return thumbnail.ErrEmptyCompletion
		}
		text = strings.TrimSpace(resp.Text())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini completion (%s): %w", g.model, err)
	}

	log.Debug().
		Str("model", g.model).
		Int("response_chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Text completion finished")

	if text == "" {
		return "", thumbnail.ErrEmptyCompletion
	}
	return text, nil
}
