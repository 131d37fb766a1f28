package chat

// gemini_image.go sends the composed instruction and the labeled reference
// images to a Gemini image model in one multimodal request and pulls the
// first inline image out of the reply.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// GeminiImageModel synthesizes thumbnails with a Gemini image model.
type GeminiImageModel struct {
	models      contentGenerator
	model       string
	aspectRatio string
	policy      *CallPolicy
}

// NewGeminiImageModel wraps client. aspectRatio may be empty to let the model choose.
func NewGeminiImageModel(client *genai.Client, model, aspectRatio string, policy *CallPolicy) *GeminiImageModel {
	return newGeminiImageModel(client.Models, model, aspectRatio, policy)
}

func newGeminiImageModel(models contentGenerator, model, aspectRatio string, policy *CallPolicy) *GeminiImageModel {
	if model == "" {
		model = ModelGemini25FlashImage
	}
	if policy == nil {
		policy = NewCallPolicy(DefaultCallTimeout, DefaultMaxRetries, 0)
	}
	return &GeminiImageModel{models: models, model: model, aspectRatio: aspectRatio, policy: policy}
}

// Model returns the model ID requests are sent to.
func (m *GeminiImageModel) Model() string { return m.model }

// GenerateImage runs one synthesis call. A reply without image data is not
// an error: the result carries only the model's text.
func (m *GeminiImageModel) GenerateImage(ctx context.Context, system string, parts []thumbnail.Part) (*thumbnail.SynthesisResult, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if m.aspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: m.aspectRatio}
	}
	contents := []*genai.Content{{Role: "user", Parts: toGenaiParts(parts)}}

	log.Info().
		Str("model", m.model).
		Int("parts", len(parts)).
		Int("image_bytes", inputBytes(parts)).
		Msg("Requesting thumbnail synthesis")

	start := time.Now()
	var resp *genai.GenerateContentResponse
	err := m.policy.Do(ctx, "gemini.image", func(ctx context.Context) error {
		var err error
		resp, err = m.models.GenerateContent(ctx, m.model, contents, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image (%s): %w", m.model, err)
	}

	result := extractImage(resp)
	log.Info().
		Str("model", m.model).
		Bool("has_image", len(result.Data) > 0).
		Int("output_bytes", len(result.Data)).
		Dur("duration", time.Since(start)).
		Msg("Thumbnail synthesis finished")
	return result, nil
}

func toGenaiParts(parts []thumbnail.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, &genai.Part{InlineData: &genai.Blob{MIMEType: p.Image.MIMEType, Data: p.Image.Data}})
			continue
		}
		if p.Text != "" {
			out = append(out, &genai.Part{Text: p.Text})
		}
	}
	return out
}

// extractImage returns the first inline image of the first candidate plus any
// text parts. Blocked prompts come back as text explaining the block reason.
func extractImage(resp *genai.GenerateContentResponse) *thumbnail.SynthesisResult {
	result := &thumbnail.SynthesisResult{}
	if resp == nil {
		return result
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			result.Text = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return result
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && result.Data == nil {
			result.Data = part.InlineData.Data
			result.MIMEType = part.InlineData.MIMEType
			continue
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	result.Text = strings.TrimSpace(strings.Join(texts, "\n"))
	return result
}

func inputBytes(parts []thumbnail.Part) int {
	n := 0
	for _, p := range parts {
		if p.Image != nil {
			n += len(p.Image.Data)
		}
	}
	return n
}
