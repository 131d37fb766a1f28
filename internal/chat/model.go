package chat

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Model IDs
//
// | Model                  | API Model ID            | Use Case                          |
// |------------------------|-------------------------|-----------------------------------|
// | GPT-4o mini            | gpt-4o-mini             | Default text enhancement/rewrite  |
// | Gemini 2.5 Flash       | gemini-2.5-flash        | Alternative text provider         |
// | Gemini 2.5 Flash Image | gemini-2.5-flash-image  | Thumbnail synthesis               |
// | Gemini 3 Pro Image     | gemini-3-pro-image-preview | Higher fidelity synthesis      |
const (
	// ModelGPT4oMini is the default text model for enhancement and composition.
	ModelGPT4oMini = "gpt-4o-mini"

	// ModelGemini25Flash is used when TEXT_PROVIDER=gemini.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini25FlashImage is the default image synthesis model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini3ProImage trades latency for fidelity.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"
)

// NewGeminiClient creates a Gemini Developer API client for the given key.
// httpClient may be nil to use the SDK default.
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}
