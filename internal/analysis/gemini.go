package analysis

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/fpang/video-narrator/internal/assets"
)

// Gemini model IDs. Flash is the default: clip description is a
// high-throughput task that does not need the pro tier.
const (
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
	ModelGemini25Pro       = "gemini-2.5-pro"
)

// DefaultModelName can be overridden via the GEMINI_MODEL environment variable.
const DefaultModelName = ModelGemini25Flash

// GetModelName returns the Gemini model to use, resolved from:
// 1. GEMINI_MODEL environment variable (if set)
// 2. Default: gemini-2.5-flash
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}

// VisionModel describes one clip. Implementations return the raw response
// text; parsing belongs to the caller.
type VisionModel interface {
	Invoke(ctx context.Context, clipData []byte, mimeType, prompt string) (string, error)
}

// NewGeminiClient creates a Gemini API client from an API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiModel adapts a genai client to VisionModel.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel wraps client. An empty model name resolves via GetModelName.
func NewGeminiModel(client *genai.Client, model string) *GeminiModel {
	if model == "" {
		model = GetModelName()
	}
	return &GeminiModel{client: client, model: model}
}

func (m *GeminiModel) Invoke(ctx context.Context, clipData []byte, mimeType, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.AnalysisSystemPrompt}},
		},
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: clipData}},
		{Text: prompt},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	return resp.Text(), nil
}
