package explain

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for explanation generation,
// chosen for latency over the richer models used elsewhere in the
// platform, since 4.7 runs inline with a user-facing query.
const DefaultModel = "gemini-2.5-flash"

// GeminiModel adapts a genai.Client to the Model interface, ported
// from the gemini client's GenerateContent wrapper.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel builds a GeminiModel. An empty apiKey is valid only
// if the ambient environment already carries Gemini credentials that
// the SDK discovers on its own; callers typically pass one explicitly.
func NewGeminiModel(ctx context.Context, apiKey string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: DefaultModel}, nil
}

// GenerateContent implements Model.
func (g *GeminiModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	contents := genai.Text(prompt)
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return extractText(result)
}

func extractText(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text, nil
}
