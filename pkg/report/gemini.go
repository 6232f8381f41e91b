package report

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiSynthesizer writes report narratives with the Gemini API.
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
}

// NewGeminiSynthesizer wraps an existing Gemini client.
func NewGeminiSynthesizer(client *genai.Client, model string) *GeminiSynthesizer {
	return &GeminiSynthesizer{client: client, model: model}
}

// Synthesize sends the report prompt to Gemini and returns the text.
func (g *GeminiSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("gemini candidate has no content parts")
	}
	return content.Parts[0].Text, nil
}
