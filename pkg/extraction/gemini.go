package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiExtractor calls the Gemini API to extract entities from
// document text.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	logger *logrus.Logger
}

// NewGeminiExtractor wraps an existing Gemini client. model is the
// Gemini model name, e.g. "gemini-1.5-pro".
func NewGeminiExtractor(client *genai.Client, model string) *GeminiExtractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &GeminiExtractor{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Extract sends the extraction prompt to Gemini and parses the JSON
// payload out of the response.
func (g *GeminiExtractor) Extract(ctx context.Context, text string, docType DocumentType, structType StructureType) (map[string]interface{}, error) {
	prompt := buildExtractionPrompt(text, docType, structType)

	g.logger.WithFields(logrus.Fields{
		"doc_type":    docType,
		"structure":   structType,
		"text_length": len(text),
		"model":       g.model,
	}).Info("Calling Gemini API for extraction")

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, errors.Wrap(err, "gemini generate content")
	}

	responseText, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	payload := stripMarkdownFences(responseText)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		g.logger.WithError(err).Error("Failed to parse Gemini response as JSON")
		return nil, errors.Wrap(err, "invalid JSON response from Gemini")
	}

	normalized := normalizeRaw(raw)

	g.logger.WithFields(logrus.Fields{
		"stakeholders": len(rawList(normalized, "stakeholders")),
		"deliverables": len(rawList(normalized, "deliverables")),
		"deadlines":    len(rawList(normalized, "deadlines")),
		"financials":   len(rawList(normalized, "financials")),
	}).Info("Extraction response parsed")

	return normalized, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("gemini candidate has no content parts")
	}
	return content.Parts[0].Text, nil
}
