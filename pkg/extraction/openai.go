package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIExtractor is an alternative backend speaking the OpenAI chat
// completion API. It covers OpenAI itself plus any compatible endpoint
// selected through OPENAI_BASE_URL.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	logger *logrus.Logger
}

// NewOpenAIExtractor wraps an existing OpenAI-compatible client.
func NewOpenAIExtractor(client *openai.Client, model string) *OpenAIExtractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &OpenAIExtractor{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Extract sends the extraction prompt as a single user message and
// parses the JSON payload out of the completion.
func (o *OpenAIExtractor) Extract(ctx context.Context, text string, docType DocumentType, structType StructureType) (map[string]interface{}, error) {
	prompt := buildExtractionPrompt(text, docType, structType)

	o.logger.WithFields(logrus.Fields{
		"doc_type":    docType,
		"structure":   structType,
		"text_length": len(text),
		"model":       o.model,
	}).Info("Calling OpenAI-compatible API for extraction")

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	payload := stripMarkdownFences(resp.Choices[0].Message.Content)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		o.logger.WithError(err).Error("Failed to parse completion as JSON")
		return nil, errors.Wrap(err, "invalid JSON response from completion")
	}

	return normalizeRaw(raw), nil
}
