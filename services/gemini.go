package services

import (
	"context"
	"os"
	"sync"

	"google.golang.org/genai"
)

var DefaultGeminiClient = sync.OnceValue(func() *genai.Client {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		panic("GEMINI_API_KEY is not set, please set it in .env or the environment")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		panic("failed to create Gemini client: " + err.Error())
	}

	return client
})

// GeminiModel returns the configured Gemini model name.
func GeminiModel() string {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-1.5-pro"
	}
	return model
}
