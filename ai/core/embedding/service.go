// Package embedding turns utterances into vectors through a remote
// embedding service.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrEmptyEmbedding is returned when the service answers without a vector.
var ErrEmptyEmbedding = errors.New("embedding service returned no vector")

// Service generates vector embeddings.
type Service interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Identity names the model producing the vectors. Vectors from
	// different identities are not comparable.
	Identity() string
}

// Config represents embedding service configuration.
type Config struct {
	Provider   string // openai, ollama, siliconflow, gemini
	Model      string
	APIKey     string
	BaseURL    string
	Project    string // gemini on Vertex AI
	Location   string // gemini on Vertex AI
	Dimensions int
	Timeout    time.Duration
}

// DefaultConfig returns a configuration for a local Ollama server.
func DefaultConfig() *Config {
	return &Config{
		Provider: "ollama",
		Model:    "nomic-embed-text",
		BaseURL:  "http://localhost:11434/v1",
		Timeout:  10 * time.Second,
	}
}

// NewService creates the Service for cfg.Provider. Unknown providers are
// treated as OpenAI-compatible.
func NewService(ctx context.Context, cfg *Config) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	if cfg.Provider == "gemini" {
		return newGeminiService(ctx, cfg)
	}
	return newOpenAIService(cfg), nil
}

func identity(model string, dims int) string {
	if dims > 0 {
		return fmt.Sprintf("%s@%d", model, dims)
	}
	return model
}
