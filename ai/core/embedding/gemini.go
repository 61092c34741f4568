package embedding

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

type geminiService struct {
	client     *genai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// newGeminiService uses the Gemini API when an API key is configured and
// Vertex AI (application default credentials) otherwise.
func newGeminiService(ctx context.Context, cfg *Config) (*geminiService, error) {
	clientConfig := &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	}
	if cfg.APIKey != "" {
		clientConfig = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &geminiService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}, nil
}

func (s *geminiService) Identity() string {
	return identity(s.model, s.dimensions)
}

func (s *geminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.EmbedContentConfig{}
	if s.dimensions > 0 {
		dims := int32(s.dimensions)
		config.OutputDimensionality = &dims
	}

	resp, err := s.client.Models.EmbedContent(ctx, s.model, genai.Text(text), config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed content")
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Values, nil
}
