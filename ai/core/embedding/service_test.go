package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer mimics the OpenAI /v1/embeddings endpoint.
func newEmbeddingServer(t *testing.T, handler func(req map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func embeddingResponse(vec []float32) map[string]any {
	return map[string]any{
		"object": "list",
		"model":  "nomic-embed-text",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"usage": map[string]any{"prompt_tokens": 4, "total_tokens": 4},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Model)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil config uses defaults", nil, false},
		{"openai compatible", &Config{Provider: "siliconflow", Model: "BAAI/bge-m3", BaseURL: "https://api.test.com/v1"}, false},
		{"missing model", &Config{Provider: "openai"}, true},
		{"gemini api key", &Config{Provider: "gemini", Model: "gemini-embedding-001", APIKey: "test-key"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestIdentity(t *testing.T) {
	svc, err := NewService(context.Background(), &Config{Model: "text-embedding-3-small", Dimensions: 256})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small@256", svc.Identity())

	svc, err = NewService(context.Background(), &Config{Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", svc.Identity())
}

func TestOpenAIService_Embed(t *testing.T) {
	var gotModel string
	var gotDims float64
	srv := newEmbeddingServer(t, func(req map[string]any) (int, any) {
		gotModel, _ = req["model"].(string)
		gotDims, _ = req["dimensions"].(float64)
		return http.StatusOK, embeddingResponse([]float32{0.1, 0.2, 0.3})
	})

	svc, err := NewService(context.Background(), &Config{
		Provider:   "ollama",
		Model:      "nomic-embed-text",
		BaseURL:    srv.URL + "/v1",
		Dimensions: 3,
	})
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "Schalte das Licht an")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "nomic-embed-text", gotModel)
	assert.Equal(t, 3.0, gotDims)
}

func TestOpenAIService_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := newEmbeddingServer(t, func(map[string]any) (int, any) {
			return http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "boom"}}
		})
		svc, err := NewService(context.Background(), &Config{Model: "m", BaseURL: srv.URL + "/v1"})
		require.NoError(t, err)

		_, err = svc.Embed(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("empty data", func(t *testing.T) {
		srv := newEmbeddingServer(t, func(map[string]any) (int, any) {
			return http.StatusOK, map[string]any{"object": "list", "data": []any{}}
		})
		svc, err := NewService(context.Background(), &Config{Model: "m", BaseURL: srv.URL + "/v1"})
		require.NoError(t, err)

		_, err = svc.Embed(context.Background(), "x")
		assert.ErrorIs(t, err, ErrEmptyEmbedding)
	})
}

type countingService struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingService) Identity() string { return "fake" }

func (c *countingService) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedService(t *testing.T) {
	next := &countingService{}
	svc := NewCachedService(next, 8, time.Minute)
	ctx := context.Background()

	v1, err := svc.Embed(ctx, "Licht an")
	require.NoError(t, err)
	v2, err := svc.Embed(ctx, "Licht an")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, 1, svc.Len())
	assert.Equal(t, "fake", svc.Identity())
}

func TestCachedService_CollapsesConcurrentCalls(t *testing.T) {
	next := &countingService{delay: 50 * time.Millisecond}
	svc := NewCachedService(next, 8, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Embed(context.Background(), "Rollläden zu")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachedService_DoesNotMemoizeErrors(t *testing.T) {
	next := &countingService{err: ErrEmptyEmbedding}
	svc := NewCachedService(next, 8, time.Minute)

	_, err := svc.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	_, err = svc.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, 0, svc.Len())
}

func TestCachedService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	next := &countingService{delay: 100 * time.Millisecond}
	svc := NewCachedService(next, 8, time.Minute)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Embed(first, "Heizung auf 21 Grad")
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.Embed(context.Background(), "Heizung auf 21 Grad")
		secondErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.NoError(t, <-secondErr)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, 1, svc.Len())
}
