package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// apiScorer calls a remote cross-encoder. Three wire protocols are supported:
//
//	addon:       POST {base}/rerank     {"query","candidates"}          -> {"scores","best_index"}
//	siliconflow: POST {base}/v1/rerank  {"model","query","documents"}   -> {"results":[{index,relevance_score}]}
//	tei:         POST {base}/rerank     {"query","texts","raw_scores"}  -> [{index,score}] (logits)
type apiScorer struct {
	client   *http.Client
	provider string
	apiKey   string
	baseURL  string
	model    string
}

func newAPIScorer(cfg *Config) *apiScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "addon"
	}
	return &apiScorer{
		provider: provider,
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *apiScorer) Score(ctx context.Context, query string, candidates []string) (Scores, error) {
	switch s.provider {
	case "siliconflow":
		return s.scoreSiliconFlow(ctx, query, candidates)
	case "tei":
		return s.scoreTEI(ctx, query, candidates)
	default:
		return s.scoreAddon(ctx, query, candidates)
	}
}

func (s *apiScorer) scoreAddon(ctx context.Context, query string, candidates []string) (Scores, error) {
	var result struct {
		Scores    []float64 `json:"scores"`
		BestIndex int       `json:"best_index"`
	}
	reqBody := map[string]any{
		"query":      query,
		"candidates": candidates,
	}
	if err := s.post(ctx, s.baseURL+"/rerank", reqBody, &result); err != nil {
		return Scores{}, err
	}
	if len(result.Scores) != len(candidates) {
		return Scores{}, errors.Errorf("rerank addon returned %d scores for %d candidates", len(result.Scores), len(candidates))
	}
	return newScores(result.Scores), nil
}

func (s *apiScorer) scoreSiliconFlow(ctx context.Context, query string, candidates []string) (Scores, error) {
	reqBody := map[string]any{
		"model":     s.model,
		"query":     query,
		"documents": candidates,
		"top_n":     len(candidates),
	}

	url := s.baseURL
	if strings.HasSuffix(url, "/v1") {
		url += "/rerank"
	} else {
		url += "/v1/rerank"
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := s.post(ctx, url, reqBody, &result); err != nil {
		return Scores{}, err
	}

	probs := make([]float64, len(candidates))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(probs) {
			probs[r.Index] = r.Score
		}
	}
	return newScores(probs), nil
}

func (s *apiScorer) scoreTEI(ctx context.Context, query string, candidates []string) (Scores, error) {
	reqBody := map[string]any{
		"query":      query,
		"texts":      candidates,
		"raw_scores": true,
	}
	var result []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := s.post(ctx, s.baseURL+"/rerank", reqBody, &result); err != nil {
		return Scores{}, err
	}

	probs := make([]float64, len(candidates))
	for _, r := range result {
		if r.Index >= 0 && r.Index < len(probs) {
			probs[r.Index] = Sigmoid(r.Score)
		}
	}
	return newScores(probs), nil
}

func (s *apiScorer) post(ctx context.Context, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "rerank request")
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // cleanup

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("rerank API error: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("rerank API error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode rerank response")
	}
	return nil
}
