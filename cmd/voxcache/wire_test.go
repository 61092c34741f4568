package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/voxcache/ai/core/reranker"
	"github.com/hrygo/voxcache/internal/profile"
)

type constEncoder struct{}

func (constEncoder) Predict(_ context.Context, pairs [][2]string) ([]float64, error) {
	return make([]float64, len(pairs)), nil
}

func TestRerankMode(t *testing.T) {
	reranker.RegisterLocalModel("linked-cross-encoder", func(string) (reranker.CrossEncoder, error) {
		return constEncoder{}, nil
	})

	tests := []struct {
		name    string
		profile profile.Profile
		want    string
		warns   bool
	}{
		{"local without linked model", profile.Profile{RerankEnabled: true, RerankMode: "local", RerankModel: "bge-reranker-v2-m3"}, "api", true},
		{"local with linked model", profile.Profile{RerankEnabled: true, RerankMode: "local", RerankModel: "linked-cross-encoder"}, "local", false},
		{"auto untouched", profile.Profile{RerankEnabled: true, RerankMode: "auto", RerankModel: "bge-reranker-v2-m3"}, "auto", false},
		{"disabled untouched", profile.Profile{RerankMode: "local", RerankModel: "bge-reranker-v2-m3"}, "local", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			assert.Equal(t, tt.want, rerankMode(&tt.profile, logger))
			assert.Equal(t, tt.warns, bytes.Contains(buf.Bytes(), []byte("no in-process reranker model linked")))
		})
	}
}
