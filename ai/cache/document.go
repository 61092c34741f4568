package cache

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	learnedKey     = "semantic_cache.json"
	learnedVersion = 4
	anchorKey      = "semantic_anchors.json"
	anchorVersion  = 1
)

type learnedDoc struct {
	EmbeddingModel string            `json:"embedding_model"`
	RerankerModel  string            `json:"reranker_model"`
	Entries        []json.RawMessage `json:"entries"`
	Stats          Counters          `json:"stats"`
	Version        int               `json:"version"`
	// Writer is the build that wrote the document.
	Writer string `json:"writer,omitempty"`
}

type anchorDoc struct {
	EmbeddingModel string            `json:"embedding_model"`
	Anchors        []json.RawMessage `json:"anchors"`
	Version        int               `json:"version"`
	Writer         string            `json:"writer,omitempty"`
}

func encodeEntries(entries []*Entry) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e.record())
		if err != nil {
			return nil, errors.Wrapf(err, "encode entry %q", e.Text)
		}
		out = append(out, raw)
	}
	return out, nil
}

// decodeRecords decodes every record it can, counting failures in skipped.
// Records of any embedding length are returned.
func decodeRecords(raws []json.RawMessage, generated bool) (entries []*Entry, skipped int) {
	for _, raw := range raws {
		e, err := decodeEntry(raw)
		if err != nil {
			skipped++
			continue
		}
		e.Generated = generated
		entries = append(entries, e)
	}
	return entries, skipped
}

// dominantDim returns the most common embedding length, ties going to the
// longer vector, and whether more than one length is present.
func dominantDim(entries []*Entry) (dim int, mixed bool) {
	counts := make(map[int]int)
	for _, e := range entries {
		counts[len(e.Embedding)]++
	}
	for d, n := range counts {
		if n > counts[dim] || (n == counts[dim] && d > dim) {
			dim = d
		}
	}
	return dim, len(counts) > 1
}

// filterDim keeps entries whose embedding has length dim.
func filterDim(entries []*Entry, dim int) (kept []*Entry, dropped int) {
	for _, e := range entries {
		if len(e.Embedding) != dim {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	return kept, dropped
}
