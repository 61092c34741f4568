package cache

import "time"

// Counters are the persisted lookup counters.
type Counters struct {
	TotalLookups      int64 `json:"total_lookups"`
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	RerankerBlocks    int64 `json:"reranker_blocks"`
	AnchorEscalations int64 `json:"anchor_escalations"`
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	EmbeddingModel  string  `json:"embedding_model"`
	RerankerMode    string  `json:"reranker_mode"`
	HitRate         float64 `json:"hit_rate"`
	CacheSize       int     `json:"cache_size"`
	LearnedEntries  int     `json:"learned_entries"`
	AnchorEntries   int     `json:"anchor_entries"`
	RerankerEnabled bool    `json:"reranker_enabled"`
	AnchorsReady    bool    `json:"anchors_ready"`
	Counters
}

// Lookup outcomes reported to the Recorder.
const (
	LookupHit          = "hit"
	LookupMiss         = "miss"
	LookupBlocked      = "reranker_block"
	LookupBypass       = "bypass"
	LookupNotReady     = "not_ready"
	LookupEmbedError   = "embedding_error"
	LookupRerankError  = "reranker_error"
	LookupDisabled     = "disabled"
	LookupNoCandidates = "no_candidates"
)

// Recorder receives cache telemetry.
type Recorder interface {
	RecordLookup(outcome string, latency time.Duration)
	RecordStore(outcome StoreOutcome)
	ObserveEmbedding(latency time.Duration, err error)
	ObserveRerank(latency time.Duration, err error)
	SetEntries(learned, anchors int)
	RecordBootstrap(latency time.Duration, anchors int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordLookup(string, time.Duration)        {}
func (nopRecorder) RecordStore(StoreOutcome)                  {}
func (nopRecorder) ObserveEmbedding(time.Duration, error)     {}
func (nopRecorder) ObserveRerank(time.Duration, error)        {}
func (nopRecorder) SetEntries(int, int)                       {}
func (nopRecorder) RecordBootstrap(time.Duration, int, error) {}

func hitRate(c Counters) float64 {
	if c.TotalLookups == 0 {
		return 0
	}
	return float64(c.Hits) / float64(c.TotalLookups) * 100
}
