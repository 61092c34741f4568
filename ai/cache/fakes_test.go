package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/ai/core/reranker"
	"github.com/hrygo/voxcache/store"
)

const testDim = 512

// wordEmbedder embeds text as a hashed bag of lowercase words.
type wordEmbedder struct {
	model string
	calls atomic.Int32
	fail  atomic.Bool
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{model: "bag-of-words@512"}
}

func (w *wordEmbedder) Identity() string { return w.model }

func (w *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	w.calls.Add(1)
	if w.fail.Load() {
		return nil, errors.New("embedding backend down")
	}
	return bagOfWords(text), nil
}

func bagOfWords(text string) []float32 {
	v := make([]float32, testDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,!?")))
		v[h.Sum32()%testDim]++
	}
	return v
}

// actionReranker scores a pair high only when both end in the same word,
// which for German commands is the separable verb particle (an/aus/auf).
type actionReranker struct {
	err     error
	calls   atomic.Int32
	enabled bool
}

func (r *actionReranker) Score(_ context.Context, query string, candidates []string) (reranker.Scores, error) {
	r.calls.Add(1)
	if r.err != nil {
		return reranker.Scores{}, r.err
	}
	probs := make([]float64, len(candidates))
	best := 0
	for i, c := range candidates {
		probs[i] = 0.15
		if lastWord(query) == lastWord(c) {
			probs[i] = 0.95
		}
		if probs[i] > probs[best] {
			best = i
		}
	}
	return reranker.Scores{Probabilities: probs, Best: best}, nil
}

func (r *actionReranker) IsEnabled() bool { return r.enabled }
func (r *actionReranker) Mode() string    { return reranker.ModeAPI }
func (r *actionReranker) Model() string   { return "action-reranker" }

func lastWord(s string) string {
	f := strings.Fields(strings.ToLower(s))
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

// memDriver is an in-memory store.Driver.
type memDriver struct {
	docs map[string][]byte
	mu   sync.Mutex
}

func newMemDriver() *memDriver {
	return &memDriver{docs: map[string][]byte{}}
}

func (m *memDriver) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memDriver) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memDriver) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *memDriver) Close() error { return nil }

func (m *memDriver) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[key]
	return ok
}

// staticBootstrapper embeds a fixed list of anchor phrases.
type staticBootstrapper struct {
	embedder *wordEmbedder
	release  chan struct{}
	err      error
	anchors  []Entry
	calls    atomic.Int32
}

func (b *staticBootstrapper) Generate(ctx context.Context) ([]*Entry, error) {
	b.calls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	out := make([]*Entry, 0, len(b.anchors))
	for _, a := range b.anchors {
		vec, err := b.embedder.Embed(ctx, a.Text)
		if err != nil {
			continue
		}
		e := a
		e.Embedding = vec
		e.Generated = true
		out = append(out, &e)
	}
	return out, nil
}

// stepClock advances one second per call.
type stepClock struct {
	t  time.Time
	mu sync.Mutex
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}
