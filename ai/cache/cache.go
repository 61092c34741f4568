// Package cache implements the semantic command cache: utterances that were
// resolved and executed successfully are remembered by embedding, and later
// paraphrases are answered from memory after a cross-encoder confirms the
// match.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/ai/core/embedding"
	"github.com/hrygo/voxcache/ai/core/reranker"
	"github.com/hrygo/voxcache/ai/internal/strutil"
	"github.com/hrygo/voxcache/ai/vector"
	"github.com/hrygo/voxcache/internal/version"
	"github.com/hrygo/voxcache/store"
)

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
	// ErrNoBootstrapper is returned by Bootstrap when no generator is configured.
	ErrNoBootstrapper = errors.New("no anchor bootstrapper configured")
)

// Config holds cache tuning.
type Config struct {
	Thresholds         reranker.Thresholds
	ExcludeRules       []string
	MaxEntries         int
	TopK               int
	MinWords           int
	VectorThreshold    float64
	DuplicateThreshold float64
	LegacyThreshold    float64
	Enabled            bool
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxEntries:         200,
		TopK:               5,
		MinWords:           3,
		VectorThreshold:    0.4,
		DuplicateThreshold: 0.95,
		LegacyThreshold:    0.85,
		Thresholds:         reranker.DefaultThresholds(),
	}
}

// Bootstrapper produces anchor entries. Returned entries must carry
// embeddings from the cache's embedding service.
type Bootstrapper interface {
	Generate(ctx context.Context) ([]*Entry, error)
}

// Result is a cache hit.
type Result struct {
	Slots                  map[string]any    `json:"slots"`
	DisambiguationOptions  map[string]string `json:"disambiguation_options,omitempty"`
	Intent                 string            `json:"intent"`
	OriginalText           string            `json:"original_text"`
	EntityIDs              []string          `json:"entity_ids"`
	Score                  float64           `json:"score"`
	RequiredDisambiguation bool              `json:"required_disambiguation"`
	Reranked               bool              `json:"reranked"`
	Generated              bool              `json:"generated"`
}

// StoreRequest describes a command that was resolved and executed.
type StoreRequest struct {
	Slots                    map[string]any    `json:"slots"`
	DisambiguationOptions    map[string]string `json:"disambiguation_options"`
	Text                     string            `json:"text"`
	Intent                   string            `json:"intent"`
	EntityIDs                []string          `json:"entity_ids"`
	RequiredDisambiguation   bool              `json:"required_disambiguation"`
	Verified                 bool              `json:"verified"`
	IsDisambiguationResponse bool              `json:"is_disambiguation_response"`
}

// StoreOutcome says what Store did with a request.
type StoreOutcome string

const (
	StoreInserted              StoreOutcome = "inserted"
	StoreUpdated               StoreOutcome = "updated"
	StoreSkippedDisabled       StoreOutcome = "skipped_disabled"
	StoreSkippedUnverified     StoreOutcome = "skipped_unverified"
	StoreSkippedDisambiguation StoreOutcome = "skipped_disambiguation"
	StoreSkippedTooShort       StoreOutcome = "skipped_too_short"
	StoreSkippedNonRepeatable  StoreOutcome = "skipped_non_repeatable"
	StoreSkippedExcluded       StoreOutcome = "skipped_excluded"
	StoreSkippedNoEmbedding    StoreOutcome = "skipped_no_embedding"
	StoreSkippedDimension      StoreOutcome = "skipped_dimension"
)

// Stored reports whether the outcome changed the cache.
func (o StoreOutcome) Stored() bool {
	return o == StoreInserted || o == StoreUpdated
}

// Option configures a Cache.
type Option func(*Cache)

// WithReranker sets the cross-encoder. Without one, matches are accepted on
// vector score alone against the legacy threshold.
func WithReranker(r reranker.Service) Option {
	return func(c *Cache) { c.reranker = r }
}

// WithBootstrapper sets the anchor generator.
func WithBootstrapper(b Bootstrapper) Option {
	return func(c *Cache) { c.bootstrapper = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// WithClock overrides the time source used for lastHit.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is safe for concurrent use.
type Cache struct {
	embedder     embedding.Service
	reranker     reranker.Service
	bootstrapper Bootstrapper
	driver       store.Driver
	rules        *ExclusionRules
	logger       *slog.Logger
	recorder     Recorder
	now          func() time.Time
	persister    *persister

	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	loadOnce sync.Once
	stopOnce sync.Once

	// mu guards everything below. entries[i] is row i of index.
	mu       sync.RWMutex
	entries  []*Entry
	index    *vector.Index
	counters Counters
	readyCh  chan struct{}
	epoch    uint64
	ready    bool
	started  bool
	closed   bool

	cfg Config
}

// New creates a cache. Nothing is loaded until Startup or the first Lookup.
func New(cfg Config, embedder embedding.Service, driver store.Driver, opts ...Option) (*Cache, error) {
	if embedder == nil {
		return nil, errors.New("embedding service required")
	}
	if driver == nil {
		return nil, errors.New("storage driver required")
	}
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.Thresholds.PerDomain == nil {
		cfg.Thresholds = reranker.NewThresholds(cfg.Thresholds.Default, nil)
	}

	rules, err := CompileExclusionRules(cfg.ExcludeRules)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:      cfg,
		embedder: embedder,
		driver:   driver,
		rules:    rules,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
		index:    vector.NewIndex(0),
		readyCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "semantic_cache")
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.persister = newPersister(c.writeLearned, c.logger)
	return c, nil
}

// Startup loads persisted state and makes anchors available, either from
// the anchor document or by generating them in the background. It returns
// before generation finishes; WaitReady blocks until it does.
func (c *Cache) Startup(ctx context.Context) error {
	c.ensureLoaded(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	epoch := c.epoch
	// Registered under the lock so Close cannot miss the goroutine.
	c.wg.Add(1)
	c.mu.Unlock()

	launched := false
	defer func() {
		if !launched {
			c.wg.Done()
		}
	}()

	if !c.cfg.Enabled {
		c.installAnchors(epoch, nil)
		return nil
	}

	if anchors, ok := c.loadAnchors(ctx); ok {
		c.installAnchors(epoch, anchors)
		c.logger.Info("anchors loaded", "count", len(anchors))
		return nil
	}

	if c.bootstrapper == nil {
		c.installAnchors(epoch, nil)
		return nil
	}

	launched = true
	go func() {
		defer c.wg.Done()
		if _, err := c.bootstrap(c.lifetime, epoch); err != nil {
			c.logger.Warn("anchor generation failed, continuing without anchors", "error", err)
		}
	}()
	return nil
}

// Load reads persisted learned entries and counters without touching
// anchors. Startup and Lookup call it implicitly.
func (c *Cache) Load(ctx context.Context) {
	c.ensureLoaded(ctx)
}

// WaitReady blocks until anchors are available or ctx ends.
func (c *Cache) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	ch := c.readyCh
	c.mu.RUnlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnchorsReady reports whether lookups are being served.
func (c *Cache) AnchorsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Bootstrap regenerates anchors synchronously, replacing current ones, and
// persists them. It returns the number of anchors installed.
func (c *Cache) Bootstrap(ctx context.Context) (int, error) {
	if c.bootstrapper == nil {
		return 0, ErrNoBootstrapper
	}
	c.ensureLoaded(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.started = true
	epoch := c.epoch
	c.mu.Unlock()
	return c.bootstrap(ctx, epoch)
}

func (c *Cache) bootstrap(ctx context.Context, epoch uint64) (int, error) {
	start := time.Now()
	anchors, err := c.bootstrapper.Generate(ctx)
	if err != nil {
		c.recorder.RecordBootstrap(time.Since(start), 0, err)
		c.installAnchors(epoch, nil)
		return 0, errors.Wrap(err, "generate anchors")
	}

	n := c.installAnchors(epoch, anchors)
	if n < 0 {
		c.recorder.RecordBootstrap(time.Since(start), 0, nil)
		c.logger.Info("discarding anchors generated before clear")
		return 0, nil
	}
	c.recorder.RecordBootstrap(time.Since(start), n, nil)
	c.logger.Info("anchors generated", "count", n, "duration", time.Since(start))

	// An empty document would count as valid on the next start.
	if n == 0 && len(anchors) > 0 {
		c.logger.Warn("no usable anchors, not persisting")
		return 0, nil
	}
	if err := c.writeAnchors(ctx); err != nil {
		c.logger.Warn("persist anchors failed", "error", err)
	}
	return n, nil
}

// installAnchors replaces all generated entries with anchors and marks the
// cache ready. Anchors come from the current model, so their dimension
// wins: learned entries of another length are dropped. It returns -1 if
// the cache was cleared since epoch.
func (c *Cache) installAnchors(epoch uint64, anchors []*Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.closed {
		return -1
	}

	var fresh []*Entry
	for _, a := range anchors {
		if a != nil && len(a.Embedding) > 0 {
			fresh = append(fresh, a)
		}
	}
	dim, _ := dominantDim(fresh)
	fresh, _ = filterDim(fresh, dim)

	kept := make([]*Entry, 0, len(c.entries)+len(fresh))
	stale := 0
	for _, e := range c.entries {
		switch {
		case e.Generated:
		case dim != 0 && len(e.Embedding) != dim:
			stale++
		default:
			kept = append(kept, e)
		}
	}
	if stale > 0 {
		c.logger.Warn("dropping learned entries with a different embedding dimension", "count", stale, "dim", dim)
		c.persister.schedule()
	}

	for _, a := range fresh {
		a.Generated = true
		if a.Slots == nil {
			a.Slots = map[string]any{}
		}
		kept = append(kept, a)
	}
	if skipped := len(anchors) - len(fresh); skipped > 0 {
		c.logger.Warn("skipped unusable anchors", "count", skipped)
	}
	c.replaceLocked(kept)

	if !c.ready {
		c.ready = true
		close(c.readyCh)
	}
	return len(fresh)
}

// replaceLocked swaps in entries and rebuilds the index.
func (c *Cache) replaceLocked(entries []*Entry) {
	vecs := make([][]float32, len(entries))
	for i, e := range entries {
		vecs[i] = e.Embedding
	}
	c.index.Reset()
	if err := c.index.Rebuild(vecs); err != nil {
		// Callers filter by dimension first.
		c.logger.Error("rebuild index failed", "error", err)
		c.entries = nil
		return
	}
	c.entries = entries
	c.reportSizeLocked()
}

func (c *Cache) reportSizeLocked() {
	learned := 0
	for _, e := range c.entries {
		if !e.Generated {
			learned++
		}
	}
	c.recorder.SetEntries(learned, len(c.entries)-learned)
}

// Lookup answers text from the cache. Every failure is a miss.
func (c *Cache) Lookup(ctx context.Context, text string) (*Result, bool) {
	start := time.Now()
	res, outcome := c.lookup(ctx, text)
	c.recorder.RecordLookup(outcome, time.Since(start))
	c.logger.Debug("lookup", "text", strutil.Truncate(text, 80), "outcome", outcome)
	return res, res != nil
}

func (c *Cache) lookup(ctx context.Context, text string) (*Result, string) {
	if !c.cfg.Enabled {
		return nil, LookupDisabled
	}
	c.ensureLoaded(ctx)
	if !c.AnchorsReady() {
		return nil, LookupNotReady
	}
	if rule, ok := bypassRule(text); ok {
		c.logger.Debug("lookup bypassed", "rule", rule)
		return nil, LookupBypass
	}

	c.count(func(s *Counters) { s.TotalLookups++ })

	query, values := NormalizeNumbers(text)
	vec, err := c.embed(ctx, query)
	if err != nil {
		c.logger.Warn("embedding failed", "error", err)
		c.count(func(s *Counters) { s.Misses++ })
		return nil, LookupEmbedError
	}

	c.mu.RLock()
	matches := c.index.TopK(vec, c.cfg.VectorThreshold, c.cfg.TopK)
	epoch := c.epoch
	candidates := make([]*Entry, len(matches))
	for i, m := range matches {
		candidates[i] = c.entries[m.Row]
	}
	c.mu.RUnlock()

	if len(candidates) == 0 {
		c.count(func(s *Counters) { s.Misses++ })
		return nil, LookupNoCandidates
	}

	winner, score, reranked, outcome := c.decide(ctx, query, candidates, matches)
	if winner == nil {
		c.count(func(s *Counters) {
			s.Misses++
			if outcome == LookupBlocked {
				s.RerankerBlocks++
			}
		})
		return nil, outcome
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.counters.Misses++
		c.mu.Unlock()
		return nil, LookupMiss
	}
	winner.Hits++
	winner.LastHit = c.now()
	c.counters.Hits++
	res := &Result{
		Intent:                 winner.Intent,
		EntityIDs:              append([]string(nil), winner.EntityIDs...),
		Slots:                  injectNumbers(winner.Slots, values),
		Score:                  score,
		RequiredDisambiguation: winner.RequiredDisambiguation,
		OriginalText:           winner.Text,
		Reranked:               reranked,
		Generated:              winner.Generated,
	}
	if winner.RequiredDisambiguation {
		res.DisambiguationOptions = make(map[string]string, len(winner.DisambiguationOptions))
		for k, v := range winner.DisambiguationOptions {
			res.DisambiguationOptions[k] = v
		}
	}
	learned := !winner.Generated
	c.mu.Unlock()

	if learned {
		c.persister.schedule()
	}
	return res, LookupHit
}

// decide picks the accepted candidate, or nil with the miss outcome.
func (c *Cache) decide(ctx context.Context, query string, candidates []*Entry, matches []vector.Match) (*Entry, float64, bool, string) {
	if c.reranker == nil || !c.reranker.IsEnabled() {
		if matches[0].Score > c.cfg.LegacyThreshold {
			return candidates[0], matches[0].Score, false, LookupHit
		}
		return nil, 0, false, LookupMiss
	}

	texts := make([]string, len(candidates))
	for i, e := range candidates {
		texts[i], _ = NormalizeNumbers(e.Text)
	}
	start := time.Now()
	scores, err := c.reranker.Score(ctx, query, texts)
	c.recorder.ObserveRerank(time.Since(start), err)
	if err != nil {
		c.logger.Warn("rerank failed", "error", err)
		return nil, 0, false, LookupRerankError
	}

	best := candidates[scores.Best]
	prob := scores.BestScore()
	domain := reranker.DomainOf(best.EntityIDs)
	if threshold := c.cfg.Thresholds.For(domain); prob < threshold {
		c.logger.Debug("reranker blocked match",
			"candidate", strutil.Truncate(best.Text, 80),
			"probability", prob,
			"threshold", threshold,
			"domain", domain)
		return nil, 0, true, LookupBlocked
	}
	return best, prob, true, LookupHit
}

// Store remembers a resolved command. Requests that must not be cached are
// skipped silently; the outcome says why.
func (c *Cache) Store(ctx context.Context, req StoreRequest) StoreOutcome {
	outcome := c.store(ctx, req)
	c.recorder.RecordStore(outcome)
	c.logger.Debug("store", "text", strutil.Truncate(req.Text, 80), "intent", req.Intent, "outcome", outcome)
	return outcome
}

func (c *Cache) store(ctx context.Context, req StoreRequest) StoreOutcome {
	switch {
	case !c.cfg.Enabled:
		return StoreSkippedDisabled
	case !req.Verified:
		return StoreSkippedUnverified
	case req.IsDisambiguationResponse:
		return StoreSkippedDisambiguation
	case strutil.WordCount(req.Text) < c.cfg.MinWords:
		return StoreSkippedTooShort
	case isNonRepeatable(req.Intent):
		return StoreSkippedNonRepeatable
	}
	if rule, ok := c.rules.Match(req.Text, req.Intent, req.Slots, req.EntityIDs); ok {
		c.logger.Debug("store excluded by rule", "rule", rule)
		return StoreSkippedExcluded
	}

	c.ensureLoaded(ctx)

	normalized, _ := NormalizeNumbers(req.Text)
	vec, err := c.embed(ctx, normalized)
	if err != nil {
		c.logger.Warn("embedding failed, not storing", "error", err)
		return StoreSkippedNoEmbedding
	}

	c.mu.Lock()
	if dim := c.index.Dim(); dim != 0 && dim != len(vec) {
		if c.hasAnchorsLocked() {
			c.mu.Unlock()
			c.logger.Warn("embedding dimension changed, not storing", "got", len(vec), "want", dim)
			return StoreSkippedDimension
		}
		// Without anchors the index holds only learned entries, which the
		// live model can no longer match.
		c.logger.Warn("dropping learned entries with a different embedding dimension", "count", len(c.entries), "dim", len(vec))
		c.replaceLocked(nil)
	}

	now := c.now()
	if m, ok := c.index.Best(vec); ok && m.Score > c.cfg.DuplicateThreshold {
		dup := c.entries[m.Row]
		dup.Hits++
		dup.LastHit = now
		c.mu.Unlock()
		c.persister.schedule()
		return StoreUpdated
	}

	e := &Entry{
		Text:                   req.Text,
		Embedding:              vec,
		Intent:                 req.Intent,
		EntityIDs:              append([]string(nil), req.EntityIDs...),
		Slots:                  stripVolatile(req.Slots),
		RequiredDisambiguation: req.RequiredDisambiguation,
		Hits:                   1,
		LastHit:                now,
		Verified:               true,
	}
	if req.RequiredDisambiguation && len(req.DisambiguationOptions) > 0 {
		e.DisambiguationOptions = make(map[string]string, len(req.DisambiguationOptions))
		for k, v := range req.DisambiguationOptions {
			e.DisambiguationOptions[k] = v
		}
	}
	if err := c.index.Append(vec); err != nil {
		c.mu.Unlock()
		return StoreSkippedDimension
	}
	c.entries = append(c.entries, e)
	c.evictLocked()
	c.reportSizeLocked()
	c.mu.Unlock()

	c.persister.schedule()
	return StoreInserted
}

func (c *Cache) hasAnchorsLocked() bool {
	for _, e := range c.entries {
		if e.Generated {
			return true
		}
	}
	return false
}

// evictLocked trims learned entries to MaxEntries, keeping the most
// recently hit. Anchors are never evicted.
func (c *Cache) evictLocked() {
	var learned []*Entry
	for _, e := range c.entries {
		if !e.Generated {
			learned = append(learned, e)
		}
	}
	if len(learned) <= c.cfg.MaxEntries {
		return
	}
	// Newest insertions first so ties on lastHit and hits keep them.
	slices.Reverse(learned)
	sort.SliceStable(learned, func(i, j int) bool {
		a, b := learned[i], learned[j]
		if !a.LastHit.Equal(b.LastHit) {
			return a.LastHit.After(b.LastHit)
		}
		return a.Hits > b.Hits
	})
	drop := make(map[*Entry]struct{}, len(learned)-c.cfg.MaxEntries)
	for _, e := range learned[c.cfg.MaxEntries:] {
		drop[e] = struct{}{}
	}
	kept := make([]*Entry, 0, len(c.entries)-len(drop))
	for _, e := range c.entries {
		if _, ok := drop[e]; !ok {
			kept = append(kept, e)
		}
	}
	c.logger.Debug("evicted learned entries", "count", len(drop))
	c.replaceLocked(kept)
}

// Stats returns a snapshot of counters and sizes.
func (c *Cache) Stats() Stats {
	// Mode may resolve the reranker strategy, so it is read unlocked.
	mode := "none"
	if c.reranker != nil {
		mode = c.reranker.Mode()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		RerankerMode:    mode,
		Counters:        c.counters,
		CacheSize:       len(c.entries),
		EmbeddingModel:  c.embedder.Identity(),
		AnchorsReady:    c.ready,
		RerankerEnabled: c.reranker != nil && c.reranker.IsEnabled(),
	}
	for _, e := range c.entries {
		if e.Generated {
			s.AnchorEntries++
		} else {
			s.LearnedEntries++
		}
	}
	s.HitRate = hitRate(c.counters)
	return s
}

// Clear drops every entry and counter and removes the persisted documents.
// Anchors regenerate on the next Startup. Generation still in flight is
// discarded.
func (c *Cache) Clear(ctx context.Context) error {
	c.ensureLoaded(ctx)

	c.mu.Lock()
	c.entries = nil
	c.index.Reset()
	c.counters = Counters{}
	c.epoch++
	c.started = false
	if c.ready {
		c.ready = false
		c.readyCh = make(chan struct{})
	}
	c.reportSizeLocked()
	c.mu.Unlock()

	if err := c.driver.Delete(ctx, anchorKey); err != nil {
		return errors.Wrap(err, "delete anchor document")
	}
	if err := c.writeLearned(ctx); err != nil {
		return errors.Wrap(err, "reset learned document")
	}
	c.logger.Info("cache cleared")
	return nil
}

// Close stops background work and writes pending changes.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		c.wg.Wait()
		c.persister.close()
	})
	return nil
}

func (c *Cache) count(fn func(*Counters)) {
	c.mu.Lock()
	fn(&c.counters)
	c.mu.Unlock()
}

func (c *Cache) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := c.embedder.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = embedding.ErrEmptyEmbedding
	}
	c.recorder.ObserveEmbedding(time.Since(start), err)
	return vec, err
}

func (c *Cache) ensureLoaded(ctx context.Context) {
	c.loadOnce.Do(func() { c.loadLearned(ctx) })
}

// loadLearned reads the learned document. Any failure leaves the cache empty.
func (c *Cache) loadLearned(ctx context.Context) {
	data, err := c.driver.Read(ctx, learnedKey)
	if err != nil {
		if !store.IsNotFound(err) {
			c.logger.Warn("read learned entries failed, starting empty", "error", err)
		}
		return
	}
	var doc learnedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("learned document unreadable, starting empty", "error", err)
		return
	}

	c.checkWriter(learnedKey, doc.Writer)

	var entries []*Entry
	if model := c.embedder.Identity(); doc.EmbeddingModel != model {
		if len(doc.Entries) > 0 {
			c.logger.Info("embedding model changed, dropping learned entries",
				"stored", doc.EmbeddingModel, "current", model, "dropped", len(doc.Entries))
		}
	} else {
		decoded, skipped := decodeRecords(doc.Entries, false)
		var dropped int
		entries, dropped = filterDim(decoded, c.settleDim(ctx, decoded))
		if skipped += dropped; skipped > 0 {
			c.logger.Warn("skipped malformed learned records", "count", skipped)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = doc.Stats
	c.replaceLocked(append(entries, c.entries...))
	c.evictLocked()
	c.logger.Info("learned entries loaded", "count", len(entries))
}

// loadAnchors returns persisted anchors if the document exists and was
// produced by the current embedding model.
func (c *Cache) loadAnchors(ctx context.Context) ([]*Entry, bool) {
	data, err := c.driver.Read(ctx, anchorKey)
	if err != nil {
		if !store.IsNotFound(err) {
			c.logger.Warn("read anchors failed, regenerating", "error", err)
		}
		return nil, false
	}
	var doc anchorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("anchor document unreadable, regenerating", "error", err)
		return nil, false
	}
	c.checkWriter(anchorKey, doc.Writer)
	if model := c.embedder.Identity(); doc.EmbeddingModel != model {
		c.logger.Info("anchors are stale, regenerating", "stored", doc.EmbeddingModel, "current", model)
		return nil, false
	}

	decoded, skipped := decodeRecords(doc.Anchors, true)
	anchors, dropped := filterDim(decoded, c.settleDim(ctx, decoded))
	if skipped += dropped; skipped > 0 {
		c.logger.Warn("skipped malformed anchor records", "count", skipped)
	}
	if len(anchors) == 0 && len(doc.Anchors) > 0 {
		return nil, false
	}
	return anchors, true
}

// dimensionSample is embedded to learn the live vector length when a
// document holds records of more than one length.
const dimensionSample = "Schalte das Licht an"

// settleDim picks the embedding length persisted records must have. Record
// order never decides: mixed lengths are resolved against the live model,
// or by majority when the model does not answer.
func (c *Cache) settleDim(ctx context.Context, entries []*Entry) int {
	dim, mixed := dominantDim(entries)
	if !mixed {
		return dim
	}
	vec, err := c.embed(ctx, dimensionSample)
	if err != nil {
		c.logger.Warn("dimension check failed, using the most common length", "dim", dim, "error", err)
		return dim
	}
	return len(vec)
}

// checkWriter warns about documents written by a newer build. They are
// still read; unknown fields are ignored.
func (c *Cache) checkWriter(key, writer string) {
	if writer != "" && version.IsVersionGreaterThan(writer, version.Version) {
		c.logger.Warn("document written by a newer version", "key", key, "writer", writer, "current", version.Version)
	}
}

func (c *Cache) writeLearned(ctx context.Context) error {
	c.mu.RLock()
	doc := learnedDoc{
		Version:        learnedVersion,
		EmbeddingModel: c.embedder.Identity(),
		Stats:          c.counters,
		Writer:         version.Version,
	}
	if c.reranker != nil {
		doc.RerankerModel = c.reranker.Model()
	}
	var learned []*Entry
	for _, e := range c.entries {
		if !e.Generated {
			learned = append(learned, e)
		}
	}
	raws, err := encodeEntries(learned)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	doc.Entries = raws

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode learned document")
	}
	return c.driver.Write(ctx, learnedKey, data)
}

func (c *Cache) writeAnchors(ctx context.Context) error {
	c.mu.RLock()
	var anchors []*Entry
	for _, e := range c.entries {
		if e.Generated {
			anchors = append(anchors, e)
		}
	}
	raws, err := encodeEntries(anchors)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	data, err := json.Marshal(anchorDoc{
		Version:        anchorVersion,
		EmbeddingModel: c.embedder.Identity(),
		Anchors:        raws,
		Writer:         version.Version,
	})
	if err != nil {
		return errors.Wrap(err, "encode anchor document")
	}
	return c.driver.Write(ctx, anchorKey, data)
}
