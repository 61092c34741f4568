// Package anchor generates the pre-seeded cache entries that let common
// commands hit the cache before anything has been learned.
package anchor

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/voxcache/ai/cache"
	"github.com/hrygo/voxcache/ai/core/embedding"
	"github.com/hrygo/voxcache/ai/internal/strutil"
	"github.com/hrygo/voxcache/ai/topology"
)

// minWords matches the cache's minimum utterance length.
const minWords = 3

// Config controls generation.
type Config struct {
	Templates *Templates
	Logger    *slog.Logger
	// Concurrency bounds in-flight embedding calls.
	Concurrency int
	// RatePerSecond limits embedding calls; 0 disables the limit.
	RatePerSecond float64
	// EntityScope adds one anchor per named entity and template. Off by
	// default since it grows with the number of entities.
	EntityScope bool
}

// Generator renders templates against the home topology and embeds them.
// It implements cache.Bootstrapper.
type Generator struct {
	provider topology.Provider
	embedder embedding.Service
	logger   *slog.Logger
	cfg      Config
}

var _ cache.Bootstrapper = (*Generator)(nil)

// NewGenerator creates a Generator.
func NewGenerator(provider topology.Provider, embedder embedding.Service, cfg Config) *Generator {
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "anchor_generator"),
	}
}

// phrase is one anchor waiting to be embedded.
type phrase struct {
	slots   map[string]any
	text    string
	intent  string
	targets []string
}

// Generate produces anchors in a deterministic order. Phrases that fail to
// embed are skipped; it fails only if the topology cannot be read or no
// phrase could be embedded.
func (g *Generator) Generate(ctx context.Context) ([]*cache.Entry, error) {
	snap, err := g.provider.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load topology")
	}

	phrases := g.phrases(snap)
	if len(phrases) == 0 {
		g.logger.Info("topology has no controllable entities, no anchors generated")
		return nil, nil
	}
	g.logger.Info("generating anchors", "phrases", len(phrases), "entity_scope", g.cfg.EntityScope)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if g.cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.RatePerSecond), 1)
	}

	results := make([]*cache.Entry, len(phrases))
	var failed atomic.Int32
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, p := range phrases {
		eg.Go(func() error {
			if err := limiter.Wait(egCtx); err != nil {
				return err
			}
			vec, err := g.embedder.Embed(egCtx, p.text)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				failed.Add(1)
				g.logger.Debug("anchor embedding failed", "text", strutil.Truncate(p.text, 60), "error", err)
				return nil
			}
			results[i] = &cache.Entry{
				Text:      p.text,
				Intent:    p.intent,
				EntityIDs: p.targets,
				Slots:     p.slots,
				Embedding: vec,
				Verified:  true,
				Generated: true,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "embed anchors")
	}

	anchors := make([]*cache.Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			anchors = append(anchors, e)
		}
	}
	if len(anchors) == 0 {
		return nil, errors.Errorf("none of %d anchor phrases could be embedded", len(phrases))
	}
	if n := failed.Load(); n > 0 {
		g.logger.Warn("some anchors were skipped", "failed", n, "generated", len(anchors))
	}
	return anchors, nil
}

// phrases renders every template that applies to the snapshot.
func (g *Generator) phrases(snap *topology.Snapshot) []phrase {
	t := g.cfg.Templates
	var out []phrase
	add := func(text, intent string, slots map[string]any, targets []string) {
		text, _ = cache.NormalizeNumbers(text)
		if strutil.WordCount(text) < minWords {
			return
		}
		out = append(out, phrase{text: text, intent: intent, slots: slots, targets: targets})
	}

	domains := map[string]struct{}{}
	for _, e := range snap.Entities {
		if !e.Disabled && e.Domain() != "" {
			domains[e.Domain()] = struct{}{}
		}
	}

	type areaKey struct{ domain, area, intent string }
	seen := map[areaKey]struct{}{}
	for _, pl := range snap.Placements() {
		device := t.device(pl.Domain)
		for _, tpl := range t.Area[pl.Domain] {
			k := areaKey{pl.Domain, pl.Area.ID, tpl.Intent + "|" + slotSignature(tpl.Slots)}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			add(render(tpl.Pattern, device, pl.Area.Name, ""), tpl.Intent,
				withSlots(tpl.Slots, "area", pl.Area.Name, "domain", pl.Domain), nil)
		}

		if !g.cfg.EntityScope {
			continue
		}
		for _, e := range pl.Entities {
			if e.Name == "" {
				continue
			}
			for _, tpl := range t.Entity[pl.Domain] {
				add(render(tpl.Pattern, device, pl.Area.Name, e.Name), tpl.Intent,
					withSlots(tpl.Slots, "area", pl.Area.Name, "domain", pl.Domain, "name", e.Name),
					[]string{e.ID})
			}
		}
	}

	globals := make([]string, 0, len(t.Global))
	for domain := range t.Global {
		if _, ok := domains[domain]; ok {
			globals = append(globals, domain)
		}
	}
	sort.Strings(globals)
	for _, domain := range globals {
		for _, tpl := range t.Global[domain] {
			add(tpl.Pattern, tpl.Intent, withSlots(tpl.Slots, "domain", domain), nil)
		}
	}
	return out
}

// withSlots copies extra and sets the given key/value pairs.
func withSlots(extra map[string]any, kv ...string) map[string]any {
	out := make(map[string]any, len(extra)+len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// slotSignature distinguishes templates sharing an intent (step_up vs step_down).
func slotSignature(slots map[string]any) string {
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sig := ""
	for _, k := range keys {
		if s, ok := slots[k].(string); ok {
			sig += k + "=" + s + ";"
		} else {
			sig += k + ";"
		}
	}
	return sig
}
