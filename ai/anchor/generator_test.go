package anchor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/voxcache/ai/configloader"
	"github.com/hrygo/voxcache/ai/topology"
)

type fakeEmbedder struct {
	failOn   func(text string) bool
	delay    time.Duration
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    atomic.Int32
}

func (f *fakeEmbedder) Identity() string { return "fake@3" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != nil && f.failOn(text) {
		return nil, errors.New("embedding failed")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type failingProvider struct{}

func (failingProvider) Snapshot(context.Context) (*topology.Snapshot, error) {
	return nil, errors.New("home assistant unreachable")
}

func home() *topology.Static {
	return topology.NewStatic(
		[]topology.Area{{ID: "kueche", Name: "Küche"}, {ID: "bad", Name: "Bad"}},
		[]topology.Entity{
			{ID: "light.kueche_decke", Name: "Deckenlampe", AreaID: "kueche"},
			{ID: "light.bad", Name: "Spiegel", AreaID: "bad"},
			{ID: "cover.kueche", AreaID: "kueche"},
			{ID: "sensor.temperatur", Name: "Temperatur", AreaID: "kueche"},
			{ID: "light.bad_alt", Name: "Alt", AreaID: "bad", Disabled: true},
			{ID: "switch.garage", Name: "Garage"},
		},
	)
}

func texts(t *testing.T, g *Generator) []string {
	t.Helper()
	anchors, err := g.Generate(context.Background())
	require.NoError(t, err)
	out := make([]string, len(anchors))
	for i, a := range anchors {
		out[i] = a.Text
	}
	return out
}

func TestGenerate_AreaAndGlobal(t *testing.T) {
	g := NewGenerator(home(), &fakeEmbedder{}, Config{})
	anchors, err := g.Generate(context.Background())
	require.NoError(t, err)

	// cover/Küche 6 + light/Bad 6 + light/Küche 6, globals light 5 + cover 5 + switch 2.
	require.Len(t, anchors, 30)

	first := anchors[0]
	assert.Equal(t, "Öffne die Rollläden in Küche", first.Text)
	assert.Equal(t, "HassTurnOn", first.Intent)
	assert.Equal(t, map[string]any{"area": "Küche", "domain": "cover"}, first.Slots)
	assert.Empty(t, first.EntityIDs)

	for _, a := range anchors {
		assert.True(t, a.Generated, a.Text)
		assert.True(t, a.Verified, a.Text)
		assert.Len(t, a.Embedding, 3)
		assert.NotContains(t, a.Text, "Sensor", "domains without templates get no anchors")
		assert.NotContains(t, a.Text, "{", "every placeholder is rendered")
	}

	all := strings.Join(texts(t, g), "\n")
	assert.Contains(t, all, "Dimme das Licht in Bad auf 50 Prozent")
	assert.Contains(t, all, "Reduziere die Helligkeit von das Licht in Küche")
	assert.Contains(t, all, "Schalte alle Schalter an")
	assert.NotContains(t, all, "Ventilatoren", "globals only for domains present in the home")
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(home(), &fakeEmbedder{delay: time.Millisecond}, Config{Concurrency: 8})
	assert.Equal(t, texts(t, g), texts(t, g))
}

func TestGenerate_EntityScope(t *testing.T) {
	g := NewGenerator(home(), &fakeEmbedder{}, Config{EntityScope: true})
	anchors, err := g.Generate(context.Background())
	require.NoError(t, err)
	// Two named lights with three templates each; the unnamed cover is skipped.
	require.Len(t, anchors, 36)

	var found bool
	for _, a := range anchors {
		if a.Text == "Schalte das Licht Deckenlampe in Küche an" {
			found = true
			assert.Equal(t, []string{"light.kueche_decke"}, a.EntityIDs)
			assert.Equal(t, "Deckenlampe", a.Slots["name"])
			assert.Equal(t, "light", a.Slots["domain"])
		}
	}
	assert.True(t, found)
}

func TestGenerate_SkipsFailedEmbeddings(t *testing.T) {
	emb := &fakeEmbedder{failOn: func(text string) bool { return strings.HasPrefix(text, "Ist ") }}
	anchors, err := NewGenerator(home(), emb, Config{}).Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, anchors, 27)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := NewGenerator(failingProvider{}, &fakeEmbedder{}, Config{}).Generate(context.Background())
	assert.Error(t, err)

	allFail := &fakeEmbedder{failOn: func(string) bool { return true }}
	_, err = NewGenerator(home(), allFail, Config{}).Generate(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewGenerator(home(), &fakeEmbedder{delay: time.Second}, Config{}).Generate(ctx)
	assert.Error(t, err)
}

func TestGenerate_EmptyHome(t *testing.T) {
	anchors, err := NewGenerator(topology.NewStatic(nil, nil), &fakeEmbedder{}, Config{}).Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestGenerate_ConcurrencyLimit(t *testing.T) {
	emb := &fakeEmbedder{delay: 2 * time.Millisecond}
	_, err := NewGenerator(home(), emb, Config{Concurrency: 2, RatePerSecond: 10000}).Generate(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, emb.maxSeen, 2)
	assert.EqualValues(t, 30, emb.calls.Load())
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	yaml := `
devices:
  light: die Lampe
global:
  light:
    - pattern: Mach alle Lampen aus
      intent: HassTurnOff
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anchors.yaml"), []byte(yaml), 0o600))

	tpl, err := LoadTemplates(configloader.NewLoader(dir), "anchors.yaml")
	require.NoError(t, err)
	assert.Equal(t, "die Lampe", tpl.Devices["light"])
	assert.Len(t, tpl.Global["light"], 1)
	assert.Len(t, tpl.Global["cover"], 5, "domains not in the file keep their defaults")
	assert.Len(t, tpl.Area["light"], 6)

	g := NewGenerator(home(), &fakeEmbedder{}, Config{Templates: tpl})
	all := strings.Join(texts(t, g), "\n")
	assert.Contains(t, all, "Schalte die Lampe in Küche an")
	assert.Contains(t, all, "Mach alle Lampen aus")

	_, err = LoadTemplates(configloader.NewLoader(dir), "missing.yaml")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Schalte das Licht Decke in Bad an",
		render("Schalte {device} {entity_name} in {area} an", "das Licht", "Bad", "Decke"))
	assert.Equal(t, "das fan", (&Templates{}).device("fan"))
}
