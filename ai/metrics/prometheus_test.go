package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrygo/voxcache/ai/cache"
)

func scrape(t *testing.T, e *PrometheusExporter) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	e.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestNewPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())
	if exporter == nil {
		t.Fatal("expected non-nil exporter")
	}
	if exporter.GetRegistry() == nil {
		t.Error("expected non-nil registry")
	}
}

func TestPrometheusExporterLookups(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.RecordLookup(cache.LookupHit, 20*time.Millisecond)
	exporter.RecordLookup(cache.LookupHit, 30*time.Millisecond)
	exporter.RecordLookup(cache.LookupBlocked, 40*time.Millisecond)

	body := scrape(t, exporter)
	if !strings.Contains(body, `voxcache_cache_lookups_total{outcome="hit"} 2`) {
		t.Error("expected two hits in output")
	}
	if !strings.Contains(body, `voxcache_cache_lookups_total{outcome="reranker_block"} 1`) {
		t.Error("expected one reranker block in output")
	}
	if !strings.Contains(body, "voxcache_cache_lookup_latency_seconds_count 3") {
		t.Error("expected three latency observations")
	}
}

func TestPrometheusExporterStoreAndCalls(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.RecordStore(cache.StoreInserted)
	exporter.RecordStore(cache.StoreSkippedTooShort)
	exporter.ObserveEmbedding(10*time.Millisecond, nil)
	exporter.ObserveEmbedding(10*time.Millisecond, errors.New("timeout"))
	exporter.ObserveRerank(5*time.Millisecond, nil)

	body := scrape(t, exporter)
	if !strings.Contains(body, `voxcache_cache_stores_total{outcome="inserted"} 1`) {
		t.Error("expected inserted store in output")
	}
	if !strings.Contains(body, `voxcache_cache_stores_total{outcome="skipped_too_short"} 1`) {
		t.Error("expected skipped store in output")
	}
	if !strings.Contains(body, `voxcache_cache_embedding_latency_seconds_count{status="error"} 1`) {
		t.Error("expected failed embedding in output")
	}
	if !strings.Contains(body, `voxcache_cache_rerank_latency_seconds_count{status="success"} 1`) {
		t.Error("expected rerank call in output")
	}
}

func TestPrometheusExporterEntriesAndBootstrap(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.SetEntries(12, 30)
	exporter.RecordBootstrap(3*time.Second, 30, nil)
	exporter.RecordBootstrap(time.Second, 0, errors.New("no entities"))

	body := scrape(t, exporter)
	if !strings.Contains(body, `voxcache_cache_entries{kind="learned"} 12`) {
		t.Error("expected learned gauge in output")
	}
	if !strings.Contains(body, `voxcache_cache_entries{kind="anchor"} 30`) {
		t.Error("expected anchor gauge in output")
	}
	// a failed run keeps the last good count
	if !strings.Contains(body, "voxcache_cache_anchors_generated 30") {
		t.Error("expected anchors_generated to stay at 30")
	}
	if !strings.Contains(body, `voxcache_cache_anchor_generation_runs_total{status="error"} 1`) {
		t.Error("expected failed generation run in output")
	}
}

func TestPrometheusExporterCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewPrometheusExporter(Config{Registry: reg, ProcessCollectors: true})
	exporter.RecordLookup(cache.LookupMiss, time.Millisecond)

	if exporter.GetRegistry() != reg {
		t.Error("expected the supplied registry")
	}
	if body := scrape(t, exporter); !strings.Contains(body, "go_goroutines") {
		t.Error("expected runtime collectors in output")
	}
}

func BenchmarkPrometheusExporter(b *testing.B) {
	exporter := NewPrometheusExporter(DefaultConfig())

	b.Run("RecordLookup", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			exporter.RecordLookup(cache.LookupHit, 20*time.Millisecond)
		}
	})

	b.Run("ObserveEmbedding", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			exporter.ObserveEmbedding(10*time.Millisecond, nil)
		}
	})
}
