package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the cache server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol, or Gemini)
	EmbeddingProvider   string // openai, ollama, siliconflow, gemini
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingProject    string // gemini only
	EmbeddingLocation   string // gemini only
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration
	EmbeddingMemoSize   int

	// Reranker configuration
	RerankMode             string // local, api, auto
	RerankProvider         string // addon, siliconflow, tei
	RerankModel            string
	RerankAPIKey           string
	RerankBaseURL          string
	RerankThreshold        float64
	RerankDomainThresholds map[string]float64
	RerankTimeout          time.Duration
	RerankEnabled          bool

	// Cache behaviour
	CacheMaxEntries         int
	CacheTopK               int
	CacheMinWords           int
	CacheVectorThreshold    float64
	CacheDuplicateThreshold float64
	CacheLegacyThreshold    float64
	CacheExcludeRules       []string
	CacheEnabled            bool

	// Anchor bootstrap
	TopologyFile        string
	HomeAssistantURL    string
	HomeAssistantToken  string
	AnchorTemplatesFile string
	AnchorConcurrency   int
	AnchorRatePerSecond float64
	AnchorEntityScope   bool

	// Other configurations
	Mode      string
	Addr      string
	Data      string
	Driver    string // file, sqlite, postgres, redis, gcs
	DSN       string
	Bucket    string
	KeyPrefix string
	Version   string
	LogLevel  string
	LogFormat string // json, text, console
	Port      int
}

// Provider default configurations for embeddings.
// Used when VOXCACHE_EMBEDDING_BASE_URL or VOXCACHE_EMBEDDING_MODEL is not set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"gemini": {
		BaseURL: "",
		Model:   "gemini-embedding-001",
	},
}

var rerankProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"addon": {
		BaseURL: "http://localhost:9876",
		Model:   "BAAI/bge-reranker-base",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-reranker-v2-m3",
	},
	"tei": {
		BaseURL: "http://localhost:8080",
		Model:   "BAAI/bge-reranker-base",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LogLevel = getEnvOrDefault("VOXCACHE_LOG_LEVEL", "info")
	p.LogFormat = getEnvOrDefault("VOXCACHE_LOG_FORMAT", "json")
	p.Bucket = getEnvOrDefault("VOXCACHE_STORAGE_BUCKET", p.Bucket)
	p.KeyPrefix = getEnvOrDefault("VOXCACHE_STORAGE_PREFIX", p.KeyPrefix)

	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("VOXCACHE_EMBEDDING_PROVIDER", "ollama")
	p.EmbeddingModel = getEnvOrDefault("VOXCACHE_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("VOXCACHE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("VOXCACHE_EMBEDDING_BASE_URL", "")
	p.EmbeddingProject = getEnvOrDefault("VOXCACHE_EMBEDDING_PROJECT", "")
	p.EmbeddingLocation = getEnvOrDefault("VOXCACHE_EMBEDDING_LOCATION", "us-central1")
	p.EmbeddingDimensions = getEnvOrDefaultInt("VOXCACHE_EMBEDDING_DIMENSIONS", 0)
	p.EmbeddingTimeout = time.Duration(getEnvOrDefaultInt("VOXCACHE_EMBEDDING_TIMEOUT_SECONDS", 10)) * time.Second
	p.EmbeddingMemoSize = getEnvOrDefaultInt("VOXCACHE_EMBEDDING_MEMO_SIZE", 512)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("Unknown embedding provider, using default: ollama", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "ollama"
	}
	defaults := embeddingProviderDefaults[p.EmbeddingProvider]
	if p.EmbeddingBaseURL == "" {
		p.EmbeddingBaseURL = defaults.BaseURL
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = defaults.Model
	}

	// Reranker configuration
	p.RerankEnabled = getEnvOrDefaultBool("VOXCACHE_RERANK_ENABLED", true)
	p.RerankMode = getEnvOrDefault("VOXCACHE_RERANK_MODE", "auto")
	p.RerankProvider = getEnvOrDefault("VOXCACHE_RERANK_PROVIDER", "addon")
	p.RerankModel = getEnvOrDefault("VOXCACHE_RERANK_MODEL", "")
	p.RerankAPIKey = getEnvOrDefault("VOXCACHE_RERANK_API_KEY", "")
	p.RerankBaseURL = getEnvOrDefault("VOXCACHE_RERANK_BASE_URL", "")
	p.RerankThreshold = getEnvOrDefaultFloat("VOXCACHE_RERANK_THRESHOLD", 0.70)
	p.RerankDomainThresholds = ParseDomainThresholds(getEnvOrDefault("VOXCACHE_RERANK_DOMAIN_THRESHOLDS", ""))
	p.RerankTimeout = time.Duration(getEnvOrDefaultInt("VOXCACHE_RERANK_TIMEOUT_SECONDS", 10)) * time.Second

	if _, ok := rerankProviderDefaults[p.RerankProvider]; !ok {
		slog.Warn("Unknown rerank provider, using default: addon", "provider", p.RerankProvider)
		p.RerankProvider = "addon"
	}
	rdefaults := rerankProviderDefaults[p.RerankProvider]
	if p.RerankBaseURL == "" {
		p.RerankBaseURL = rdefaults.BaseURL
	}
	if p.RerankModel == "" {
		p.RerankModel = rdefaults.Model
	}

	// Cache behaviour
	p.CacheEnabled = getEnvOrDefaultBool("VOXCACHE_CACHE_ENABLED", true)
	p.CacheMaxEntries = getEnvOrDefaultInt("VOXCACHE_CACHE_MAX_ENTRIES", 200)
	p.CacheTopK = getEnvOrDefaultInt("VOXCACHE_CACHE_TOP_K", 5)
	p.CacheMinWords = getEnvOrDefaultInt("VOXCACHE_CACHE_MIN_WORDS", 3)
	p.CacheVectorThreshold = getEnvOrDefaultFloat("VOXCACHE_CACHE_VECTOR_THRESHOLD", 0.4)
	p.CacheDuplicateThreshold = getEnvOrDefaultFloat("VOXCACHE_CACHE_DUPLICATE_THRESHOLD", 0.95)
	p.CacheLegacyThreshold = getEnvOrDefaultFloat("VOXCACHE_CACHE_LEGACY_THRESHOLD", 0.85)
	p.CacheExcludeRules = splitRules(getEnvOrDefault("VOXCACHE_CACHE_EXCLUDE_RULES", ""))

	// Anchor bootstrap
	p.TopologyFile = getEnvOrDefault("VOXCACHE_TOPOLOGY_FILE", "")
	p.HomeAssistantURL = getEnvOrDefault("VOXCACHE_HA_URL", "")
	p.HomeAssistantToken = getEnvOrDefault("VOXCACHE_HA_TOKEN", "")
	p.AnchorTemplatesFile = getEnvOrDefault("VOXCACHE_ANCHOR_TEMPLATES_FILE", "")
	p.AnchorConcurrency = getEnvOrDefaultInt("VOXCACHE_ANCHOR_CONCURRENCY", 4)
	p.AnchorRatePerSecond = getEnvOrDefaultFloat("VOXCACHE_ANCHOR_RATE", 20)
	p.AnchorEntityScope = getEnvOrDefaultBool("VOXCACHE_ANCHOR_ENTITY_SCOPE", false)
}

// ParseDomainThresholds parses "light=0.73,climate=0.69" into a map.
// Malformed pairs are skipped.
func ParseDomainThresholds(raw string) map[string]float64 {
	out := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		domain, value, ok := strings.Cut(pair, "=")
		if !ok {
			slog.Warn("ignoring malformed domain threshold", "pair", pair)
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f < 0 || f > 1 {
			slog.Warn("ignoring malformed domain threshold", "pair", pair)
			continue
		}
		out[strings.TrimSpace(domain)] = f
	}
	return out
}

// Exclusion rules are CEL expressions separated by ";".
func splitRules(raw string) []string {
	var rules []string
	for _, r := range strings.Split(raw, ";") {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	return rules
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "voxcache")
		} else {
			p.Data = "/var/opt/voxcache"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "file":
		p.Driver = "file"
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("voxcache_%s.db", p.Mode))
		}
	case "postgres", "redis":
		if p.DSN == "" {
			return errors.Errorf("dsn required for %s driver", p.Driver)
		}
	case "gcs":
		if p.Bucket == "" {
			return errors.New("bucket required for gcs driver")
		}
	default:
		return errors.Errorf("unknown storage driver %q", p.Driver)
	}

	if p.RerankMode != "local" && p.RerankMode != "api" && p.RerankMode != "auto" {
		slog.Warn("Unknown rerank mode, using default: auto", "mode", p.RerankMode)
		p.RerankMode = "auto"
	}
	for name, v := range map[string]float64{
		"rerank threshold":    p.RerankThreshold,
		"vector threshold":    p.CacheVectorThreshold,
		"duplicate threshold": p.CacheDuplicateThreshold,
		"legacy threshold":    p.CacheLegacyThreshold,
	} {
		if v < 0 || v > 1 {
			return errors.Errorf("%s %v out of range [0,1]", name, v)
		}
	}
	if p.CacheMaxEntries <= 0 {
		return errors.Errorf("max entries must be positive, got %d", p.CacheMaxEntries)
	}

	return nil
}
