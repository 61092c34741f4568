package reranker

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Strategy names.
const (
	ModeLocal = "local"
	ModeAPI   = "api"
	ModeAuto  = "auto"
)

var (
	// ErrNoCandidates is returned when Score is called with nothing to score.
	ErrNoCandidates = errors.New("no candidates to rerank")
	// ErrDisabled is returned by a disabled service.
	ErrDisabled = errors.New("reranker disabled")
)

// Scores is the verdict over an ordered candidate list.
type Scores struct {
	// Probabilities holds one calibrated probability in [0,1] per candidate,
	// in candidate order.
	Probabilities []float64
	// Best is the index of the highest probability.
	Best int
}

// BestScore returns the probability of the best candidate.
func (s Scores) BestScore() float64 {
	if s.Best < 0 || s.Best >= len(s.Probabilities) {
		return 0
	}
	return s.Probabilities[s.Best]
}

func newScores(probs []float64) Scores {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return Scores{Probabilities: probs, Best: best}
}

// Sigmoid maps a raw cross-encoder logit to a probability.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Scorer is one scoring strategy.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) (Scores, error)
}

// Service is the reranking service interface.
type Service interface {
	// Score rates each candidate against query.
	Score(ctx context.Context, query string, candidates []string) (Scores, error)

	// IsEnabled returns whether the service is enabled.
	IsEnabled() bool

	// Mode returns the strategy in use: local, api, or auto while unresolved.
	Mode() string

	// Model names the cross-encoder.
	Model() string
}

// Config represents reranker service configuration.
type Config struct {
	Mode     string // local, api, auto
	Provider string // addon, siliconflow, tei
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Enabled  bool
	Logger   *slog.Logger
}

type service struct {
	logger  *slog.Logger
	api     Scorer
	local   func() (Scorer, error)
	model   string
	mode    string
	enabled bool

	once     sync.Once
	resolved Scorer
	fallback Scorer
	active   string
}

// NewService creates a new reranker Service. The strategy is resolved on
// first use and kept for the lifetime of the service.
func NewService(cfg *Config) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Mode
	if mode != ModeLocal && mode != ModeAPI {
		mode = ModeAuto
	}
	model := cfg.Model
	return &service{
		logger:  logger.With("component", "reranker"),
		api:     newAPIScorer(cfg),
		local:   func() (Scorer, error) { return loadLocal(model) },
		model:   model,
		mode:    mode,
		enabled: cfg.Enabled,
	}
}

func (s *service) IsEnabled() bool {
	return s.enabled
}

func (s *service) Model() string {
	return s.model
}

func (s *service) Mode() string {
	if !s.enabled {
		return s.mode
	}
	s.resolve()
	return s.active
}

func (s *service) resolve() {
	s.once.Do(func() {
		switch s.mode {
		case ModeAPI:
			s.resolved, s.active = s.api, ModeAPI
		case ModeLocal:
			local, err := s.local()
			if err != nil {
				s.logger.Warn("local reranker unavailable", "model", s.model, "error", err)
				s.resolved, s.active = failing{err}, ModeLocal
				return
			}
			s.resolved, s.active = local, ModeLocal
		default:
			local, err := s.local()
			if err != nil {
				s.logger.Info("local reranker unavailable, using api", "model", s.model, "error", err)
				s.resolved, s.active = s.api, ModeAPI
				return
			}
			s.resolved, s.fallback, s.active = local, s.api, ModeLocal
		}
		s.logger.Info("reranker strategy resolved", "mode", s.active, "model", s.model)
	})
}

func (s *service) Score(ctx context.Context, query string, candidates []string) (Scores, error) {
	if !s.enabled {
		return Scores{}, ErrDisabled
	}
	if len(candidates) == 0 {
		return Scores{}, ErrNoCandidates
	}
	s.resolve()

	scores, err := s.resolved.Score(ctx, query, candidates)
	if err != nil && s.fallback != nil {
		s.logger.Warn("local rerank failed, retrying via api", "error", err)
		scores, err = s.fallback.Score(ctx, query, candidates)
	}
	if err != nil {
		return Scores{}, err
	}
	if len(scores.Probabilities) != len(candidates) {
		return Scores{}, errors.Errorf("reranker returned %d scores for %d candidates", len(scores.Probabilities), len(candidates))
	}
	return scores, nil
}

// failing is the resolved strategy when local mode was forced but no model loads.
type failing struct{ err error }

func (f failing) Score(context.Context, string, []string) (Scores, error) {
	return Scores{}, f.err
}
