package reranker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrLocalModelUnavailable is returned when no in-process model is
// registered for the configured name.
var ErrLocalModelUnavailable = errors.New("local reranker model unavailable")

// CrossEncoder scores (query, candidate) pairs in-process and returns raw logits.
type CrossEncoder interface {
	Predict(ctx context.Context, pairs [][2]string) ([]float64, error)
}

// LocalLoader builds a CrossEncoder for a model name.
type LocalLoader func(model string) (CrossEncoder, error)

var (
	localMu      sync.RWMutex
	localLoaders = map[string]LocalLoader{}
)

// RegisterLocalModel makes an in-process cross-encoder available to the
// local strategy. Binaries linking an inference runtime call this from init.
func RegisterLocalModel(model string, loader LocalLoader) {
	localMu.Lock()
	defer localMu.Unlock()
	localLoaders[model] = loader
}

// HasLocalModel reports whether an in-process model is registered under model.
func HasLocalModel(model string) bool {
	localMu.RLock()
	defer localMu.RUnlock()
	_, ok := localLoaders[model]
	return ok
}

func unregisterLocalModel(model string) {
	localMu.Lock()
	defer localMu.Unlock()
	delete(localLoaders, model)
}

func loadLocal(model string) (Scorer, error) {
	localMu.RLock()
	loader, ok := localLoaders[model]
	localMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrLocalModelUnavailable, "model %q", model)
	}
	enc, err := loader(model)
	if err != nil {
		return nil, errors.Wrapf(ErrLocalModelUnavailable, "load %q: %v", model, err)
	}
	return &localScorer{encoder: enc}, nil
}

type localScorer struct {
	encoder CrossEncoder
}

func (l *localScorer) Score(ctx context.Context, query string, candidates []string) (Scores, error) {
	pairs := make([][2]string, len(candidates))
	for i, c := range candidates {
		pairs[i] = [2]string{query, c}
	}
	logits, err := l.encoder.Predict(ctx, pairs)
	if err != nil {
		return Scores{}, errors.Wrap(err, "local predict")
	}
	probs := make([]float64, len(logits))
	for i, x := range logits {
		probs[i] = Sigmoid(x)
	}
	return newScores(probs), nil
}
