// Package vector holds the in-memory embedding matrix used for cosine
// similarity search.
package vector

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// normEpsilon keeps degenerate (all-zero) vectors from dividing by zero.
const normEpsilon = 1e-10

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Match is one search hit: the row position and its cosine similarity.
type Match struct {
	Row   int
	Score float64
}

// Index stores L2-normalized rows in a dense row-major matrix.
// It is not safe for concurrent mutation; callers serialize writes.
type Index struct {
	data []float64
	dim  int
	rows int
}

// NewIndex creates an index. A dim of 0 adopts the dimension of the first row.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns the row dimension, 0 if not yet known.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of rows.
func (ix *Index) Len() int { return ix.rows }

// Append adds one row.
func (ix *Index) Append(v []float32) error {
	if len(v) == 0 {
		return errors.Wrap(ErrDimensionMismatch, "empty vector")
	}
	if ix.dim == 0 {
		ix.dim = len(v)
	}
	if len(v) != ix.dim {
		return errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(v), ix.dim)
	}
	ix.data = append(ix.data, normalize(v)...)
	ix.rows++
	return nil
}

// Rebuild replaces every row. On error the index is left unchanged.
func (ix *Index) Rebuild(vs [][]float32) error {
	dim := ix.dim
	if dim == 0 && len(vs) > 0 {
		dim = len(vs[0])
	}
	data := make([]float64, 0, len(vs)*dim)
	for i, v := range vs {
		if len(v) != dim || dim == 0 {
			return errors.Wrapf(ErrDimensionMismatch, "row %d: got %d, want %d", i, len(v), dim)
		}
		data = append(data, normalize(v)...)
	}
	ix.data = data
	ix.rows = len(vs)
	ix.dim = dim
	return nil
}

// Reset drops all rows and forgets the dimension.
func (ix *Index) Reset() {
	ix.data = nil
	ix.rows = 0
	ix.dim = 0
}

// scores returns the cosine similarity of q against every row, or nil when
// the index is empty or q has the wrong dimension.
func (ix *Index) scores(q []float32) []float64 {
	if ix.rows == 0 || len(q) != ix.dim {
		return nil
	}
	m := mat.NewDense(ix.rows, ix.dim, ix.data)
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(ix.dim, normalize(q)))
	return out.RawVector().Data
}

// TopK returns at most k rows scoring at least threshold, best first.
// An empty index yields an empty result.
func (ix *Index) TopK(q []float32, threshold float64, k int) []Match {
	scores := ix.scores(q)
	if len(scores) == 0 || k <= 0 {
		return nil
	}
	matches := make([]Match, 0, k)
	for row, s := range scores {
		if s >= threshold {
			matches = append(matches, Match{Row: row, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Best returns the single most similar row.
func (ix *Index) Best(q []float32) (Match, bool) {
	scores := ix.scores(q)
	if len(scores) == 0 {
		return Match{}, false
	}
	best := floats.MaxIdx(scores)
	return Match{Row: best, Score: scores[best]}, true
}

// Cosine computes the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(normalize(a), normalize(b))
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	n := floats.Norm(out, 2) + normEpsilon
	floats.Scale(1/n, out)
	return out
}
