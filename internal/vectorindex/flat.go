package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is one search candidate. Similarity is the raw inner product of the
// normalised query and stored vectors, nominally in [-1,1].
type Hit struct {
	Handle     Handle
	Similarity float32
}

// FlatIndex is an exhaustive inner-product index. Stored vectors are
// L2-normalised on Add, so the inner product with a normalised query is the
// cosine similarity.
//
// Add must not run while searches are in flight. Build a new index and
// publish it through a Holder instead of mutating a served one.
type FlatIndex struct {
	dim     int
	vectors []float32
	arena   *Arena
}

func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim, arena: NewArena(nil)}
}

func (ix *FlatIndex) Dimension() int {
	return ix.dim
}

func (ix *FlatIndex) Len() int {
	return ix.arena.Len()
}

// Add appends vectors with their records. Each record's Index is set to
// its position in the index.
func (ix *FlatIndex) Add(vectors [][]float32, records []Record) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("add %d vectors with %d records", len(vectors), len(records))
	}
	for i, vec := range vectors {
		if len(vec) != ix.dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(vec), ix.dim)
		}
	}

	start := ix.Len()
	batch := make([]Record, len(records))
	for i := range records {
		batch[i] = records[i]
		batch[i].Index = start + i
		ix.vectors = append(ix.vectors, Normalize(vectors[i])...)
	}
	ix.arena.append(batch)
	return nil
}

// Search returns up to k hits ordered by descending similarity. Ties are
// broken by handle so results are deterministic.
func (ix *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	n := ix.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Handle: Handle(i), Similarity: dot(query, ix.vectors[i*ix.dim:(i+1)*ix.dim])}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].Handle < hits[b].Handle
	})
	if k > n {
		k = n
	}
	return hits[:k], nil
}

func (ix *FlatIndex) Record(h Handle) (Record, error) {
	return ix.arena.Get(h)
}

// Vector returns the stored (normalised) vector for h.
func (ix *FlatIndex) Vector(h Handle) ([]float32, error) {
	if h < 0 || int(h) >= ix.Len() {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidHandle, h, ix.Len())
	}
	return ix.vectors[int(h)*ix.dim : (int(h)+1)*ix.dim], nil
}

// Normalize returns a unit-length copy of v. The zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
