// Package vector provides nearest-neighbour indices over word embeddings.
package vector

import (
	"cmp"
	"context"
	"errors"
)

// ErrDuplicateID is returned by Add when an id is already indexed.
var ErrDuplicateID = errors.New("duplicate vector id")

// VectorIndex holds the vectors of one vocabulary snapshot. It is filled once by Add or
// Load and then only searched; a changed vocabulary gets a new index.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k hits by descending inner product, ties by id. Only ids
	// accepted by keep are returned; a nil keep accepts all.
	Search(ctx context.Context, query []float32, k int, keep Filter) ([]Hit, error)
	Save(path string) error
	Load(path string) error
	// Files lists the files Save writes for path.
	Files(path string) []string
	Size() int
	Dimensions() int
	Close() error
}

// Filter reports whether a hit with the given id may be returned.
type Filter func(id string) bool

// Hit is one neighbour. Score is the inner product, which is cosine similarity for
// normalized vectors.
type Hit struct {
	ID    string
	Score float64
}

// better orders hits by score descending, then id ascending.
func better(a, b Hit) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
