//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import "context"

// FAISSIndex stands in for the FAISS index in builds without the faiss tag.
type FAISSIndex struct{}

// NewFAISSIndex always fails with ErrFAISSUnavailable.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return ErrFAISSUnavailable
}

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int, keep Filter) ([]Hit, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Save(path string) error { return ErrFAISSUnavailable }
func (f *FAISSIndex) Load(path string) error { return ErrFAISSUnavailable }
func (f *FAISSIndex) Size() int              { return 0 }
func (f *FAISSIndex) Dimensions() int        { return 0 }
func (f *FAISSIndex) Close() error           { return nil }
func (f *FAISSIndex) Type() string           { return string(IndexTypeFAISS) }

func (f *FAISSIndex) Files(path string) []string {
	return []string{path + ".faiss", path + ".ids"}
}
