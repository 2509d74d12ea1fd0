package vector

import (
	"errors"
	"fmt"
)

// ErrFAISSUnavailable is returned when creating a FAISS index in a build without FAISS.
var ErrFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install libfaiss_c")

// IndexType names a VectorIndex implementation.
type IndexType string

const (
	// IndexTypeMemory scans every vector; fine for dictionary-sized vocabularies.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS needs libfaiss_c and the faiss build tag.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an empty index of the given type; "" means memory.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, fmt.Errorf("unknown vector index type %q (want memory or faiss)", indexType)
}

// IsFAISSAvailable reports whether this binary was built with FAISS support.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
