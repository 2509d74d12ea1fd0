// Package semantic finds vocabulary entries whose embeddings are near the query's,
// under a hard deadline.
package semantic

import (
	"errors"

	"github.com/hyperjump/kotoba/internal/models"
)

// Status tags how a semantic search ended.
type Status int

const (
	// OK means results (possibly empty) were produced in time.
	OK Status = iota
	// TimedOut means the deadline expired first.
	TimedOut
	// Unavailable means the stage could not run: no index, embedding or search
	// failure, or the circuit breaker is open.
	Unavailable
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case TimedOut:
		return "timeout"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is reported while semantic search is suspended after repeated timeouts.
	ErrCircuitOpen = errors.New("semantic search suspended after repeated timeouts")
	// ErrNotBuilt is reported when no semantic index exists.
	ErrNotBuilt = errors.New("semantic index not built")
)

// Outcome is the tagged result of one semantic search.
type Outcome struct {
	Status  Status
	Results []models.SearchResult
	Err     error
}

// Reason returns a short label for logs and degradation lists, e.g. "timeout".
func (o Outcome) Reason() string {
	if o.Status == Unavailable && errors.Is(o.Err, ErrCircuitOpen) {
		return "circuit-open"
	}
	return o.Status.String()
}
