package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

var (
	// ErrEmptyQuery is returned when a query is empty after normalization.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidOptions is returned when search options are out of range.
	ErrInvalidOptions = errors.New("invalid search options")
)

// SearchOptions are the per-call knobs of a search. Nil pointers mean "use the configured value".
type SearchOptions struct {
	MinScore       *float64 `json:"min_score,omitempty"`
	EnableSemantic *bool    `json:"enable_semantic,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	// BroadRecall runs fuzzy matching even when an exact hit exists.
	BroadRecall bool `json:"broad_recall,omitempty"`
}

// SearchRequest is the body of a search call over HTTP.
type SearchRequest struct {
	Query string `json:"query"`
	SearchOptions
}

// Validate checks option ranges and normalizes language codes.
func (o *SearchOptions) Validate() error {
	if o.MinScore != nil {
		v := *o.MinScore
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: min_score must be within [0,1], got %v", ErrInvalidOptions, v)
		}
	}
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max_results must not be negative, got %d", ErrInvalidOptions, o.MaxResults)
	}
	if len(o.Languages) > 0 {
		langs := make([]string, 0, len(o.Languages))
		for _, l := range o.Languages {
			l = strings.ToLower(strings.TrimSpace(l))
			if l == "" || slices.Contains(langs, l) {
				continue
			}
			langs = append(langs, l)
		}
		if len(langs) == 0 {
			return fmt.Errorf("%w: languages must contain at least one code", ErrInvalidOptions)
		}
		o.Languages = langs
	}
	return nil
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
