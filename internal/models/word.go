// Package models defines core data structures for vocabulary entries, search options, and search results.
package models

import "time"

// Word is a vocabulary entry. Normalized is the lookup key within Language.
type Word struct {
	Text       string    `json:"text" db:"text"`
	Normalized string    `json:"normalized" db:"normalized"`
	Language   string    `json:"language" db:"language"`
	Frequency  int       `json:"frequency" db:"frequency"`
	Source     string    `json:"source,omitempty" db:"source"`
	CreatedAt  time.Time `json:"created_at,omitempty" db:"created_at"`
}

// Source records a lexicon file that has been imported.
type Source struct {
	ID        string    `json:"id" db:"id"`
	Path      string    `json:"path" db:"path"`
	Language  string    `json:"language" db:"language"`
	ModTime   int64     `json:"mtime" db:"mtime"`
	Size      int64     `json:"size" db:"size"`
	Words     int       `json:"words" db:"words"`
	IndexedAt time.Time `json:"indexed_at" db:"indexed_at"`
}
