// Package storage defines the persistence interface for lexicon words and their sources.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotoba/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines lexicon persistence operations.
type Storage interface {
	// Word operations
	UpsertWords(ctx context.Context, words []models.Word) error
	ListWords(ctx context.Context, languages []string) ([]models.Word, error)
	DeleteWordsBySource(ctx context.Context, sourceID string) (int64, error)
	CountWords(ctx context.Context) (int64, error)
	Languages(ctx context.Context) (map[string]int64, error)

	// Source operations
	UpsertSource(ctx context.Context, src *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	DeleteSource(ctx context.Context, id string) error

	Close() error
}
