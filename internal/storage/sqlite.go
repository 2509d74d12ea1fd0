package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotoba/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS words (
		language TEXT NOT NULL,
		normalized TEXT NOT NULL,
		text TEXT NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (language, normalized)
	);

	CREATE INDEX IF NOT EXISTS idx_words_source ON words(source);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		language TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL,
		words INTEGER NOT NULL DEFAULT 0,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertWords inserts words in a transaction. An existing (language, normalized) entry
// keeps its text unless the new entry is more frequent; frequency is the maximum of both.
func (s *SQLiteStorage) UpsertWords(ctx context.Context, words []models.Word) error {
	if len(words) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO words (language, normalized, text, frequency, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(language, normalized) DO UPDATE SET
		   text = CASE WHEN excluded.frequency > words.frequency THEN excluded.text ELSE words.text END,
		   source = CASE WHEN excluded.frequency > words.frequency THEN excluded.source ELSE words.source END,
		   frequency = MAX(words.frequency, excluded.frequency)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, w := range words {
		if w.Normalized == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, w.Language, w.Normalized, w.Text, w.Frequency, w.Source, now); err != nil {
			return fmt.Errorf("upsert %q: %w", w.Normalized, err)
		}
	}
	return tx.Commit()
}

// ListWords returns words in the given languages (all when empty), ordered by
// language then normalized form.
func (s *SQLiteStorage) ListWords(ctx context.Context, languages []string) ([]models.Word, error) {
	query := `SELECT language, normalized, text, frequency, source, created_at FROM words`
	args := make([]any, 0, len(languages))
	if len(languages) > 0 {
		query += ` WHERE language IN (?` + strings.Repeat(`, ?`, len(languages)-1) + `)`
		for _, l := range languages {
			args = append(args, l)
		}
	}
	query += ` ORDER BY language, normalized`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []models.Word
	for rows.Next() {
		var w models.Word
		if err := rows.Scan(&w.Language, &w.Normalized, &w.Text, &w.Frequency, &w.Source, &w.CreatedAt); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// DeleteWordsBySource removes the words whose best entry came from sourceID.
func (s *SQLiteStorage) DeleteWordsBySource(ctx context.Context, sourceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM words WHERE source = ?`, sourceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountWords returns the total number of words.
func (s *SQLiteStorage) CountWords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM words`).Scan(&count)
	return count, err
}

// Languages returns word counts per language.
func (s *SQLiteStorage) Languages(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT language, COUNT(*) FROM words GROUP BY language`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			lang string
			n    int64
		)
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		out[lang] = n
	}
	return out, rows.Err()
}

// UpsertSource inserts or replaces a source record.
func (s *SQLiteStorage) UpsertSource(ctx context.Context, src *models.Source) error {
	if src.IndexedAt.IsZero() {
		src.IndexedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, path, language, mtime, size, words, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   path = excluded.path, language = excluded.language, mtime = excluded.mtime,
		   size = excluded.size, words = excluded.words, indexed_at = excluded.indexed_at`,
		src.ID, src.Path, src.Language, src.ModTime, src.Size, src.Words, src.IndexedAt,
	)
	return err
}

// GetSource returns a source by ID, or ErrNotFound.
func (s *SQLiteStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, language, mtime, size, words, indexed_at FROM sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Path, &src.Language, &src.ModTime, &src.Size, &src.Words, &src.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSources returns all sources ordered by path.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, language, mtime, size, words, indexed_at FROM sources ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Path, &src.Language, &src.ModTime, &src.Size, &src.Words, &src.IndexedAt); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// DeleteSource removes a source record. Its words are left to DeleteWordsBySource.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
