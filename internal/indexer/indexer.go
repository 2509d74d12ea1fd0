// Package indexer imports lexicon source files into storage.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/extract"
	"github.com/hyperjump/kotoba/internal/fileid"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
	"github.com/hyperjump/kotoba/internal/storage"
)

// Stats summarizes an import run.
type Stats struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
	Words   int `json:"words"`
}

// Changed reports whether the run modified storage.
func (s Stats) Changed() bool {
	return s.Files > 0 || s.Removed > 0
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.Skipped += o.Skipped
	s.Removed += o.Removed
	s.Words += o.Words
}

// Importer reads lexicon source files and stores their words.
type Importer struct {
	storage         storage.Storage
	extractor       *extract.Extractor
	languages       []string
	defaultLanguage string
	extensions      []string
	logger          *zap.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithLogger sets a logger for debug output (file imported, source removed, etc.).
func WithLogger(l *zap.Logger) ImporterOption {
	return func(im *Importer) { im.logger = l }
}

// WithLanguages sets the languages a source path may name and the language used when
// it names none.
func WithLanguages(languages []string, defaultLanguage string) ImporterOption {
	return func(im *Importer) {
		im.languages = languages
		if defaultLanguage != "" {
			im.defaultLanguage = defaultLanguage
		}
	}
}

// WithExtensions restricts directory imports to the given extensions.
func WithExtensions(exts []string) ImporterOption {
	return func(im *Importer) { im.extensions = exts }
}

// NewImporter creates an importer writing to store.
func NewImporter(store storage.Storage, extractor *extract.Extractor, opts ...ImporterOption) *Importer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	im := &Importer{
		storage:         store,
		extractor:       extractor,
		defaultLanguage: "en",
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportPath imports a file, or every matching file under a directory. Sources that
// were imported from under a directory but no longer exist are removed.
func (im *Importer) ImportPath(ctx context.Context, path string) (Stats, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Stats{}, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return Stats{}, fmt.Errorf("stat: %w", err)
	}
	if !info.IsDir() {
		return im.ImportFile(ctx, absPath)
	}

	var total Stats
	seen := make(map[string]bool)
	err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !im.Accepts(p) {
			return nil
		}
		// Resolve symlinks so only regular files are imported.
		fi, statErr := os.Stat(p)
		if statErr != nil || !fi.Mode().IsRegular() {
			return nil
		}
		seen[fileid.SourceID(p)] = true
		st, err := im.ImportFile(ctx, p)
		if err != nil {
			return err
		}
		total.add(st)
		return nil
	})
	if err != nil {
		return total, err
	}

	sources, err := im.storage.ListSources(ctx)
	if err != nil {
		return total, fmt.Errorf("list sources: %w", err)
	}
	prefix := absPath + string(filepath.Separator)
	for _, src := range sources {
		if seen[src.ID] || !strings.HasPrefix(src.Path, prefix) {
			continue
		}
		if err := im.RemoveFile(ctx, src.Path); err != nil {
			return total, err
		}
		total.Removed++
	}
	return total, nil
}

// ImportAll imports every path in turn and sums the stats.
func (im *Importer) ImportAll(ctx context.Context, paths []string) (Stats, error) {
	var total Stats
	for _, p := range paths {
		st, err := im.ImportPath(ctx, p)
		total.add(st)
		if err != nil {
			return total, fmt.Errorf("import %s: %w", p, err)
		}
	}
	return total, nil
}

// Apply imports updated files and removes removed ones, as reported by a watcher.
// A file that fails to import is logged and skipped so one bad file does not block
// the rest of the batch.
func (im *Importer) Apply(ctx context.Context, updated, removed []string) (Stats, error) {
	var total Stats
	for _, p := range removed {
		if err := im.RemoveFile(ctx, p); err != nil {
			return total, err
		}
		total.Removed++
	}
	for _, p := range updated {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		st, err := im.ImportFile(ctx, p)
		if err != nil {
			im.logger.Warn("Failed to import source", zap.String("path", p), zap.Error(err))
			continue
		}
		total.add(st)
	}
	return total, nil
}

// ImportFile imports one source file. The file is skipped when it was already imported
// with the same mtime and size.
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Stats{}, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return Stats{}, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Stats{}, fmt.Errorf("not a regular file: %s", absPath)
	}

	id := fileid.SourceID(absPath)
	lang := im.LanguageFor(absPath)
	prev, err := im.storage.GetSource(ctx, id)
	switch {
	case err == nil:
		if prev.ModTime == info.ModTime().UnixNano() && prev.Size == info.Size() && prev.Language == lang {
			im.logger.Debug("importer skipping unchanged file", zap.String("path", absPath))
			return Stats{Skipped: 1}, nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return Stats{}, fmt.Errorf("get source: %w", err)
	}

	entries, err := im.extractor.Entries(absPath)
	if err != nil {
		return Stats{}, fmt.Errorf("extract %s: %w", absPath, err)
	}
	words := toWords(entries, lang, id)

	if _, err := im.storage.DeleteWordsBySource(ctx, id); err != nil {
		return Stats{}, fmt.Errorf("delete previous words: %w", err)
	}
	if err := im.storage.UpsertWords(ctx, words); err != nil {
		return Stats{}, fmt.Errorf("store words: %w", err)
	}
	src := &models.Source{
		ID:        id,
		Path:      absPath,
		Language:  lang,
		ModTime:   info.ModTime().UnixNano(),
		Size:      info.Size(),
		Words:     len(words),
		IndexedAt: time.Now().UTC(),
	}
	if err := im.storage.UpsertSource(ctx, src); err != nil {
		return Stats{}, fmt.Errorf("store source: %w", err)
	}
	im.logger.Debug("importer file imported",
		zap.String("path", absPath), zap.String("language", lang), zap.Int("words", len(words)))
	return Stats{Files: 1, Words: len(words)}, nil
}

// RemoveFile removes a source and the words it contributed.
func (im *Importer) RemoveFile(ctx context.Context, path string) error {
	id := fileid.SourceID(path)
	n, err := im.storage.DeleteWordsBySource(ctx, id)
	if err != nil {
		return fmt.Errorf("delete words: %w", err)
	}
	if err := im.storage.DeleteSource(ctx, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	im.logger.Debug("importer source removed", zap.String("path", path), zap.Int64("words", n))
	return nil
}

// Accepts reports whether path has an importable extension.
func (im *Importer) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !extract.Supported(ext) {
		return false
	}
	return len(im.extensions) == 0 || extensionAllowed(ext, im.extensions)
}

// LanguageFor picks the language of a source from its path: a file name part
// ("words.fr.txt", "fr_words.txt") or a parent directory ("fr/words.txt") naming a
// configured language, else the default language.
func (im *Importer) LanguageFor(path string) string {
	if len(im.languages) == 0 {
		return im.defaultLanguage
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' '
	})
	parts = append(parts, strings.ToLower(filepath.Base(filepath.Dir(path))))
	for _, p := range parts {
		for _, lang := range im.languages {
			if strings.EqualFold(p, lang) {
				return lang
			}
		}
	}
	return im.defaultLanguage
}

func toWords(entries []extract.Entry, lang, sourceID string) []models.Word {
	byKey := make(map[string]int, len(entries))
	words := make([]models.Word, 0, len(entries))
	for _, e := range entries {
		n := normalize.Normalize(e.Text)
		if n == "" {
			continue
		}
		if i, ok := byKey[n]; ok {
			if e.Frequency > words[i].Frequency {
				words[i].Text, words[i].Frequency = strings.TrimSpace(e.Text), e.Frequency
			}
			continue
		}
		byKey[n] = len(words)
		words = append(words, models.Word{
			Text:       strings.TrimSpace(e.Text),
			Normalized: n,
			Language:   lang,
			Frequency:  e.Frequency,
			Source:     sourceID,
		})
	}
	return words
}

func extensionAllowed(ext string, allowed []string) bool {
	ext = strings.TrimPrefix(ext, ".")
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(strings.TrimPrefix(a, "."), ext)
	})
}
