package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const manifestVersion = 1

var (
	// ErrCorrupt means the persisted index cannot be trusted and must be rebuilt.
	ErrCorrupt = errors.New("vector index corrupt")
	// ErrStale means the persisted index was built from a different lexicon or model.
	ErrStale = errors.New("vector index stale")
	// ErrNotPersisted means no persisted index exists yet.
	ErrNotPersisted = errors.New("vector index not persisted")
)

// Manifest describes a persisted index: what it was built from and checksums of its files.
type Manifest struct {
	Version         int               `json:"version"`
	IndexType       string            `json:"index_type"`
	Dimensions      int               `json:"dimensions"`
	Count           int               `json:"count"`
	Model           string            `json:"model"`
	LexiconChecksum string            `json:"lexicon_checksum"`
	Files           map[string]string `json:"files"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ManifestPath is where the manifest for an index at path lives.
func ManifestPath(path string) string {
	return path + ".manifest.json"
}

// SaveWithManifest saves idx to path and writes a manifest recording meta and file checksums.
// The manifest is written last so a crash mid-save leaves no valid manifest.
func SaveWithManifest(idx VectorIndex, path string, meta Manifest) error {
	if path == "" {
		return nil
	}
	_ = os.Remove(ManifestPath(path))
	if err := idx.Save(path); err != nil {
		return err
	}
	meta.Version = manifestVersion
	meta.Dimensions = idx.Dimensions()
	meta.Count = idx.Size()
	meta.Files = make(map[string]string)
	for _, f := range idx.Files(path) {
		sum, err := fileChecksum(f)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", f, err)
		}
		meta.Files[filepath.Base(f)] = sum
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := ManifestPath(path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, ManifestPath(path)); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// LoadVerified loads idx from path after checking its manifest against expect
// (dimensions, model, lexicon checksum) and the stored file checksums.
// Returns ErrNotPersisted, ErrStale or ErrCorrupt (wrapped) when the index cannot be used.
func LoadVerified(idx VectorIndex, path string, expect Manifest) (*Manifest, error) {
	if path == "" {
		return nil, ErrNotPersisted
	}
	data, err := os.ReadFile(ManifestPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPersisted
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrCorrupt, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrStale, m.Version)
	}
	if m.Dimensions != idx.Dimensions() {
		return nil, fmt.Errorf("%w: dimensions %d, want %d", ErrStale, m.Dimensions, idx.Dimensions())
	}
	if expect.Model != "" && m.Model != expect.Model {
		return nil, fmt.Errorf("%w: model %q, want %q", ErrStale, m.Model, expect.Model)
	}
	if expect.LexiconChecksum != "" && m.LexiconChecksum != expect.LexiconChecksum {
		return nil, fmt.Errorf("%w: lexicon changed", ErrStale)
	}
	for _, f := range idx.Files(path) {
		want, ok := m.Files[filepath.Base(f)]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing from manifest", ErrCorrupt, filepath.Base(f))
		}
		got, err := fileChecksum(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if got != want {
			return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorrupt, filepath.Base(f))
		}
	}
	if err := idx.Load(path); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if idx.Size() != m.Count {
		return nil, fmt.Errorf("%w: loaded %d vectors, manifest says %d", ErrCorrupt, idx.Size(), m.Count)
	}
	return &m, nil
}

// Remove deletes the persisted index files and manifest for path.
func Remove(idx VectorIndex, path string) {
	_ = os.Remove(ManifestPath(path))
	for _, f := range idx.Files(path) {
		_ = os.Remove(f)
	}
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
