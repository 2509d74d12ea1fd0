// Package fileid derives stable lexicon source IDs from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "src:"

// SourceID returns a stable ID for the source file at path. Equivalent spellings of the
// same absolute path yield the same ID; relative paths are resolved against the
// working directory.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:12])
}

// IsSourceID reports whether id was produced by SourceID.
func IsSourceID(id string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+24
}
