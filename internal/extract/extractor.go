// Package extract reads lexicon entries from word lists, spreadsheets and documents.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one candidate vocabulary entry read from a source, before normalization.
type Entry struct {
	Text      string
	Frequency int
}

// Extractor reads entries from lexicon source files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has a reader.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".lst", ".tsv", ".csv", ".xlsx", ".pdf", ".docx":
		return true
	}
	return false
}

// Entries reads the file at path and returns its entries.
// Word lists (.txt, .md, .lst, .tsv, .csv) and spreadsheets (.xlsx) yield one entry per
// line or row with an optional frequency column. Documents (.pdf, .docx) yield each
// distinct word with its occurrence count.
func (e *Extractor) Entries(path string) ([]Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.EntriesBytes(content, strings.ToLower(filepath.Ext(path)))
}

// EntriesBytes reads entries from content based on ext (e.g. ".csv").
func (e *Extractor) EntriesBytes(content []byte, ext string) ([]Entry, error) {
	switch ext {
	case ".pdf":
		text, err := extractPDF(content)
		if err != nil {
			return nil, err
		}
		return countWords(text), nil
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return countWords(text), nil
	case ".xlsx":
		rows, err := extractExcel(content)
		if err != nil {
			return nil, err
		}
		return rowEntries(rows), nil
	case ".csv":
		rows, err := parseCSV(extractPlain(content))
		if err != nil {
			return nil, err
		}
		return rowEntries(rows), nil
	default:
		return parseList(extractPlain(content)), nil
	}
}

// Text returns the plain text of a document, for formats that have one.
func (e *Extractor) Text(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	default:
		return extractPlain(content), nil
	}
}
