// Package cli formats search output for the kotoba command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/search"
	"github.com/hyperjump/kotoba/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one word per line, for piping into other tools.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			if _, err := fmt.Fprintln(w, r.Word); err != nil {
				return err
			}
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms", response.Total, response.Normalized, response.QueryTime)
	if response.CacheHit {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	if len(response.Degraded) > 0 {
		fmt.Fprintf(w, "Degraded: %s\n", strings.Join(response.Degraded, ", "))
	}
	if len(response.Results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	fmt.Fprintln(w)
	for i, r := range response.Results {
		writeOneResult(w, i+1, r)
	}
	if response.Total > len(response.Results) {
		fmt.Fprintf(w, "\n... %d more (use --limit)\n", response.Total-len(response.Results))
	}
}

func writeOneResult(w io.Writer, rank int, r models.SearchResult) {
	word := r.Word
	if r.IsPhrase {
		word += " (phrase)"
	}
	lang := r.Language
	if lang == "" {
		lang = "-"
	}
	fmt.Fprintf(w, "%3d. %-32s %.4f  %-11s %s\n", rank, utils.Truncate(word, 32), r.Score, r.Method, lang)
}

// WriteWords writes lexicon entries, as returned by prefix lookups.
func WriteWords(w io.Writer, words []models.Word, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		if words == nil {
			words = []models.Word{}
		}
		return writeJSON(w, words)
	case OutputCompact:
		for _, word := range words {
			if _, err := fmt.Fprintln(w, word.Text); err != nil {
				return err
			}
		}
		return nil
	default:
		if len(words) == 0 {
			fmt.Fprintln(w, "No matches.")
			return nil
		}
		for _, word := range words {
			fmt.Fprintf(w, "%-32s %s\t%d\n", utils.Truncate(word.Text, 32), word.Language, word.Frequency)
		}
		return nil
	}
}

// Status is what `kotoba status` reports.
type Status struct {
	StoredWords int64            `json:"stored_words"`
	Sources     int              `json:"sources"`
	Languages   map[string]int64 `json:"languages"`
	DiskUsage   map[string]int64 `json:"disk_usage_bytes"`
	DiskTotal   int64            `json:"disk_total_bytes"`
	Engine      *search.Stats    `json:"engine,omitempty"`
}

// WriteStatus writes s as text or JSON; compact is treated as text.
func WriteStatus(w io.Writer, s Status, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Words:   %d in %d sources\n", s.StoredWords, s.Sources)
	for _, lang := range sortedKeys(s.Languages) {
		fmt.Fprintf(w, "  %-6s %d\n", lang, s.Languages[lang])
	}
	if len(s.DiskUsage) > 0 {
		fmt.Fprintln(w, "Disk usage:")
		for _, name := range sortedKeys(s.DiskUsage) {
			fmt.Fprintf(w, "  %-14s %s\n", name, FormatBytes(s.DiskUsage[name]))
		}
		fmt.Fprintf(w, "  %-14s %s\n", "total", FormatBytes(s.DiskTotal))
	}
	if e := s.Engine; e != nil {
		fmt.Fprintf(w, "Snapshot: %s (%d words, built %s)\n", e.Generation, e.Words, e.BuiltAt.Format("2006-01-02 15:04:05"))
		semantic := "available"
		switch {
		case !e.SemanticAvailable:
			semantic = "unavailable"
			if e.SemanticError != "" {
				semantic += ": " + e.SemanticError
			}
		case e.SemanticSuspended:
			semantic = "suspended after repeated timeouts"
		}
		fmt.Fprintf(w, "Semantic: %s (%d vectors)\n", semantic, e.SemanticVectors)
		fmt.Fprintf(w, "Candidate index: %v\n", e.CandidateIndex)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes renders n in binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
