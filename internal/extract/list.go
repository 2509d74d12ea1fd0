package extract

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hyperjump/kotoba/internal/normalize"
)

// parseList reads one entry per line. A trailing tab-separated integer is the frequency.
// Blank lines, '#' comments and markdown headings are skipped; list bullets are stripped.
func parseList(text string) []Entry {
	var out []Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, bullet := range []string{"- ", "* ", "+ "} {
			line = strings.TrimPrefix(line, bullet)
		}
		fields := strings.Split(line, "\t")
		out = appendEntry(out, fields)
	}
	return out
}

func parseCSV(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return rows, nil
}

func rowEntries(rows [][]string) []Entry {
	var out []Entry
	for _, row := range rows {
		out = appendEntry(out, row)
	}
	return out
}

// appendEntry takes the first field as the entry and the second, when numeric, as its
// frequency. A "word,frequency" style header row is dropped.
func appendEntry(out []Entry, fields []string) []Entry {
	if len(fields) == 0 {
		return out
	}
	text := strings.TrimSpace(fields[0])
	if text == "" {
		return out
	}
	e := Entry{Text: text}
	if len(fields) > 1 {
		f := strings.TrimSpace(fields[1])
		if n, err := strconv.Atoi(f); err == nil && n >= 0 {
			e.Frequency = n
		} else if isHeader(text, f) {
			return out
		}
	}
	return append(out, e)
}

func isHeader(first, second string) bool {
	switch strings.ToLower(first) {
	case "word", "term", "entry", "text", "phrase":
	default:
		return false
	}
	switch strings.ToLower(second) {
	case "frequency", "freq", "count", "weight":
		return true
	}
	return false
}

// countWords tokenizes prose and counts each word. Tokens without a letter are skipped.
func countWords(text string) []Entry {
	counts := make(map[string]int)
	var order []string
	for _, tok := range normalize.Tokens(text) {
		if !strings.ContainsFunc(tok, unicode.IsLetter) {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	out := make([]Entry, 0, len(order))
	for _, tok := range order {
		out = append(out, Entry{Text: tok, Frequency: counts[tok]})
	}
	return out
}
