// Package lexicon holds the in-memory vocabulary: a hash map per language for exact
// lookup and a patricia trie per language for prefix enumeration.
package lexicon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
)

var errStopVisit = errors.New("stop visit")

// Index is an immutable vocabulary snapshot. It is safe for concurrent reads.
type Index struct {
	languages []string
	entries   map[string]map[string]models.Word
	tries     map[string]*patricia.Trie
	ordered   map[string][]models.Word
	byLength  map[string]map[int][]models.Word
	checksum  string
	size      int
}

// Build indexes words for the given languages in that order. Words in other
// languages are ignored; when languages is empty every language seen is kept,
// sorted. Entries with an empty normalized form are dropped and duplicates keep
// the highest frequency.
func Build(words []models.Word, languages []string) *Index {
	ix := &Index{
		entries:  make(map[string]map[string]models.Word),
		tries:    make(map[string]*patricia.Trie),
		ordered:  make(map[string][]models.Word),
		byLength: make(map[string]map[int][]models.Word),
	}
	allowed := make(map[string]bool, len(languages))
	for _, l := range languages {
		if !allowed[l] {
			allowed[l] = true
			ix.languages = append(ix.languages, l)
		}
	}

	for _, w := range words {
		if len(languages) > 0 && !allowed[w.Language] {
			continue
		}
		if w.Normalized == "" {
			w.Normalized = normalize.Normalize(w.Text)
		}
		if w.Normalized == "" {
			continue
		}
		if w.Text == "" {
			w.Text = w.Normalized
		}
		m := ix.entries[w.Language]
		if m == nil {
			m = make(map[string]models.Word)
			ix.entries[w.Language] = m
			if len(languages) == 0 {
				ix.languages = append(ix.languages, w.Language)
			}
		}
		if prev, ok := m[w.Normalized]; ok && prev.Frequency >= w.Frequency {
			continue
		}
		m[w.Normalized] = w
	}
	if len(languages) == 0 {
		slices.Sort(ix.languages)
	}

	h := sha256.New()
	for _, lang := range ix.languages {
		m := ix.entries[lang]
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		trie := patricia.NewTrie()
		for _, k := range keys {
			trie.Set(patricia.Prefix(k), m[k])
			h.Write([]byte(lang))
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{'\n'})
		}
		ix.tries[lang] = trie

		ordered := make([]models.Word, 0, len(m))
		for _, k := range keys {
			ordered = append(ordered, m[k])
		}
		slices.SortStableFunc(ordered, func(a, b models.Word) int {
			return b.Frequency - a.Frequency
		})
		ix.ordered[lang] = ordered

		buckets := make(map[int][]models.Word)
		for _, w := range ordered {
			n := utf8.RuneCountInString(w.Normalized)
			buckets[n] = append(buckets[n], w)
		}
		ix.byLength[lang] = buckets
		ix.size += len(m)
	}
	ix.checksum = hex.EncodeToString(h.Sum(nil))
	return ix
}

// Languages returns the configured languages in lookup order.
func (ix *Index) Languages() []string {
	return slices.Clone(ix.languages)
}

// Len returns the number of entries across all languages.
func (ix *Index) Len() int {
	return ix.size
}

// LenLanguage returns the number of entries for one language.
func (ix *Index) LenLanguage(lang string) int {
	return len(ix.entries[lang])
}

// Checksum fingerprints the indexed keys. Persisted derived indices store it to
// detect staleness.
func (ix *Index) Checksum() string {
	return ix.checksum
}

// LookupExact returns the entry whose normalized form equals normalized, searching
// langs in configured order. Empty langs means all languages.
func (ix *Index) LookupExact(normalized string, langs []string) (models.Word, bool) {
	for _, lang := range ix.resolve(langs) {
		if w, ok := ix.entries[lang][normalized]; ok {
			return w, true
		}
	}
	return models.Word{}, false
}

// LookupPrefix returns a lazy sequence of entries whose normalized form starts with
// prefix. Entries come in trie order, one language after another. The sequence can
// be ranged over more than once.
func (ix *Index) LookupPrefix(prefix string, langs []string) iter.Seq[models.Word] {
	langs = ix.resolve(langs)
	return func(yield func(models.Word) bool) {
		for _, lang := range langs {
			trie := ix.tries[lang]
			if trie == nil {
				continue
			}
			stopped := false
			_ = trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
				if !yield(item.(models.Word)) {
					stopped = true
					return errStopVisit
				}
				return nil
			})
			if stopped {
				return
			}
		}
	}
}

// Candidates returns every entry for langs ordered by frequency descending, then
// normalized form. The returned slice must not be modified.
func (ix *Index) Candidates(langs []string) []models.Word {
	langs = ix.resolve(langs)
	if len(langs) == 1 {
		return ix.ordered[langs[0]]
	}
	var out []models.Word
	for _, lang := range langs {
		out = append(out, ix.ordered[lang]...)
	}
	return out
}

// CandidatesByLength returns the entries for langs whose normalized form has between
// minRunes and maxRunes runes inclusive. Within a language and length entries keep
// frequency order.
func (ix *Index) CandidatesByLength(langs []string, minRunes, maxRunes int) []models.Word {
	minRunes = max(minRunes, 1)
	var out []models.Word
	for _, lang := range ix.resolve(langs) {
		buckets := ix.byLength[lang]
		for n := minRunes; n <= maxRunes; n++ {
			out = append(out, buckets[n]...)
		}
	}
	return out
}

// Words returns all entries in language then normalized order.
func (ix *Index) Words() []models.Word {
	var out []models.Word
	for _, lang := range ix.languages {
		for w := range ix.LookupPrefix("", []string{lang}) {
			out = append(out, w)
		}
	}
	return out
}

// resolve filters requested languages against the configured set, keeping
// configured order. Unknown codes contribute nothing.
func (ix *Index) resolve(langs []string) []string {
	if len(langs) == 0 {
		return ix.languages
	}
	out := make([]string, 0, len(langs))
	for _, l := range ix.languages {
		if slices.ContainsFunc(langs, func(r string) bool { return strings.EqualFold(r, l) }) {
			out = append(out, l)
		}
	}
	return out
}
