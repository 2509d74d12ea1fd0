package search

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/models"
)

const testDims = 64

// synonymEmbedder places a few synonyms close together and gives every other text its
// own orthogonal axis, so only the listed words are semantic neighbours.
type synonymEmbedder struct {
	mu    sync.Mutex
	axes  map[string]int
	delay atomic.Int64 // nanoseconds, applied to query-time calls
	fail  atomic.Bool
	calls atomic.Int64
}

var synonyms = map[string][3]float32{
	"happy":    {1, 0, 0},
	"glad":     {0.9, 0.436, 0},
	"cheerful": {0.8, 0.6, 0},
	"heureux":  {0.95, 0.31, 0},
}

func newSynonymEmbedder() *synonymEmbedder {
	return &synonymEmbedder{axes: make(map[string]int)}
}

func (e *synonymEmbedder) vector(text string) []float32 {
	v := make([]float32, testDims)
	if s, ok := synonyms[text]; ok {
		n := float32(math.Sqrt(float64(s[0]*s[0] + s[1]*s[1] + s[2]*s[2])))
		v[0], v[1], v[2] = s[0]/n, s[1]/n, s[2]/n
		return v
	}
	e.mu.Lock()
	axis, ok := e.axes[text]
	if !ok {
		axis = 3 + len(e.axes)%(testDims-3)
		e.axes[text] = axis
	}
	e.mu.Unlock()
	v[axis] = 1
	return v
}

func (e *synonymEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *synonymEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if d := time.Duration(e.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail.Load() {
		return nil, errEmbedderDown
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *synonymEmbedder) Dimensions() int { return testDims }
func (e *synonymEmbedder) Model() string   { return "synonyms" }
func (e *synonymEmbedder) Close() error    { return nil }

type embedderError string

func (e embedderError) Error() string { return string(e) }

const errEmbedderDown = embedderError("embedder down")

func vocabulary() []models.Word {
	en := []string{
		"ephemeral", "ephemera", "by and large", "happy", "glad", "cheerful",
		"receive", "recipe", "deceive", "table", "apple", "apply", "application",
		"robert", "rupert", "smith",
	}
	words := make([]models.Word, 0, len(en)+2)
	for i, w := range en {
		words = append(words, models.Word{Text: w, Language: "en", Frequency: 100 - i})
	}
	return append(words,
		models.Word{Text: "heureux", Language: "fr", Frequency: 50},
		models.Word{Text: "pomme", Language: "fr", Frequency: 40},
	)
}

// mutableWords is a WordSource tests can change between rebuilds.
type mutableWords struct {
	mu    sync.Mutex
	words []models.Word
	err   error
}

func (m *mutableWords) ListWords(context.Context, []string) ([]models.Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Word(nil), m.words...), m.err
}

func (m *mutableWords) add(w models.Word) {
	m.mu.Lock()
	m.words = append(m.words, w)
	m.mu.Unlock()
}

func testConfig() config.SearchConfig {
	cfg := config.SearchConfig{Languages: []string{"en", "fr"}}
	cfg.Semantic.BatchWindowMs = -1
	config.ApplySearchDefaults(&cfg)
	return cfg
}

// fakeSuggester returns canned suggestions.
type fakeSuggester struct {
	out   []string
	err   error
	calls atomic.Int64
}

func (f *fakeSuggester) Suggest(context.Context, string, []string, int) ([]string, error) {
	f.calls.Add(1)
	return f.out, f.err
}
