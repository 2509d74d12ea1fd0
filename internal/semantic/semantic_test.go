package semantic

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/models"
)

// tableEmbedder returns fixed unit vectors per text.
type tableEmbedder struct {
	vecs  map[string][]float32
	delay time.Duration
	err   error
	texts atomic.Int64
}

func unit(v ...float32) []float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(s))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func newTableEmbedder() *tableEmbedder {
	return &tableEmbedder{vecs: map[string][]float32{
		"happy":    unit(1, 0, 0),
		"glad":     unit(0.9, 0.436, 0),
		"cheerful": unit(0.8, 0.6, 0),
		"table":    unit(0, 0, 1),
		"heureux":  unit(0.95, 0.31, 0),
		"joyful":   unit(0.85, 0.5, 0.1),
	}}
}

func (e *tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.delay > 0 {
		time.Sleep(e.delay) // deliberately ignores ctx
	}
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *tableEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vecs[t]
		if !ok {
			v = unit(0, 1, 1)
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int { return 3 }
func (e *tableEmbedder) Model() string   { return "table" }
func (e *tableEmbedder) Close() error    { return nil }

func testLexicon(extra ...models.Word) *lexicon.Index {
	words := []models.Word{
		{Text: "happy", Language: "en", Frequency: 10},
		{Text: "glad", Language: "en", Frequency: 8},
		{Text: "cheerful", Language: "en", Frequency: 5},
		{Text: "table", Language: "en", Frequency: 7},
		{Text: "heureux", Language: "fr", Frequency: 3},
	}
	return lexicon.Build(append(words, extra...), []string{"en", "fr"})
}

func buildIndex(t *testing.T, emb *tableEmbedder, breaker *Breaker, timeout time.Duration) *Index {
	t.Helper()
	lex := testLexicon()
	vecs, err := NewBuilder(emb, BuildConfig{IndexType: "memory", BatchSize: 2, Workers: 2}, nil).Build(context.Background(), lex)
	require.NoError(t, err)
	return NewIndex(emb, vecs, lex, breaker, Options{Timeout: timeout, SimilarityThreshold: 0.7, TopK: 20}, nil)
}

func TestIndex_Search(t *testing.T) {
	ix := buildIndex(t, newTableEmbedder(), nil, time.Second)
	assert.Equal(t, 5, ix.Size())

	out := ix.Search(context.Background(), "happy", nil)
	require.Equal(t, OK, out.Status)
	var words []string
	for _, r := range out.Results {
		words = append(words, r.Word)
		assert.Equal(t, models.MethodSemantic, r.Method)
		assert.LessOrEqual(t, r.Score, MaxScore)
		assert.GreaterOrEqual(t, r.Score, 0.7)
	}
	assert.Equal(t, []string{"heureux", "glad", "cheerful"}, words, "query itself and dissimilar words excluded")

	out = ix.Search(context.Background(), "happy", []string{"en"})
	require.Equal(t, OK, out.Status)
	for _, r := range out.Results {
		assert.Equal(t, "en", r.Language)
	}
	assert.Len(t, out.Results, 2)
}

func TestIndex_SearchTimeout(t *testing.T) {
	emb := newTableEmbedder()
	ix := buildIndex(t, emb, nil, 20*time.Millisecond)
	emb.delay = 300 * time.Millisecond

	start := time.Now()
	out := ix.Search(context.Background(), "happy", nil)
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, out.Status)
	assert.Empty(t, out.Results)
	assert.True(t, errors.Is(out.Err, context.DeadlineExceeded))
	assert.Less(t, elapsed, 200*time.Millisecond, "returns at the deadline even when the embedder ignores ctx")
	assert.Equal(t, "timeout", out.Reason())
}

func TestIndex_SearchUnavailable(t *testing.T) {
	emb := newTableEmbedder()
	ix := buildIndex(t, emb, nil, time.Second)
	emb.err = errors.New("model crashed")

	out := ix.Search(context.Background(), "happy", nil)
	assert.Equal(t, Unavailable, out.Status)
	assert.ErrorContains(t, out.Err, "model crashed")

	var nilIndex *Index
	out = nilIndex.Search(context.Background(), "happy", nil)
	assert.Equal(t, Unavailable, out.Status)
	assert.ErrorIs(t, out.Err, ErrNotBuilt)
}

func TestIndex_circuitBreaker(t *testing.T) {
	emb := newTableEmbedder()
	breaker := NewBreaker(2, time.Hour)
	ix := buildIndex(t, emb, breaker, 10*time.Millisecond)
	emb.delay = 100 * time.Millisecond

	assert.Equal(t, TimedOut, ix.Search(context.Background(), "happy", nil).Status)
	assert.Equal(t, TimedOut, ix.Search(context.Background(), "happy", nil).Status)

	out := ix.Search(context.Background(), "happy", nil)
	assert.Equal(t, Unavailable, out.Status)
	assert.ErrorIs(t, out.Err, ErrCircuitOpen)
	assert.Equal(t, "circuit-open", out.Reason())
}

func TestBreaker(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(3, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Timeout()
	b.Timeout()
	b.Success()
	b.Timeout()
	b.Timeout()
	assert.True(t, b.Allow(), "success resets the run")

	b.Timeout()
	assert.False(t, b.Allow())
	assert.True(t, b.Open())

	now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())
	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "closes after cooldown")

	never := NewBreaker(0, time.Hour)
	for range 10 {
		never.Timeout()
	}
	assert.True(t, never.Allow())
}

func TestBuilder_persistAndWarmStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	cfg := BuildConfig{IndexType: "memory", Path: path, BatchSize: 2, Workers: 2}

	emb := newTableEmbedder()
	lex := testLexicon()
	idx, err := NewBuilder(emb, cfg, nil).Build(context.Background(), lex)
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Size())
	assert.EqualValues(t, 5, emb.texts.Load())
	assert.FileExists(t, path)

	warm := newTableEmbedder()
	idx, err = NewBuilder(warm, cfg, nil).Build(context.Background(), lex)
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Size())
	assert.Zero(t, warm.texts.Load(), "warm start embeds nothing")
}

func TestBuilder_staleAndCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	cfg := BuildConfig{IndexType: "memory", Path: path, BatchSize: 4, Workers: 1}

	_, err := NewBuilder(newTableEmbedder(), cfg, nil).Build(context.Background(), testLexicon())
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	emb := newTableEmbedder()
	idx, err := NewBuilder(emb, cfg, zap.New(core)).Build(context.Background(), testLexicon(models.Word{Text: "joyful", Language: "en"}))
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Size(), "lexicon change triggers rebuild")
	assert.EqualValues(t, 6, emb.texts.Load())
	assert.Equal(t, 1, logs.FilterMessage("Rebuilding vector index").Len())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	emb = newTableEmbedder()
	idx, err = NewBuilder(emb, cfg, nil).Build(context.Background(), testLexicon(models.Word{Text: "joyful", Language: "en"}))
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Size(), "corrupt file triggers rebuild")
	assert.EqualValues(t, 6, emb.texts.Load())
}

func TestBuilder_embedError(t *testing.T) {
	emb := newTableEmbedder()
	emb.err = errors.New("boom")
	_, err := NewBuilder(emb, BuildConfig{IndexType: "memory"}, nil).Build(context.Background(), testLexicon())
	assert.ErrorContains(t, err, "boom")
}

func TestBuilder_skipsShortEntries(t *testing.T) {
	idx, err := NewBuilder(newTableEmbedder(), BuildConfig{IndexType: "memory", MinLength: 5}, nil).Build(context.Background(), testLexicon())
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Size(), "glad is shorter than 5 runes")
}
