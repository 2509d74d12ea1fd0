package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotoba/internal/vector"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c, err := NewEmbeddingCache(100)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	c.Wait()
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestEmbeddingCache_holdsCapacity(t *testing.T) {
	const capacity, n = 100, 90
	c, err := NewEmbeddingCache(capacity)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	for i := range n {
		c.Set(fmt.Sprintf("word-%d", i), []float32{float32(i)})
		c.Wait()
	}
	retained := 0
	for i := range n {
		if v, ok := c.Get(fmt.Sprintf("word-%d", i)); ok && v[0] == float32(i) {
			retained++
		}
	}
	if retained != n {
		t.Errorf("capacity %d: retained %d of %d entries", capacity, retained, n)
	}
}

// countingEmbedder records how many texts reach the model.
type countingEmbedder struct {
	*MockEmbedder
	texts atomic.Int64
	calls atomic.Int64
	delay time.Duration
	err   error
}

func newCounting(dims int) *countingEmbedder {
	return &countingEmbedder{MockEmbedder: NewMockEmbedder(dims)}
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func TestCachedEmbedder_memoryTier(t *testing.T) {
	base := newCounting(16)
	c, err := NewCachedEmbedder(base, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	first, err := c.Embed(ctx, "apple")
	if err != nil {
		t.Fatal(err)
	}
	c.Flush()
	second, err := c.Embed(ctx, "apple")
	if err != nil {
		t.Fatal(err)
	}
	if base.texts.Load() != 1 {
		t.Errorf("model saw %d texts, want 1", base.texts.Load())
	}
	if vector.InnerProduct(first, second) < 0.999 {
		t.Error("cached vector differs")
	}
}

func TestCachedEmbedder_batchSendsOnlyMisses(t *testing.T) {
	base := newCounting(16)
	c, _ := NewCachedEmbedder(base, 100, nil)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.EmbedBatch(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	c.Flush()
	out, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[2] == nil {
		t.Fatalf("unexpected output %v", out)
	}
	if base.texts.Load() != 3 {
		t.Errorf("model saw %d texts, want 3", base.texts.Load())
	}
}

func TestCachedEmbedder_diskTier(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	base := newCounting(8)
	c, _ := NewCachedEmbedder(base, 100, store)
	if _, err := c.Embed(ctx, "persisted"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = OpenBadgerStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	base2 := newCounting(8)
	c2, _ := NewCachedEmbedder(base2, 100, store)
	defer c2.Close()
	v, err := c2.Embed(ctx, "persisted")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 8 {
		t.Errorf("len = %d", len(v))
	}
	if base2.texts.Load() != 0 {
		t.Error("warm start should not call the model")
	}
}

func TestCachedEmbedder_error(t *testing.T) {
	base := newCounting(8)
	base.err = errors.New("model down")
	c, _ := NewCachedEmbedder(base, 100, nil)
	defer c.Close()
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error")
	}
}

func TestBatcher_coalesces(t *testing.T) {
	base := newCounting(8)
	b := NewBatcher(base, 20*time.Millisecond, 100)
	defer b.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := "word"
			if i%2 == 0 {
				text = "other"
			}
			v, err := b.Embed(context.Background(), text)
			if err == nil && len(v) != 8 {
				err = errors.New("wrong dimension")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if base.calls.Load() >= 10 {
		t.Errorf("expected coalesced calls, got %d", base.calls.Load())
	}
	if base.texts.Load() > 2*base.calls.Load() {
		t.Errorf("identical texts should share a slot: %d texts over %d calls", base.texts.Load(), base.calls.Load())
	}
}

func TestBatcher_flushesAtMaxBatch(t *testing.T) {
	base := newCounting(4)
	b := NewBatcher(base, time.Hour, 1)
	defer b.Close()
	if _, err := b.Embed(context.Background(), "solo"); err != nil {
		t.Fatal(err)
	}
	if b.Batches() != 1 {
		t.Errorf("Batches = %d", b.Batches())
	}
}

func TestBatcher_callerDeadline(t *testing.T) {
	base := newCounting(4)
	base.delay = time.Second
	b := NewBatcher(base, time.Millisecond, 10)
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := b.Embed(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("caller should not wait for the slow model")
	}
}

func TestBatcher_closed(t *testing.T) {
	b := NewBatcher(newCounting(4), time.Millisecond, 10)
	_ = b.Close()
	if _, err := b.Embed(context.Background(), "x"); !errors.Is(err, ErrBatcherClosed) {
		t.Errorf("expected ErrBatcherClosed, got %v", err)
	}
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "ephemeral")
	b, _ := e.Embed(ctx, "ephemeral")
	c, _ := e.Embed(ctx, "ephemera")
	d, _ := e.Embed(ctx, "zygote")
	if vector.InnerProduct(a, b) < 0.999 {
		t.Error("embedding should be deterministic")
	}
	if vector.InnerProduct(a, c) <= vector.InnerProduct(a, d) {
		t.Error("shared trigrams should raise similarity")
	}
	if n := vector.L2Norm(a); n < 0.999 || n > 1.001 {
		t.Errorf("expected unit norm, got %v", n)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.Embed(cancelled, "x"); err == nil {
		t.Error("expected error on cancelled context")
	}
}
