package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBatcherClosed is returned for requests made after Close.
var ErrBatcherClosed = errors.New("embedding batcher closed")

// Batcher coalesces concurrent Embed calls that arrive within a short window into a
// single EmbedBatch call on the wrapped embedder. The batch call is cancelled only
// once every waiting caller has given up.
type Batcher struct {
	next     Embedder
	window   time.Duration
	maxBatch int

	mu      sync.Mutex
	pending []*embedRequest
	timer   *time.Timer
	closed  bool
	batches atomic.Int64
}

type embedRequest struct {
	ctx  context.Context
	text string
	done chan embedResult
}

type embedResult struct {
	vec []float32
	err error
}

// NewBatcher wraps next. A window of zero flushes on the next scheduler turn.
func NewBatcher(next Embedder, window time.Duration, maxBatch int) *Batcher {
	if maxBatch <= 0 {
		maxBatch = 64
	}
	return &Batcher{next: next, window: window, maxBatch: maxBatch}
}

// Embed queues text for the next batch and waits for its embedding or ctx.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &embedRequest{ctx: ctx, text: text, done: make(chan embedResult, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBatcherClosed
	}
	b.pending = append(b.pending, req)
	if len(b.pending) >= b.maxBatch {
		batch := b.takeLocked()
		b.mu.Unlock()
		go b.run(batch)
	} else {
		if b.timer == nil {
			b.timer = time.AfterFunc(b.window, b.flush)
		}
		b.mu.Unlock()
	}

	select {
	case r := <-req.done:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch bypasses batching.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.next.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (b *Batcher) Dimensions() int {
	return b.next.Dimensions()
}

// Model returns the wrapped embedder's model id.
func (b *Batcher) Model() string {
	return b.next.Model()
}

// Batches returns how many batch calls have been made.
func (b *Batcher) Batches() int64 {
	return b.batches.Load()
}

// Close fails pending requests. It does not close the wrapped embedder.
func (b *Batcher) Close() error {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()
	for _, r := range batch {
		r.done <- embedResult{err: ErrBatcherClosed}
	}
	return nil
}

func (b *Batcher) flush() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.run(batch)
}

func (b *Batcher) takeLocked() []*embedRequest {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	return batch
}

func (b *Batcher) run(batch []*embedRequest) {
	if len(batch) == 0 {
		return
	}
	b.batches.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waiting atomic.Int64
	waiting.Store(int64(len(batch)))
	for _, r := range batch {
		stop := context.AfterFunc(r.ctx, func() {
			if waiting.Add(-1) == 0 {
				cancel()
			}
		})
		defer stop()
	}

	// Identical texts share one slot.
	slot := make(map[string]int, len(batch))
	var texts []string
	for _, r := range batch {
		if _, ok := slot[r.text]; !ok {
			slot[r.text] = len(texts)
			texts = append(texts, r.text)
		}
	}

	vecs, err := b.next.EmbedBatch(ctx, texts)
	for _, r := range batch {
		if err != nil {
			r.done <- embedResult{err: err}
			continue
		}
		r.done <- embedResult{vec: vecs[slot[r.text]]}
	}
}
