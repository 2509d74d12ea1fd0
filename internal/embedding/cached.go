package embedding

import (
	"context"
)

// CachedEmbedder serves embeddings from memory, then disk, then the wrapped embedder,
// filling the faster tiers on the way back. Disk errors fall through to the model.
type CachedEmbedder struct {
	next   Embedder
	memory *EmbeddingCache
	disk   *BadgerStore
}

// NewCachedEmbedder wraps next. disk may be nil.
func NewCachedEmbedder(next Embedder, memoryEntries int64, disk *BadgerStore) (*CachedEmbedder, error) {
	mem, err := NewEmbeddingCache(memoryEntries)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, memory: mem, disk: disk}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.next.Model() + "\x00" + text
}

// Embed returns the embedding for text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch resolves cached texts and sends only the misses to the wrapped embedder.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		k := c.key(t)
		if v, ok := c.memory.Get(k); ok {
			out[i] = v
			continue
		}
		if c.disk != nil {
			if v, ok, err := c.disk.Get(k); err == nil && ok && len(v) == c.next.Dimensions() {
				out[i] = v
				c.memory.Set(k, v)
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(missTexts))
	for j, i := range missIdx {
		out[i] = vecs[j]
		keys[j] = c.key(missTexts[j])
		c.memory.Set(keys[j], vecs[j])
	}
	if c.disk != nil {
		// Best effort: the model result is already in hand.
		_ = c.disk.PutBatch(keys, vecs)
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Model returns the wrapped embedder's model id.
func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

// Flush waits for buffered memory-tier writes.
func (c *CachedEmbedder) Flush() {
	c.memory.Wait()
}

// Close closes every tier and the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.memory.Close()
	var err error
	if c.disk != nil {
		err = c.disk.Close()
	}
	if cerr := c.next.Close(); err == nil {
		err = cerr
	}
	return err
}
