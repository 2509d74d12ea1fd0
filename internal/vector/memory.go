package vector

import (
	"bufio"
	"container/heap"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

const cancelCheckEvery = 1024

// fileMagic starts every vector file; the byte after it is the format version.
var fileMagic = [4]byte{'K', 'T', 'B', 'V'}

const fileVersion = 1

// MemoryIndex is a brute-force index. Vectors live in one row-major slice so a scan
// walks contiguous memory.
type MemoryIndex struct {
	mu   sync.RWMutex
	dims int
	ids  []string
	pos  map[string]int
	rows []float32
}

// NewMemoryIndex creates an empty index for vectors of the given width.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{dims: dimensions, pos: make(map[string]int)}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector width.
func (m *MemoryIndex) Dimensions() int {
	return m.dims
}

// Add appends vectors. Nothing is added when any vector has the wrong width or any id
// is already present.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkBatch(m.dims, m.pos, ids, vectors); err != nil {
		return err
	}
	m.rows = slices.Grow(m.rows, len(vectors)*m.dims)
	for i, id := range ids {
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.rows = append(m.rows, vectors[i]...)
	}
	return nil
}

// checkBatch validates widths and ids of a batch against the already indexed pos.
func checkBatch(dims int, pos map[string]int, ids []string, vectors [][]float32) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != dims {
			return fmt.Errorf("vector %q has %d dimensions, index expects %d", id, len(vectors[i]), dims)
		}
		if _, ok := pos[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Search scans every row and keeps the best k in a bounded heap. It stops early with
// ctx.Err() when ctx is cancelled.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, keep Filter) ([]Hit, error) {
	if len(query) != m.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), m.dims)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	top := make(worstFirst, 0, min(k, len(m.ids)))
	for i, id := range m.ids {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if keep != nil && !keep(id) {
			continue
		}
		h := Hit{ID: id, Score: InnerProduct(query, m.rows[i*m.dims:(i+1)*m.dims])}
		switch {
		case len(top) < k:
			heap.Push(&top, h)
		case better(h, top[0]) < 0:
			top[0] = h
			heap.Fix(&top, 0)
		}
	}
	hits := []Hit(top)
	slices.SortFunc(hits, better)
	return hits, nil
}

// worstFirst is a heap whose root is the weakest kept hit.
type worstFirst []Hit

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[i], h[j]) > 0 }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *worstFirst) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// Files returns the single file Save writes.
func (m *MemoryIndex) Files(path string) []string {
	return []string{path}
}

// Save writes the index to path, creating the directory if needed. Layout: magic, version
// byte, dimensions and count (uint32), the ids, then all rows as little-endian float32.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeFile(path, func(w *bufio.Writer) error {
		if err := writeHeader(w, m.dims, len(m.ids)); err != nil {
			return err
		}
		if err := writeIDs(w, m.ids); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, m.rows)
	})
}

// Load replaces the contents with the index stored at path. A missing file leaves the
// index unchanged. Malformed files return an error wrapping ErrCorrupt and also leave it
// unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	n, err := readHeader(r, m.dims)
	if err != nil {
		return err
	}
	ids, pos, err := readIDs(r, n)
	if err != nil {
		return err
	}
	rows := make([]float32, n*m.dims)
	if err := binary.Read(r, binary.LittleEndian, rows); err != nil {
		return fmt.Errorf("%w: read vectors: %v", ErrCorrupt, err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after %d vectors", ErrCorrupt, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.pos, m.rows = ids, pos, rows
	return nil
}

// Size returns the number of vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// writeFile creates path and its directory, runs fill on a buffered writer and syncs.
func writeFile(path string, fill func(w *bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}

func writeHeader(w io.Writer, dims, n int) error {
	if _, err := w.Write(append(fileMagic[:], fileVersion)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, [2]uint32{uint32(dims), uint32(n)})
}

// readHeader checks magic, version and width, and returns the vector count.
func readHeader(r io.Reader, dims int) (int, error) {
	var magic [5]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if [4]byte(magic[:4]) != fileMagic {
		return 0, fmt.Errorf("%w: not a vector file", ErrCorrupt)
	}
	if magic[4] != fileVersion {
		return 0, fmt.Errorf("%w: file version %d", ErrStale, magic[4])
	}
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if int(hdr[0]) != dims {
		return 0, fmt.Errorf("%w: file has %d dimensions, index expects %d", ErrStale, hdr[0], dims)
	}
	if hdr[1] > maxVectors {
		return 0, fmt.Errorf("%w: count %d", ErrCorrupt, hdr[1])
	}
	return int(hdr[1]), nil
}

// writeIDs writes each id as a uvarint length and its bytes.
func writeIDs(w *bufio.Writer, ids []string) error {
	var buf [binary.MaxVarintLen64]byte
	for _, id := range ids {
		n := binary.PutUvarint(buf[:], uint64(len(id)))
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		if _, err := w.WriteString(id); err != nil {
			return err
		}
	}
	return nil
}

const (
	maxIDLen   = 1 << 16
	maxVectors = 1 << 26
)

func readIDs(r *bufio.Reader, n int) ([]string, map[string]int, error) {
	ids := make([]string, 0, n)
	pos := make(map[string]int, n)
	for i := range n {
		l, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read id %d: %v", ErrCorrupt, i, err)
		}
		if l > maxIDLen {
			return nil, nil, fmt.Errorf("%w: id %d is %d bytes", ErrCorrupt, i, l)
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, nil, fmt.Errorf("%w: read id %d: %v", ErrCorrupt, i, err)
		}
		id := string(b)
		if _, dup := pos[id]; dup {
			return nil, nil, fmt.Errorf("%w: id %q stored twice", ErrCorrupt, id)
		}
		pos[id] = i
		ids = append(ids, id)
	}
	return ids, pos, nil
}
