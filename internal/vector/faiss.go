//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"unsafe"
)

// FAISSIndex is an exact inner-product index (IndexFlatIP) in FAISS. FAISS labels are
// insertion positions, so ids[label] maps a hit back to its word id.
type FAISSIndex struct {
	mu    sync.RWMutex
	index *C.FaissIndexFlatIP
	dims  int
	ids   []string
	pos   map[string]int
}

// NewFAISSIndex creates an empty FAISS index for vectors of the given width.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	var index *C.FaissIndexFlatIP
	if C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions)) != 0 {
		return nil, fmt.Errorf("create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dims: dimensions, pos: make(map[string]int)}, nil
}

func faissLastError() string {
	if msg := C.faiss_get_last_error(); msg != nil {
		return C.GoString(msg)
	}
	return "unknown error"
}

// Add appends vectors. Nothing is added when any vector has the wrong width or any id
// is already present.
func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkBatch(f.dims, f.pos, ids, vectors); err != nil {
		return err
	}
	rows := make([]float32, 0, len(vectors)*f.dims)
	for _, v := range vectors {
		rows = append(rows, v...)
	}
	if C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&rows[0]))) != 0 {
		return fmt.Errorf("add to FAISS index: %s", faissLastError())
	}
	for _, id := range ids {
		f.pos[id] = len(f.ids)
		f.ids = append(f.ids, id)
	}
	return nil
}

// Search asks FAISS for k neighbours. With a filter it widens the request until k hits
// pass or the whole index has been ranked.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int, keep Filter) ([]Hit, error) {
	if len(query) != f.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), f.dims)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	total := len(f.ids)
	if k <= 0 || total == 0 {
		return nil, nil
	}
	fetch := min(k, total)
	if keep != nil {
		fetch = min(k*4, total)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := f.search(query, fetch, keep)
		if err != nil {
			return nil, err
		}
		if len(hits) >= k || fetch == total {
			slices.SortFunc(hits, better)
			return hits[:min(k, len(hits))], nil
		}
		fetch = min(fetch*4, total)
	}
}

func (f *FAISSIndex) search(query []float32, n int, keep Filter) ([]Hit, error) {
	scores := make([]float32, n)
	labels := make([]int64, n)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(n),
		(*C.float)(unsafe.Pointer(&scores[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search: %s", faissLastError())
	}
	hits := make([]Hit, 0, n)
	for i, label := range labels {
		if label < 0 || int(label) >= len(f.ids) {
			continue
		}
		id := f.ids[label]
		if keep != nil && !keep(id) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: float64(scores[i])})
	}
	return hits, nil
}

// Files returns the FAISS index file and the id list Save writes.
func (f *FAISSIndex) Files(path string) []string {
	return []string{path + ".faiss", path + ".ids"}
}

// Save writes the FAISS index to path.faiss and the id list, in label order, to path.ids.
func (f *FAISSIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	files := f.Files(path)
	err := writeFile(files[1], func(w *bufio.Writer) error {
		if err := writeHeader(w, f.dims, len(f.ids)); err != nil {
			return err
		}
		return writeIDs(w, f.ids)
	})
	if err != nil {
		return err
	}
	cPath := C.CString(files[0])
	defer C.free(unsafe.Pointer(cPath))
	if C.faiss_write_index_fname(f.index, cPath) != 0 {
		return fmt.Errorf("write FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the contents with the index stored at path. A missing index leaves it
// unchanged. An id list that does not match the FAISS index is ErrCorrupt.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	files := f.Files(path)
	if _, err := os.Stat(files[0]); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	idFile, err := os.Open(files[1])
	if err != nil {
		return fmt.Errorf("%w: open id list: %v", ErrCorrupt, err)
	}
	defer idFile.Close()
	r := bufio.NewReader(idFile)
	n, err := readHeader(r, f.dims)
	if err != nil {
		return err
	}
	ids, pos, err := readIDs(r, n)
	if err != nil {
		return err
	}

	cPath := C.CString(files[0])
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if C.faiss_read_index_fname(cPath, 0, &loaded) != 0 {
		return fmt.Errorf("%w: read FAISS index: %s", ErrCorrupt, faissLastError())
	}
	if got := int(C.faiss_Index_ntotal(loaded)); got != len(ids) || int(C.faiss_Index_d(loaded)) != f.dims {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: FAISS index holds %d vectors for %d ids", ErrCorrupt, got, len(ids))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	f.ids, f.pos = ids, pos
	return nil
}

// Size returns the number of vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimensions returns the vector width.
func (f *FAISSIndex) Dimensions() int {
	return f.dims
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
