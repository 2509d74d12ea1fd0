//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotoba/pkg/utils"
)

// onnxBatch is the most inputs sent to the model in one run.
const onnxBatch = 32

var errONNXClosed = errors.New("onnx embedder closed")

// ONNXEmbedder runs a BERT-style sentence model with ONNX Runtime. The model must take
// input_ids, attention_mask and token_type_ids of shape [batch, tokens] and produce a
// pooled "output" of shape [batch, dimensions]. Requires CGO and the onnxruntime library.
type ONNXEmbedder struct {
	mu        sync.RWMutex
	session   *ort.DynamicAdvancedSession
	dims      int
	maxTokens int
	model     string
	tokenizer Tokenizer
}

var ortInit struct {
	once sync.Once
	err  error
}

// NewONNXEmbedder loads the model at modelPath. The runtime environment is initialized
// once per process.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx: dimensions must be positive, got %d", dimensions)
	}
	if maxTokens < 2 {
		maxTokens = 32
	}
	ortInit.once.Do(func() {
		ortInit.err = ort.InitializeEnvironment()
	})
	if ortInit.err != nil {
		return nil, fmt.Errorf("initialize ONNX runtime: %w", ortInit.err)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("load ONNX model %s: %w", filepath.Base(modelPath), err)
	}
	return &ONNXEmbedder{
		session:   session,
		dims:      dimensions,
		maxTokens: maxTokens,
		model:     "onnx:" + filepath.Base(modelPath),
		tokenizer: HashTokenizer{},
	}, nil
}

// Embed embeds a single text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the model over texts in chunks of onnxBatch, checking ctx between
// chunks. Vectors are L2-normalized.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil, errONNXClosed
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += onnxBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs, err := e.run(texts[start:min(start+onnxBatch, len(texts))])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *ONNXEmbedder) run(texts []string) ([][]float32, error) {
	n := len(texts)
	ids := make([]int64, 0, n*e.maxTokens)
	mask := make([]int64, 0, n*e.maxTokens)
	types := make([]int64, 0, n*e.maxTokens)
	tokens := 0
	for _, t := range texts {
		enc := e.tokenizer.Encode(t, e.maxTokens)
		tokens = len(enc.IDs)
		ids = append(ids, enc.IDs...)
		mask = append(mask, enc.Mask...)
		types = append(types, enc.TypeIDs...)
	}
	shape := ort.NewShape(int64(n), int64(tokens))

	var tensors []ort.ArbitraryTensor
	defer func() {
		for _, t := range tensors {
			_ = t.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		tensors = append(tensors, t)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(e.dims)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	inputs := tensors[:3:3]
	tensors = append(tensors, output)

	if err := e.session.Run(inputs, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	flat := output.GetData()
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, e.dims)
		copy(v, flat[i*e.dims:(i+1)*e.dims])
		utils.NormalizeL2(v)
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the embedding width.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dims
}

// Model identifies the model file.
func (e *ONNXEmbedder) Model() string {
	return e.model
}

// Close destroys the session after in-flight batches finish.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
