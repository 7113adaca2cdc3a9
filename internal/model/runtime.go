// Package model orchestrates the pieces of the inference substrate: it
// loads the tokenizer, maps the weight file, binds operator layers to
// zero-copy weight views, allocates activation buffers and drives forward
// passes.
package model

import (
	"fmt"
	"time"

	"github.com/skarn-ml/skarn/internal/config"
	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/op"
	"github.com/skarn-ml/skarn/internal/status"
	"github.com/skarn-ml/skarn/internal/tensor"
	"github.com/skarn-ml/skarn/internal/tokenizer"
	"github.com/skarn-ml/skarn/internal/weightfile"
)

// Runtime owns one loaded model: its config, the mapped weight file, the
// tokenizer, the activation buffer registry and the operator layers. The
// mapped file stays alive for the Runtime's whole lifetime so no zero-copy
// weight view can dangle.
//
// Init populates everything or fails atomically. The registry and layer
// bindings are mutated only during Init; Forward calls must be serialized
// by the caller.
type Runtime struct {
	tokenPath string
	modelPath string

	cfg       config.Model
	device    device.Kind
	alloc     device.Allocator
	mapped    *weightfile.File
	tok       *tokenizer.Tokenizer
	buffers   map[BufferKey]*tensor.Tensor
	embedding *op.Embedding

	// deviceTable is the owned accelerator copy of the embedding table,
	// present only when the runtime targets the accelerator.
	deviceTable *tensor.Tensor

	initialized bool
	log         *logger.Logger
}

func New(tokenPath, modelPath string) *Runtime {
	return &Runtime{
		tokenPath: tokenPath,
		modelPath: modelPath,
		buffers:   make(map[BufferKey]*tensor.Tensor),
		log:       logger.Log.With("model"),
	}
}

// Init loads the tokenizer, maps the weight file, builds the embedding
// layer over the mapped table and allocates the activation buffers. On any
// failure every resource acquired so far is torn down and the runtime stays
// unusable.
func (r *Runtime) Init(kind device.Kind) error {
	if r.initialized {
		return status.InternalError("runtime already initialized")
	}
	start := time.Now()

	if r.tokenPath == "" {
		return status.PathNotValid("token vocabulary path is empty")
	}

	tok, err := tokenizer.Load(r.tokenPath)
	if err != nil {
		return err
	}
	if tok.VocabSize() <= 0 {
		return status.ModelParseError("tokenizer at %s has vocabulary size %d", r.tokenPath, tok.VocabSize())
	}

	mapped, err := weightfile.Open(r.modelPath, tok.VocabSize())
	if err != nil {
		return err
	}

	hdr := mapped.Header()
	vocab := int(hdr.VocabSize)
	if vocab < 0 {
		vocab = -vocab
	}
	cfg := config.Model{
		Dim:              int(hdr.Dim),
		HiddenDim:        int(hdr.HiddenDim),
		Layers:           int(hdr.Layers),
		Heads:            int(hdr.Heads),
		KVHeads:          int(hdr.KVHeads),
		VocabSize:        vocab,
		SeqLen:           int(hdr.SeqLen),
		SharedClassifier: mapped.SharedClassifier(),
	}
	if err := cfg.Validate(); err != nil {
		_ = mapped.Close()
		return status.ModelParseError("weight file %s: %v", r.modelPath, err)
	}

	r.tok = tok
	r.mapped = mapped
	r.cfg = cfg
	r.device = kind
	r.alloc = device.For(kind)

	if err := r.buildEmbeddingLayer(); err != nil {
		r.teardown()
		return err
	}
	if err := r.allocActivations(); err != nil {
		r.teardown()
		return err
	}

	r.initialized = true
	metrics.RecordModelLoad(time.Since(start))
	r.log.Info("model initialized",
		"model", r.modelPath, "device", kind.String(),
		"dim", cfg.Dim, "vocab", cfg.VocabSize, "seq_len", cfg.SeqLen,
		"mapped_bytes", mapped.Size())
	return nil
}

// buildEmbeddingLayer binds the embedding table, which is the first
// vocab*dim floats of the weight region, as a zero-copy view. When the
// runtime targets the accelerator the table is explicitly copied onto the
// device first; a placement tag alone never stands in for a copy.
func (r *Runtime) buildEmbeddingLayer() error {
	table, err := r.mapped.Floats(0, r.cfg.VocabSize*r.cfg.Dim)
	if err != nil {
		return fmt.Errorf("bind embedding table: %w", err)
	}

	e := op.NewEmbedding(r.device, r.cfg.Dim, r.cfg.SeqLen, r.cfg.VocabSize)
	if r.device == device.KindHost {
		if err := e.SetWeight(op.EmbeddingWeightTable, []int{r.cfg.VocabSize, r.cfg.Dim}, table); err != nil {
			return fmt.Errorf("bind embedding table: %w", err)
		}
		r.embedding = e
		return nil
	}

	view, err := tensor.FromFloats(table, device.KindHost, r.cfg.VocabSize, r.cfg.Dim)
	if err != nil {
		return fmt.Errorf("bind embedding table: %w", err)
	}
	devTable := tensor.New(tensor.DataTypeFp32, r.cfg.VocabSize, r.cfg.Dim)
	if err := devTable.Allocate(r.alloc); err != nil {
		return fmt.Errorf("allocate device embedding table: %w", err)
	}
	if err := devTable.CopyFrom(view); err != nil {
		devTable.Release()
		return fmt.Errorf("copy embedding table to %s: %w", r.device, err)
	}
	if err := e.BindWeight(op.EmbeddingWeightTable, devTable); err != nil {
		devTable.Release()
		return err
	}
	r.deviceTable = devTable
	r.embedding = e
	return nil
}

func (r *Runtime) allocActivations() error {
	inputTokens := tensor.New(tensor.DataTypeInt32, r.cfg.SeqLen)
	if err := inputTokens.Allocate(r.alloc); err != nil {
		return fmt.Errorf("allocate token buffer: %w", err)
	}
	if err := r.insertBuffer(KeyInputTokens, inputTokens); err != nil {
		inputTokens.Release()
		return err
	}

	inputEmbeddings := tensor.New(tensor.DataTypeFp32, r.cfg.SeqLen, r.cfg.Dim)
	if err := inputEmbeddings.Allocate(r.alloc); err != nil {
		return fmt.Errorf("allocate embedding buffer: %w", err)
	}
	if err := r.insertBuffer(KeyInputEmbeddings, inputEmbeddings); err != nil {
		inputEmbeddings.Release()
		return err
	}
	return nil
}

// Forward stages the token ids into the registered activation buffer, wires
// the embedding layer's slots and runs it. startPos is accepted for the
// positional bookkeeping of later transformer stages and is unused by the
// embedding-only path.
func (r *Runtime) Forward(tokens []int32, startPos int) error {
	if !r.initialized {
		return status.InternalError("forward before successful init")
	}
	if len(tokens) == 0 {
		return status.InternalError("forward with no tokens")
	}
	if len(tokens) > r.cfg.SeqLen {
		return status.InternalError("forward with %d tokens, sequence length is %d", len(tokens), r.cfg.SeqLen)
	}
	start := time.Now()

	inputTokens, ok := r.buffers[KeyInputTokens]
	if !ok {
		return status.InternalError("token activation buffer was never registered")
	}

	if r.device == device.KindHost {
		staged, err := inputTokens.Int32s()
		if err != nil {
			return fmt.Errorf("stage tokens: %w", err)
		}
		copy(staged, tokens)
	} else {
		if err := r.stageTokensOnDevice(inputTokens, tokens); err != nil {
			return fmt.Errorf("stage tokens: %w", err)
		}
	}

	tokenCount := tensor.New(tensor.DataTypeInt32, len(tokens))

	e := r.embedding
	if e == nil {
		return status.InternalError("embedding layer missing after init")
	}
	if err := e.SetInput(op.EmbeddingInputTokens, inputTokens); err != nil {
		return err
	}
	if err := e.SetInput(op.EmbeddingInputCount, tokenCount); err != nil {
		return err
	}
	if err := e.SetOutput(op.EmbeddingOutput, r.buffer(KeyInputEmbeddings)); err != nil {
		return err
	}
	if err := e.Forward(); err != nil {
		return fmt.Errorf("embedding layer forward failed: %w", err)
	}

	metrics.RecordForward(time.Since(start))
	return nil
}

// stageTokensOnDevice copies token ids into an accelerator-resident buffer
// through the device copy path.
func (r *Runtime) stageTokensOnDevice(dst *tensor.Tensor, tokens []int32) error {
	host := tensor.New(tensor.DataTypeInt32, r.cfg.SeqLen)
	if err := host.Allocate(device.For(device.KindHost)); err != nil {
		return err
	}
	defer host.Release()
	staged, err := host.Int32s()
	if err != nil {
		return err
	}
	copy(staged, tokens)
	return dst.CopyFrom(host)
}

// Encode tokenizes text through the loaded vocabulary.
func (r *Runtime) Encode(text string) ([]int32, error) {
	if r.tok == nil {
		return nil, status.InternalError("encode before successful init")
	}
	return r.tok.Encode(text), nil
}

// Decode maps token ids back to text.
func (r *Runtime) Decode(ids []int32) (string, error) {
	if r.tok == nil {
		return "", status.InternalError("decode before successful init")
	}
	return r.tok.Decode(ids), nil
}

// EmbeddingRows returns the first n rows of the output activation as
// host-readable float slices, copying off the accelerator when needed.
func (r *Runtime) EmbeddingRows(n int) ([][]float32, error) {
	if !r.initialized {
		return nil, status.InternalError("embedding rows before successful init")
	}
	if n < 0 || n > r.cfg.SeqLen {
		return nil, status.InternalError("embedding rows: %d outside [0, %d]", n, r.cfg.SeqLen)
	}

	out := r.buffer(KeyInputEmbeddings)
	src := out
	if r.device != device.KindHost {
		host := tensor.New(tensor.DataTypeFp32, r.cfg.SeqLen, r.cfg.Dim)
		if err := host.Allocate(device.For(device.KindHost)); err != nil {
			return nil, err
		}
		defer host.Release()
		if err := host.CopyFrom(out); err != nil {
			return nil, err
		}
		src = host
	}

	flat, err := src.Float32s()
	if err != nil {
		return nil, err
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = append([]float32(nil), flat[i*r.cfg.Dim:(i+1)*r.cfg.Dim]...)
	}
	return rows, nil
}

func (r *Runtime) Config() config.Model {
	return r.cfg
}

func (r *Runtime) Device() device.Kind {
	return r.device
}

func (r *Runtime) Initialized() bool {
	return r.initialized
}

func (r *Runtime) MappedFile() *weightfile.File {
	return r.mapped
}

// Close releases activation buffers and tears down the mapping exactly
// once. Safe to call on a runtime whose Init failed.
func (r *Runtime) Close() error {
	err := r.teardown()
	r.initialized = false
	return err
}

func (r *Runtime) teardown() error {
	for key, t := range r.buffers {
		t.Release()
		delete(r.buffers, key)
	}
	if r.deviceTable != nil {
		r.deviceTable.Release()
		r.deviceTable = nil
	}
	r.embedding = nil

	var err error
	if r.mapped != nil {
		err = r.mapped.Close()
		r.mapped = nil
	}
	return err
}
