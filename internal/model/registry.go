package model

import (
	"github.com/skarn-ml/skarn/internal/status"
	"github.com/skarn-ml/skarn/internal/tensor"
)

// BufferKey names one activation buffer in the runtime registry.
type BufferKey int

const (
	KeyInputTokens BufferKey = iota
	KeyInputEmbeddings
)

func (k BufferKey) String() string {
	switch k {
	case KeyInputTokens:
		return "input_tokens"
	case KeyInputEmbeddings:
		return "input_embeddings"
	default:
		return "unknown"
	}
}

// insertBuffer registers an activation tensor under a key. Registration is
// write-once per Init; a duplicate key fails and never overwrites the
// existing tensor.
func (r *Runtime) insertBuffer(key BufferKey, t *tensor.Tensor) error {
	if _, ok := r.buffers[key]; ok {
		return status.KeyAlreadyExists("activation buffer %s already registered", key)
	}
	r.buffers[key] = t
	return nil
}

// buffer returns the tensor registered under key. Requesting a key Init
// never populated is a broken internal contract, not a recoverable input
// error, so it panics.
func (r *Runtime) buffer(key BufferKey) *tensor.Tensor {
	t, ok := r.buffers[key]
	if !ok {
		panic("model: activation buffer " + key.String() + " was never registered")
	}
	return t
}
