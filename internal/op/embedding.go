package op

import (
	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

// Slot indices of the embedding layer. The token-count input carries the
// number of live tokens in its shape; its data is never read.
const (
	EmbeddingWeightTable = 0
	EmbeddingInputTokens = 0
	EmbeddingInputCount  = 1
	EmbeddingOutput      = 0
)

// Embedding gathers rows of the [vocab, dim] embedding table into the
// output activation, one row per input token id.
type Embedding struct {
	Layer
	dim    int
	seqLen int
	vocab  int
}

func NewEmbedding(kind device.Kind, dim, seqLen, vocab int) *Embedding {
	return &Embedding{
		Layer:  newLayer("embedding", kind, 1, 2, 1),
		dim:    dim,
		seqLen: seqLen,
		vocab:  vocab,
	}
}

func (e *Embedding) Dim() int {
	return e.dim
}

func (e *Embedding) VocabSize() int {
	return e.vocab
}

// Forward copies weight row token[i] into output row i for each input
// token. Token ids are validated up front so a bad id never leaves the
// output partially overwritten.
func (e *Embedding) Forward() error {
	if err := e.checkBound(); err != nil {
		return err
	}

	ids := e.Input(EmbeddingInputTokens)
	count := e.Input(EmbeddingInputCount)
	table := e.Weight(EmbeddingWeightTable)
	out := e.Output(EmbeddingOutput)

	if err := e.checkResident("weight table", table); err != nil {
		return err
	}
	if err := e.checkResident("token ids", ids); err != nil {
		return err
	}
	if err := e.checkResident("output", out); err != nil {
		return err
	}

	n := count.NumElems()
	if n > e.seqLen {
		return status.InternalError("embedding: %d tokens exceed sequence length %d", n, e.seqLen)
	}

	tokenIDs, err := ids.Int32s()
	if err != nil {
		return err
	}
	weights, err := table.Float32s()
	if err != nil {
		return err
	}
	dst, err := out.Float32s()
	if err != nil {
		return err
	}

	if n > len(tokenIDs) {
		return status.InternalError("embedding: %d tokens but token buffer holds %d", n, len(tokenIDs))
	}
	if n*e.dim > len(dst) {
		return status.InternalError("embedding: output holds %d floats, need %d", len(dst), n*e.dim)
	}

	for i := 0; i < n; i++ {
		if tok := tokenIDs[i]; tok < 0 || int(tok) >= e.vocab {
			metrics.RecordValidationError("embedding_forward", "token_out_of_range")
			return status.InternalError("embedding: token id %d at position %d outside [0, %d)", tok, i, e.vocab)
		}
	}

	for i := 0; i < n; i++ {
		row := int(tokenIDs[i]) * e.dim
		copy(dst[i*e.dim:(i+1)*e.dim], weights[row:row+e.dim])
	}

	metrics.RecordEmbeddingRows(n)
	return nil
}
