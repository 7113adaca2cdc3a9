package op

import (
	"testing"

	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/status"
	"github.com/skarn-ml/skarn/internal/tensor"
)

const (
	testDim    = 4
	testSeqLen = 8
	testVocab  = 10
)

// embeddingTable builds a vocab x dim table where row i is filled with
// float32(i).
func embeddingTable() []float32 {
	table := make([]float32, testVocab*testDim)
	for row := 0; row < testVocab; row++ {
		for col := 0; col < testDim; col++ {
			table[row*testDim+col] = float32(row)
		}
	}
	return table
}

// boundEmbedding returns a host embedding layer with weight, inputs and
// output bound, the given token ids staged, and the output filled with a
// sentinel value.
func boundEmbedding(t *testing.T, tokens []int32) (*Embedding, *tensor.Tensor) {
	t.Helper()

	e := NewEmbedding(device.KindHost, testDim, testSeqLen, testVocab)
	if err := e.SetWeight(EmbeddingWeightTable, []int{testVocab, testDim}, embeddingTable()); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}

	alloc := device.For(device.KindHost)

	ids := tensor.New(tensor.DataTypeInt32, testSeqLen)
	if err := ids.Allocate(alloc); err != nil {
		t.Fatalf("allocate ids: %v", err)
	}
	t.Cleanup(ids.Release)
	idsData, _ := ids.Int32s()
	copy(idsData, tokens)

	out := tensor.New(tensor.DataTypeFp32, testSeqLen, testDim)
	if err := out.Allocate(alloc); err != nil {
		t.Fatalf("allocate output: %v", err)
	}
	t.Cleanup(out.Release)
	outData, _ := out.Float32s()
	for i := range outData {
		outData[i] = -99
	}

	count := tensor.New(tensor.DataTypeInt32, len(tokens))

	if err := e.SetInput(EmbeddingInputTokens, ids); err != nil {
		t.Fatalf("SetInput tokens: %v", err)
	}
	if err := e.SetInput(EmbeddingInputCount, count); err != nil {
		t.Fatalf("SetInput count: %v", err)
	}
	if err := e.SetOutput(EmbeddingOutput, out); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	return e, out
}

func TestForwardGathersRows(t *testing.T) {
	e, out := boundEmbedding(t, []int32{5, 0, testVocab - 1})

	if err := e.Forward(); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	got, _ := out.Float32s()
	wantRows := []float32{5, 0, testVocab - 1}
	for row, want := range wantRows {
		for col := 0; col < testDim; col++ {
			if got[row*testDim+col] != want {
				t.Errorf("output[%d][%d] = %v, want %v", row, col, got[row*testDim+col], want)
			}
		}
	}
}

func TestForwardRejectsOutOfRangeToken(t *testing.T) {
	e, out := boundEmbedding(t, []int32{3, testVocab, 1})

	err := e.Forward()
	if !status.Is(err, status.KindInternalError) {
		t.Fatalf("Forward with bad token = %v, want internal error", err)
	}

	// Validation happens before any row copy, so the output is untouched.
	got, _ := out.Float32s()
	for i, v := range got {
		if v != -99 {
			t.Errorf("output[%d] = %v, modified despite failed forward", i, v)
		}
	}
}

func TestForwardRejectsNegativeToken(t *testing.T) {
	e, _ := boundEmbedding(t, []int32{-1})
	if err := e.Forward(); !status.Is(err, status.KindInternalError) {
		t.Errorf("Forward with negative token = %v, want internal error", err)
	}
}

func TestForwardUnboundSlot(t *testing.T) {
	e := NewEmbedding(device.KindHost, testDim, testSeqLen, testVocab)
	if err := e.Forward(); !status.Is(err, status.KindInternalError) {
		t.Errorf("Forward with unbound slots = %v, want internal error", err)
	}
}

func TestForwardTooManyTokens(t *testing.T) {
	tokens := make([]int32, testSeqLen+1)
	e := NewEmbedding(device.KindHost, testDim, testSeqLen, testVocab)
	if err := e.SetWeight(EmbeddingWeightTable, []int{testVocab, testDim}, embeddingTable()); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}

	alloc := device.For(device.KindHost)
	ids := tensor.New(tensor.DataTypeInt32, testSeqLen)
	_ = ids.Allocate(alloc)
	t.Cleanup(ids.Release)
	out := tensor.New(tensor.DataTypeFp32, testSeqLen, testDim)
	_ = out.Allocate(alloc)
	t.Cleanup(out.Release)

	_ = e.SetInput(EmbeddingInputTokens, ids)
	_ = e.SetInput(EmbeddingInputCount, tensor.New(tensor.DataTypeInt32, len(tokens)))
	_ = e.SetOutput(EmbeddingOutput, out)

	if err := e.Forward(); !status.Is(err, status.KindInternalError) {
		t.Errorf("Forward past seq_len = %v, want internal error", err)
	}
}

func TestForwardRefusesNonResidentWeight(t *testing.T) {
	// Accelerator layer with a host-resident weight view: tagging the view
	// for the accelerator is not a copy, so the kernel must refuse it.
	e := NewEmbedding(device.KindAccelerator, testDim, testSeqLen, testVocab)
	if err := e.SetWeight(EmbeddingWeightTable, []int{testVocab, testDim}, embeddingTable()); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if got := e.Weight(EmbeddingWeightTable).Placement(); got != device.KindAccelerator {
		t.Fatalf("weight placement = %v, want accelerator", got)
	}

	alloc := device.For(device.KindAccelerator)
	ids := tensor.New(tensor.DataTypeInt32, testSeqLen)
	_ = ids.Allocate(alloc)
	t.Cleanup(ids.Release)
	out := tensor.New(tensor.DataTypeFp32, testSeqLen, testDim)
	_ = out.Allocate(alloc)
	t.Cleanup(out.Release)

	_ = e.SetInput(EmbeddingInputTokens, ids)
	_ = e.SetInput(EmbeddingInputCount, tensor.New(tensor.DataTypeInt32, 1))
	_ = e.SetOutput(EmbeddingOutput, out)

	err := e.Forward()
	if !status.Is(err, status.KindInternalError) {
		t.Fatalf("Forward on non-resident weight = %v, want internal error", err)
	}
}

func TestForwardOnAcceleratorAfterExplicitCopy(t *testing.T) {
	e := NewEmbedding(device.KindAccelerator, testDim, testSeqLen, testVocab)

	alloc := device.For(device.KindAccelerator)

	hostView, err := tensor.FromFloats(embeddingTable(), device.KindHost, testVocab, testDim)
	if err != nil {
		t.Fatalf("FromFloats: %v", err)
	}
	devTable := tensor.New(tensor.DataTypeFp32, testVocab, testDim)
	if err := devTable.Allocate(alloc); err != nil {
		t.Fatalf("allocate device table: %v", err)
	}
	t.Cleanup(devTable.Release)
	if err := devTable.CopyFrom(hostView); err != nil {
		t.Fatalf("copy table to accelerator: %v", err)
	}
	if err := e.BindWeight(EmbeddingWeightTable, devTable); err != nil {
		t.Fatalf("BindWeight: %v", err)
	}

	ids := tensor.New(tensor.DataTypeInt32, testSeqLen)
	_ = ids.Allocate(alloc)
	t.Cleanup(ids.Release)
	idsData, _ := ids.Int32s()
	idsData[0] = 6

	out := tensor.New(tensor.DataTypeFp32, testSeqLen, testDim)
	_ = out.Allocate(alloc)
	t.Cleanup(out.Release)

	_ = e.SetInput(EmbeddingInputTokens, ids)
	_ = e.SetInput(EmbeddingInputCount, tensor.New(tensor.DataTypeInt32, 1))
	_ = e.SetOutput(EmbeddingOutput, out)

	if err := e.Forward(); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	got, _ := out.Float32s()
	for col := 0; col < testDim; col++ {
		if got[col] != 6 {
			t.Errorf("output[0][%d] = %v, want 6", col, got[col])
		}
	}
}

func TestSlotArityChecks(t *testing.T) {
	e := NewEmbedding(device.KindHost, testDim, testSeqLen, testVocab)

	if err := e.SetInput(2, tensor.New(tensor.DataTypeInt32, 1)); !status.Is(err, status.KindInternalError) {
		t.Errorf("SetInput(2) = %v, want internal error", err)
	}
	if err := e.SetOutput(1, tensor.New(tensor.DataTypeFp32, 1)); !status.Is(err, status.KindInternalError) {
		t.Errorf("SetOutput(1) = %v, want internal error", err)
	}
	if err := e.SetWeight(1, []int{1}, []float32{0}); !status.Is(err, status.KindInternalError) {
		t.Errorf("SetWeight(1) = %v, want internal error", err)
	}
}
