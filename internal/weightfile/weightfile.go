// Package weightfile consumes the flat llama2 checkpoint layout: a fixed
// 28-byte header of seven int32 hyperparameters followed by one contiguous
// region of little-endian fp32 weights, embedding table first. The whole
// file is memory mapped read-only so multi-gigabyte weights stay resident
// without a copy in process memory; every weight access is a bounds-checked
// view into the mapping.
package weightfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

const (
	// HeaderSize is the byte length of the fixed header record.
	HeaderSize = 28

	elemSize    = 4
	headerElems = HeaderSize / elemSize
)

// Header is the fixed-layout record at the start of every weight file.
// VocabSize is sign-encoded: positive means the output classifier shares the
// embedding table, negative means a separate classifier follows the other
// weights. SharedClassifier exposes the decoded flag.
type Header struct {
	Dim       int32
	HiddenDim int32
	Layers    int32
	Heads     int32
	KVHeads   int32
	VocabSize int32
	SeqLen    int32
}

// File is the single owning resource for one mapped checkpoint. Weight views
// handed out by Floats are weak references into the mapping; the File must
// outlive every one of them, which the runtime guarantees by holding the
// File for its whole lifetime.
type File struct {
	path   string
	f      *os.File
	data   []byte
	size   int64
	header Header
	shared bool
}

// Open maps the weight file at path and validates its header against the
// tokenizer's vocabulary size. On any failure nothing stays open or mapped.
func Open(path string, tokenizerVocab int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, status.PathNotValid("open weight file %s: %v", path, err)
	}

	var hdr Header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		_ = f.Close()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, status.ModelParseError("weight file %s shorter than %d byte header", path, HeaderSize)
		}
		return nil, status.ModelParseError("read header of %s: %v", path, err)
	}

	vocab := hdr.VocabSize
	shared := vocab > 0
	if vocab < 0 {
		vocab = -vocab
	}
	if int(vocab) != tokenizerVocab {
		_ = f.Close()
		return nil, status.ModelParseError(
			"vocabulary size mismatch: weight file declares %d entries, tokenizer has %d", vocab, tokenizerVocab)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, status.ModelParseError("stat %s: %v", path, err)
	}
	size := info.Size()

	minSize := int64(HeaderSize) + int64(vocab)*int64(hdr.Dim)*elemSize
	if size < minSize {
		_ = f.Close()
		return nil, status.ModelParseError(
			"weight file %s is %d bytes, embedding table alone needs %d", path, size, minSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		_ = f.Close()
		return nil, status.ModelParseError("mmap %s (%d bytes): %v", path, size, err)
	}

	metrics.RecordMappedBytes(size)
	logger.Log.Debug("weight file mapped",
		"path", path, "bytes", size, "dim", hdr.Dim, "vocab", vocab, "seq_len", hdr.SeqLen)

	return &File{path: path, f: f, data: data, size: size, header: hdr, shared: shared}, nil
}

func (w *File) Path() string {
	return w.path
}

func (w *File) Header() Header {
	return w.header
}

// SharedClassifier reports whether the output classifier reuses the
// embedding table, decoded from the vocab_size sign flag.
func (w *File) SharedClassifier() bool {
	return w.shared
}

func (w *File) Size() int64 {
	return w.size
}

// WeightElems is the number of fp32 elements in the weight region.
func (w *File) WeightElems() int {
	return int(w.size/elemSize) - headerElems
}

// IsWeightValid reports whether a float element at the given offset from the
// mapped base lies inside the file. Callers must check any offset not
// already proven in bounds by the header's declared dimensions before
// dereferencing a weight view at it.
func (w *File) IsWeightValid(elemOffset int) bool {
	return elemOffset >= 0 && (int64(elemOffset)+1)*elemSize <= w.size
}

// Floats returns a zero-copy view of n weights starting at elemOffset
// elements into the weight region (offset 0 is the first weight past the
// header).
func (w *File) Floats(elemOffset, n int) ([]float32, error) {
	if w.data == nil {
		return nil, status.InternalError("weight access after close")
	}
	if elemOffset < 0 || n < 0 {
		return nil, status.InternalError("weight view [%d, %d): negative extent", elemOffset, elemOffset+n)
	}
	end := headerElems + elemOffset + n
	if !w.IsWeightValid(end - 1) {
		return nil, status.ModelParseError(
			"weight view [%d, %d) exceeds weight region of %d elements", elemOffset, elemOffset+n, w.WeightElems())
	}
	return w.floats()[headerElems+elemOffset : end], nil
}

func (w *File) floats() []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(w.data))), len(w.data)/elemSize)
}

// Close unmaps and closes the file. Safe to call more than once; only the
// first call tears anything down. Every weight view is dangling afterwards.
func (w *File) Close() error {
	var err error
	if w.data != nil {
		err = unix.Munmap(w.data)
		w.data = nil
		metrics.RecordMappedBytes(0)
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	if err != nil {
		return fmt.Errorf("close weight file %s: %w", w.path, err)
	}
	return nil
}
