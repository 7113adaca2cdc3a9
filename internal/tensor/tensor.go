// Package tensor provides typed, shaped views over device buffers. A tensor
// either allocates its own buffer or borrows one zero-copy, typically a
// slice of the mapped weight file.
package tensor

import (
	"unsafe"

	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/status"
)

type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeInt32
	DataTypeFp32
)

func (d DataType) Size() int {
	switch d {
	case DataTypeInt32, DataTypeFp32:
		return 4
	default:
		return 0
	}
}

func (d DataType) String() string {
	switch d {
	case DataTypeInt32:
		return "int32"
	case DataTypeFp32:
		return "fp32"
	default:
		return "unknown"
	}
}

// Tensor pairs a dtype and an immutable shape with at most one Buffer.
//
// Placement and residency are deliberately distinct: Resident reports where
// the bytes physically live (the buffer's kind), Placement records where the
// data is intended to be consumed. Retagging placement never moves data;
// kernels check residency and fail loudly when the two disagree.
type Tensor struct {
	dtype     DataType
	dims      []int
	buf       *device.Buffer
	placement device.Kind
}

// New constructs an unallocated tensor. Reading data before Allocate (or
// before a view is bound) fails with Unallocated.
func New(dtype DataType, dims ...int) *Tensor {
	return &Tensor{dtype: dtype, dims: append([]int(nil), dims...)}
}

// NewView constructs a tensor over an externally supplied buffer. The buffer
// length must match the shape exactly.
func NewView(dtype DataType, dims []int, buf *device.Buffer) (*Tensor, error) {
	t := New(dtype, dims...)
	if buf == nil {
		return nil, status.Unallocated("tensor view: nil buffer")
	}
	if want := t.SizeBytes(); buf.Len() != want {
		return nil, status.TypeMismatch("tensor view: shape %v needs %d bytes, buffer has %d", dims, want, buf.Len())
	}
	t.buf = buf
	t.placement = buf.Kind()
	return t, nil
}

// FromFloats builds a zero-copy fp32 view over caller memory tagged with the
// given device kind. The memory is not owned and never freed by the tensor.
func FromFloats(data []float32, kind device.Kind, dims ...int) (*Tensor, error) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if len(data) != n {
		return nil, status.TypeMismatch("float view: shape %v needs %d elements, slice has %d", dims, n, len(data))
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*4)
	return NewView(DataTypeFp32, dims, device.NewExternal(raw, kind))
}

// Allocate binds a freshly allocated buffer sized to the tensor's shape.
func (t *Tensor) Allocate(alloc device.Allocator) error {
	if t.buf != nil {
		return status.InternalError("tensor allocate: buffer already bound")
	}
	if t.dtype.Size() == 0 {
		return status.TypeMismatch("tensor allocate: dtype %s has no element width", t.dtype)
	}
	buf, err := device.NewBuffer(t.SizeBytes(), alloc)
	if err != nil {
		return err
	}
	t.buf = buf
	t.placement = buf.Kind()
	return nil
}

func (t *Tensor) Allocated() bool {
	return t.buf != nil && t.buf.Bytes() != nil
}

func (t *Tensor) DataType() DataType {
	return t.dtype
}

func (t *Tensor) Dims() []int {
	return t.dims
}

func (t *Tensor) Dim(i int) int {
	return t.dims[i]
}

func (t *Tensor) NumElems() int {
	n := 1
	for _, d := range t.dims {
		n *= d
	}
	return n
}

func (t *Tensor) SizeBytes() int {
	return t.NumElems() * t.dtype.Size()
}

func (t *Tensor) Buffer() *device.Buffer {
	return t.buf
}

// SetPlacement records intended placement before an explicit copy. It must
// not be used to claim the data has moved.
func (t *Tensor) SetPlacement(k device.Kind) {
	t.placement = k
}

func (t *Tensor) Placement() device.Kind {
	return t.placement
}

// Resident reports where the backing bytes physically live. KindUnknown
// until a buffer is bound.
func (t *Tensor) Resident() device.Kind {
	if t.buf == nil {
		return device.KindUnknown
	}
	return t.buf.Kind()
}

func (t *Tensor) Int32s() ([]int32, error) {
	b, err := t.raw(DataTypeInt32)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4), nil
}

func (t *Tensor) Float32s() ([]float32, error) {
	b, err := t.raw(DataTypeFp32)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4), nil
}

func (t *Tensor) raw(want DataType) ([]byte, error) {
	if t.dtype != want {
		return nil, status.TypeMismatch("tensor holds %s, requested %s", t.dtype, want)
	}
	if !t.Allocated() {
		return nil, status.Unallocated("tensor read before allocation")
	}
	return t.buf.Bytes(), nil
}

// CopyFrom copies src's bytes into t's buffer, device-aware on both sides.
// Shapes and dtypes must agree.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if src == nil {
		return status.InternalError("tensor copy: nil source")
	}
	if t.dtype != src.dtype {
		return status.TypeMismatch("tensor copy: dst %s, src %s", t.dtype, src.dtype)
	}
	if !t.Allocated() || !src.Allocated() {
		return status.Unallocated("tensor copy: unallocated operand")
	}
	return t.buf.CopyFrom(src.buf)
}

// Release frees an owned buffer; views leave the underlying memory alone.
func (t *Tensor) Release() {
	if t.buf != nil {
		t.buf.Release()
	}
}
