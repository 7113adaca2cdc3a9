package device

import (
	"github.com/skarn-ml/skarn/internal/status"
)

// Buffer is a contiguous byte range on one device. A buffer either owns its
// memory (allocated through and released back to an Allocator) or borrows
// external memory it must never free, such as a slice of a mapped weight
// file. The device kind is fixed at construction; CopyFrom moves bytes
// between kinds, it never re-tags a buffer.
type Buffer struct {
	mem   []byte
	kind  Kind
	owned bool
	alloc Allocator
}

// NewBuffer allocates an owned buffer of n bytes through alloc. The buffer's
// kind is the allocator's kind.
func NewBuffer(n int, alloc Allocator) (*Buffer, error) {
	if alloc == nil {
		return nil, status.InternalError("new buffer: nil allocator")
	}
	mem, err := alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	return &Buffer{mem: mem, kind: alloc.Kind(), owned: true, alloc: alloc}, nil
}

// NewExternal wraps caller-owned memory. The kind must be supplied because
// external memory carries no allocator to infer it from, and it must be set
// correctly before any device-aware copy. Release never touches the memory.
func NewExternal(mem []byte, kind Kind) *Buffer {
	return &Buffer{mem: mem, kind: kind, owned: false}
}

func (b *Buffer) Len() int {
	return len(b.mem)
}

func (b *Buffer) Kind() Kind {
	return b.kind
}

// External reports whether the buffer borrows memory it does not own.
func (b *Buffer) External() bool {
	return !b.owned
}

// Bytes exposes the raw memory. Nil after Release.
func (b *Buffer) Bytes() []byte {
	return b.mem
}

// CopyFrom copies src's bytes into b using the allocator belonging to the
// destination. Lengths must match exactly; partial copies silently truncate
// weights, so they are rejected outright.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if src == nil {
		return status.InternalError("buffer copy: nil source")
	}
	if b.mem == nil || src.mem == nil {
		return status.Unallocated("buffer copy: %s", releasedSide(b, src))
	}
	if b.Len() != src.Len() {
		return status.InternalError("buffer copy: length mismatch, dst %d bytes, src %d bytes", b.Len(), src.Len())
	}
	alloc := b.alloc
	if alloc == nil {
		alloc = For(b.kind)
	}
	return alloc.Copy(b.mem, b.kind, src.mem, src.kind)
}

func releasedSide(dst, src *Buffer) string {
	if dst.mem == nil {
		return "destination released"
	}
	return "source released"
}

// Zero clears the buffer through its device's allocator.
func (b *Buffer) Zero() {
	if b.mem == nil {
		return
	}
	alloc := b.alloc
	if alloc == nil {
		alloc = For(b.kind)
	}
	alloc.Zero(b.mem)
}

// Release returns owned memory to the allocator and is safe to call more
// than once. External memory is left untouched; its longer-lived owner
// remains responsible for it.
func (b *Buffer) Release() {
	if b.mem == nil {
		return
	}
	if b.owned {
		b.alloc.Release(b.mem)
	}
	b.mem = nil
}
