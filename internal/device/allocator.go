// Package device models the two memory spaces the runtime works with: host
// RAM and accelerator memory. Each space has exactly one process-wide
// Allocator, and Buffer gives a single ownership/copy contract across both.
package device

import (
	"sync"

	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindHost
	KindAccelerator
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// ParseKind maps a user-facing device name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "host", "cpu":
		return KindHost, nil
	case "accelerator", "accel", "gpu":
		return KindAccelerator, nil
	default:
		return KindUnknown, status.PathNotValid("unknown device %q (want host or accelerator)", name)
	}
}

// Allocator allocates, releases and copies raw memory on one device kind.
// Copies are synchronous with respect to the caller and cover all four
// (dst kind, src kind) direction pairs.
type Allocator interface {
	Kind() Kind
	Allocate(n int) ([]byte, error)
	Release(mem []byte)
	Copy(dst []byte, dstKind Kind, src []byte, srcKind Kind) error
	Zero(mem []byte)
}

var (
	registryOnce sync.Once
	registry     map[Kind]Allocator
)

func initRegistry() {
	registry = map[Kind]Allocator{
		KindHost:        newHostAllocator(),
		KindAccelerator: newAccelAllocator(defaultAccelCapacity),
	}
}

// For returns the process-wide allocator for a device kind. The registry is
// built on first use and read-only afterwards.
func For(k Kind) Allocator {
	registryOnce.Do(initRegistry)
	a, ok := registry[k]
	if !ok {
		panic("device: no allocator registered for kind " + k.String())
	}
	return a
}

// dispatchCopy routes a transfer through the primitive for its direction
// pair. All primitives are memmove-equivalent on this backend, but the
// dispatch keeps the direction contract explicit and observable.
func dispatchCopy(dst []byte, dstKind Kind, src []byte, srcKind Kind) error {
	if len(dst) != len(src) {
		return status.InternalError("copy length mismatch: dst %d bytes, src %d bytes", len(dst), len(src))
	}
	switch {
	case srcKind == KindHost && dstKind == KindHost:
		copyHostToHost(dst, src)
	case srcKind == KindHost && dstKind == KindAccelerator:
		copyHostToAccel(dst, src)
	case srcKind == KindAccelerator && dstKind == KindHost:
		copyAccelToHost(dst, src)
	case srcKind == KindAccelerator && dstKind == KindAccelerator:
		copyAccelToAccel(dst, src)
	default:
		return status.InternalError("copy between unknown device kinds %s -> %s", srcKind, dstKind)
	}
	metrics.RecordDeviceCopy(srcKind.String(), dstKind.String(), len(src))
	return nil
}

func copyHostToHost(dst, src []byte)   { copy(dst, src) }
func copyHostToAccel(dst, src []byte)  { copy(dst, src) }
func copyAccelToHost(dst, src []byte)  { copy(dst, src) }
func copyAccelToAccel(dst, src []byte) { copy(dst, src) }
