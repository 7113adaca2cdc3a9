package device

import (
	"sync/atomic"

	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

// hostAllocator hands out Go heap memory. Host allocation has no fixed
// budget; exhaustion surfaces as an OOM from the Go runtime long before
// Allocate could report it.
type hostAllocator struct {
	allocated atomic.Int64
}

func newHostAllocator() *hostAllocator {
	return &hostAllocator{}
}

func (a *hostAllocator) Kind() Kind {
	return KindHost
}

func (a *hostAllocator) Allocate(n int) ([]byte, error) {
	if n <= 0 {
		return nil, status.InternalError("host allocate: invalid size %d", n)
	}
	mem := make([]byte, n)
	a.allocated.Add(int64(n))
	metrics.RecordDeviceAllocated(KindHost.String(), int64(n))
	return mem, nil
}

func (a *hostAllocator) Release(mem []byte) {
	if mem == nil {
		return
	}
	a.allocated.Add(-int64(len(mem)))
	metrics.RecordDeviceAllocated(KindHost.String(), -int64(len(mem)))
}

func (a *hostAllocator) Copy(dst []byte, dstKind Kind, src []byte, srcKind Kind) error {
	return dispatchCopy(dst, dstKind, src, srcKind)
}

func (a *hostAllocator) Zero(mem []byte) {
	clear(mem)
}

// AllocatedBytes reports live host bytes handed out by this allocator.
func (a *hostAllocator) AllocatedBytes() int64 {
	return a.allocated.Load()
}
