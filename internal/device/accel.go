package device

import (
	"sync/atomic"

	"github.com/skarn-ml/skarn/internal/metrics"
	"github.com/skarn-ml/skarn/internal/status"
)

// defaultAccelCapacity bounds the development accelerator backend. A real
// CUDA or Metal backend would sit behind a build tag and query the driver
// instead.
const defaultAccelCapacity = 8 << 30

// accelAllocator models discrete accelerator memory as a capacity-bounded
// arena. Exceeding the capacity fails with OutOfMemory, which is the same
// surface a driver allocation failure would produce.
type accelAllocator struct {
	capacity int64
	used     atomic.Int64
}

func newAccelAllocator(capacity int64) *accelAllocator {
	return &accelAllocator{capacity: capacity}
}

func (a *accelAllocator) Kind() Kind {
	return KindAccelerator
}

func (a *accelAllocator) Allocate(n int) ([]byte, error) {
	if n <= 0 {
		return nil, status.InternalError("accelerator allocate: invalid size %d", n)
	}
	if a.used.Add(int64(n)) > a.capacity {
		a.used.Add(-int64(n))
		return nil, status.OutOfMemory("accelerator allocate: %d bytes requested, %d of %d in use",
			n, a.used.Load(), a.capacity)
	}
	mem := make([]byte, n)
	metrics.RecordDeviceAllocated(KindAccelerator.String(), int64(n))
	return mem, nil
}

func (a *accelAllocator) Release(mem []byte) {
	if mem == nil {
		return
	}
	a.used.Add(-int64(len(mem)))
	metrics.RecordDeviceAllocated(KindAccelerator.String(), -int64(len(mem)))
}

func (a *accelAllocator) Copy(dst []byte, dstKind Kind, src []byte, srcKind Kind) error {
	return dispatchCopy(dst, dstKind, src, srcKind)
}

func (a *accelAllocator) Zero(mem []byte) {
	clear(mem)
}

// UsedBytes reports live arena bytes.
func (a *accelAllocator) UsedBytes() int64 {
	return a.used.Load()
}
