package ops

import (
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
)

// convWorkers is the goroutine budget for the Conv1D and ConvTranspose1D
// fast paths. 0 or 1 runs sequentially. Wired to --conv-workers.
var convWorkers atomic.Int32

// SetConvWorkers sets the goroutine budget for parallel convolution.
// n <= 1 disables parallelism.
func SetConvWorkers(n int) {
	if n < 0 {
		n = 0
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}

	convWorkers.Store(int32(n))
}

func getConvWorkers() int { return int(convWorkers.Load()) }

// parallelFor runs fn over [0, n) split into per-worker chunks. With
// workers <= 1 it degenerates to a single sequential call.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if workers <= 1 || n <= 1 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Add(1)

		go func(lo, hi int) {
			defer wg.Done()

			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}

// Scratch buffers for the im2col and kernel-repack paths. Pooled by
// power-of-two size class, 2^10 up to 2^26 floats; anything larger bypasses
// the pool entirely.
const (
	scratchMinBits = 10
	scratchClasses = 17
)

var scratchPools [scratchClasses]sync.Pool

// getScratch returns a zeroed []float32 of exactly n elements. The caller
// must hand it back with putScratch.
func getScratch(n int) []float32 {
	cls := scratchClass(n)
	sz := 1 << (cls + scratchMinBits)
	if sz < n {
		// Past the largest class: plain allocation, never pooled.
		return make([]float32, n)
	}

	if v := scratchPools[cls].Get(); v != nil {
		buf, ok := v.([]float32)
		if !ok {
			return make([]float32, n)
		}

		buf = buf[:n]
		for i := range buf {
			buf[i] = 0
		}

		return buf
	}

	// Allocate at the full class size so the buffer serves any request in
	// the same class on reuse.
	buf := make([]float32, sz)

	return buf[:n]
}

// putScratch returns a getScratch buffer to its pool. Buffers that bypassed
// the pool are dropped for the GC.
func putScratch(buf []float32) {
	c := cap(buf)

	cls := scratchClass(c)
	if 1<<(cls+scratchMinBits) < c {
		return
	}

	scratchPools[cls].Put(buf[:c])
}

// scratchClass maps a length to its pool index.
func scratchClass(n int) int {
	if n <= 1<<scratchMinBits {
		return 0
	}

	return min(bits.Len(uint(n-1))-scratchMinBits, scratchClasses-1)
}
