package engine

import "sync/atomic"

// sampleRing is a fixed-size single-producer single-consumer queue of
// samples. The input callback pushes and the command goroutine drains;
// neither side ever waits. A push that does not fit is truncated and the
// overflow is counted.
type sampleRing struct {
	buf     []float32
	mask    uint64
	head    atomic.Uint64 // next write, owned by the producer
	tail    atomic.Uint64 // next read, owned by the consumer
	dropped atomic.Uint64
}

// newSampleRing rounds capacity up to a power of two
func newSampleRing(capacity int) *sampleRing {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &sampleRing{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
}

// Push copies as many samples as fit and returns that count
func (r *sampleRing) Push(samples []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()

	free := uint64(len(r.buf)) - (head - tail)
	n := uint64(len(samples))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}

	for i := uint64(0); i < n; i++ {
		r.buf[(head+i)&r.mask] = samples[i]
	}
	r.head.Store(head + n)

	return int(n)
}

// Drain appends every queued sample to dst
func (r *sampleRing) Drain(dst []float32) []float32 {
	tail := r.tail.Load()
	head := r.head.Load()

	for i := tail; i < head; i++ {
		dst = append(dst, r.buf[i&r.mask])
	}
	r.tail.Store(head)

	return dst
}

// Discard drops everything queued. Consumer side only.
func (r *sampleRing) Discard() {
	r.tail.Store(r.head.Load())
}

// Len returns the number of queued samples
func (r *sampleRing) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring size in samples
func (r *sampleRing) Cap() int {
	return len(r.buf)
}

// Dropped returns the total overflow since creation
func (r *sampleRing) Dropped() uint64 {
	return r.dropped.Load()
}
