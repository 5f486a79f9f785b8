package audio

import (
	"sync"

	"github.com/andrepxx/go-dsp-guitar/circular"
)

// Ring holds the most recent samples of a capture stream on top of a
// circular buffer. Writes never block: when full, the oldest samples are
// overwritten. It is safe for one writer (the device callback) and any
// number of readers.
type Ring struct {
	mu     sync.Mutex
	buf    circular.Buffer
	size   int
	filled int // number of valid samples, saturates at size
	in     []float64
	out    []float64
}

// NewRing creates a ring holding the most recent size samples.
func NewRing(size int) *Ring {
	if size < 0 {
		size = 0
	}
	return &Ring{
		buf:  circular.CreateBuffer(size),
		size: size,
		out:  make([]float64, size),
	}
}

// Write appends samples, overwriting the oldest when the ring is full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 || len(samples) == 0 {
		return
	}

	// Only the tail of an oversized write can survive.
	if len(samples) > r.size {
		samples = samples[len(samples)-r.size:]
	}
	if cap(r.in) < len(samples) {
		r.in = make([]float64, len(samples), r.size)
	}
	in := r.in[:len(samples)]
	for i, s := range samples {
		in[i] = float64(s)
	}
	r.buf.Enqueue(in...)

	r.filled = min(r.filled+len(samples), r.size)
}

// Latest copies the most recent samples into dst, oldest first, and returns
// how many were copied. Fewer than len(dst) are copied while the ring is
// still filling or when dst is larger than the ring.
func (r *Ring) Latest(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := min(len(dst), r.filled)
	if count == 0 {
		return 0
	}
	if err := r.buf.Retrieve(r.out); err != nil {
		return 0
	}
	for i, v := range r.out[r.size-count:] {
		dst[i] = float32(v)
	}
	return count
}

// Len returns the number of valid samples held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return r.size
}

// Reset discards all held samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = circular.CreateBuffer(r.size)
	r.filled = 0
}
