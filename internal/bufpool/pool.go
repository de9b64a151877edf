package bufpool

import (
	"sync"
)

// Pool recycles byte buffers of one fixed size. The upload handler keeps one
// pool per receive-buffer size so that long-lived connections do not churn
// the allocator on every chunk.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool handing out buffers of exactly size bytes.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of length Size. Callers hand the pointer back with Put.
func (p *Pool) Get() *[]byte {
	b := p.pool.Get().(*[]byte)
	if cap(*b) < p.size {
		nb := make([]byte, p.size)
		return &nb
	}
	*b = (*b)[:p.size]
	return b
}

// Put returns a buffer to the pool. Foreign buffers smaller than Size are
// dropped.
func (p *Pool) Put(b *[]byte) {
	if b == nil || cap(*b) < p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}

// Size returns the length of buffers handed out by Get.
func (p *Pool) Size() int {
	return p.size
}
