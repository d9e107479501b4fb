package analyzer

import (
	"io"
	"sync"

	"github.com/harliandi/go-jpeginspect/pkg/metrics"
)

const (
	smallBuffer  = 64 * 1024
	mediumBuffer = 512 * 1024
	largeBuffer  = 5 * 1024 * 1024
	xlargeBuffer = 10 * 1024 * 1024
)

// BufferPool manages reusable upload buffers to reduce GC pressure.
// The pools have no New func so that hits and misses can be counted.
type BufferPool struct {
	small  sync.Pool // ~64KB buffers
	medium sync.Pool // ~512KB buffers (typical JPEG upload)
	large  sync.Pool // ~5MB buffers (large images)
	xlarge sync.Pool // ~10MB buffers (HEIF input)
}

var globalBufferPool = &BufferPool{}

func (bp *BufferPool) class(size int) (*sync.Pool, int, string) {
	switch {
	case size <= smallBuffer:
		return &bp.small, smallBuffer, "small"
	case size <= mediumBuffer:
		return &bp.medium, mediumBuffer, "medium"
	case size <= largeBuffer:
		return &bp.large, largeBuffer, "large"
	default:
		return &bp.xlarge, xlargeBuffer, "xlarge"
	}
}

// GetBuffer returns an empty buffer with at least the specified capacity,
// up to the largest class.
func GetBuffer(size int) *[]byte {
	p, capacity, name := globalBufferPool.class(size)
	if b, ok := p.Get().(*[]byte); ok {
		metrics.RecordPoolHit(name)
		return b
	}
	metrics.RecordPoolMiss(name)
	b := make([]byte, 0, capacity)
	return &b
}

// PutBuffer returns a buffer to the pool
func PutBuffer(b *[]byte) {
	*b = (*b)[:0]

	// Buffers that grew past their class are left to the GC.
	switch capacity := cap(*b); capacity {
	case smallBuffer, mediumBuffer, largeBuffer, xlargeBuffer:
		p, _, _ := globalBufferPool.class(capacity)
		p.Put(b)
	}
}

// PooledBuffer is a reusable buffer wrapper
type PooledBuffer struct {
	buf *[]byte
}

// NewPooledBuffer creates a new pooled buffer
func NewPooledBuffer(size int) *PooledBuffer {
	return &PooledBuffer{buf: GetBuffer(size)}
}

// ReadPooled reads r to EOF into a pooled buffer sized from sizeHint.
// On error the buffer is released.
func ReadPooled(r io.Reader, sizeHint int) (*PooledBuffer, error) {
	p := NewPooledBuffer(sizeHint)
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		p.Append(chunk[:n])
		if err == io.EOF {
			return p, nil
		}
		if err != nil {
			p.Release()
			return nil, err
		}
	}
}

// Bytes returns the underlying byte slice
func (p *PooledBuffer) Bytes() []byte {
	return *p.buf
}

// Append appends data to the buffer
func (p *PooledBuffer) Append(data []byte) {
	*p.buf = append(*p.buf, data...)
}

// Reset clears the buffer
func (p *PooledBuffer) Reset() {
	*p.buf = (*p.buf)[:0]
}

// Len returns the current length
func (p *PooledBuffer) Len() int {
	return len(*p.buf)
}

// Cap returns the capacity
func (p *PooledBuffer) Cap() int {
	return cap(*p.buf)
}

// Release returns the buffer to the pool. Views into Bytes must not be used
// afterwards.
func (p *PooledBuffer) Release() {
	if p == nil || p.buf == nil {
		return
	}
	PutBuffer(p.buf)
	p.buf = nil
}

// ToBytes converts to a new byte slice and releases the pooled buffer
func (p *PooledBuffer) ToBytes() []byte {
	result := make([]byte, len(*p.buf))
	copy(result, *p.buf)
	p.Release()
	return result
}
