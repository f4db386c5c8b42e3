// Package pool recycles render buffers. Every live render and diff goes
// through one, so the hot path stays allocation-light.
package pool

import (
	"bytes"
	"sync"
)

// MaxPooledBuffer is the largest capacity returned to the pool. A page
// shell with the full sidebar stays well under it.
const MaxPooledBuffer = 64 * 1024

var buffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer returns an empty buffer.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer recycles buf unless it grew past MaxPooledBuffer.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxPooledBuffer {
		return
	}
	buffers.Put(buf)
}
