// Package snapshot builds the per-tick world state and fans it out to every
// authenticated connection from one shared allocation.
package snapshot

import (
	"sync/atomic"
)

// SharedBuffer is an immutable byte region referenced by any number of
// in-flight frames. The release callback runs exactly once, when the last
// reference is dropped. References may be dropped from any goroutine.
type SharedBuffer struct {
	data      []byte
	uses      atomic.Int32
	released  atomic.Bool
	onRelease func()
}

// NewSharedBuffer wraps data with a single reference held by the caller.
// The caller must drop it with Release once it stops issuing frames.
func NewSharedBuffer(data []byte, onRelease func()) *SharedBuffer {
	b := &SharedBuffer{data: data, onRelease: onRelease}
	b.uses.Store(1)
	return b
}

// Frame returns a window [off, off+n) of the buffer holding its own reference.
func (b *SharedBuffer) Frame(off, n int, reliable bool) *Frame {
	b.uses.Add(1)
	return &Frame{buf: b, data: b.data[off : off+n : off+n], reliable: reliable}
}

// Release drops one reference.
func (b *SharedBuffer) Release() {
	n := b.uses.Add(-1)
	if n < 0 {
		panic("snapshot: shared buffer released too many times")
	}
	if n == 0 && b.released.CompareAndSwap(false, true) {
		if b.onRelease != nil {
			b.onRelease()
		}
	}
}

// Uses returns the current reference count.
func (b *SharedBuffer) Uses() int32 { return b.uses.Load() }

// Released reports whether the buffer has been freed.
func (b *SharedBuffer) Released() bool { return b.released.Load() }

// Len returns the size of the buffer.
func (b *SharedBuffer) Len() int { return len(b.data) }

// Frame is one outbound payload. Frames cut from a SharedBuffer reference it
// until Done is called; standalone frames own their bytes.
type Frame struct {
	buf      *SharedBuffer
	data     []byte
	reliable bool
	done     atomic.Bool
}

// NewFrame creates a standalone frame over data.
func NewFrame(data []byte, reliable bool) *Frame {
	return &Frame{data: data, reliable: reliable}
}

// Bytes returns the payload. It must not be used after Done.
func (f *Frame) Bytes() []byte { return f.data }

// Reliable reports whether the frame must be delivered reliably.
func (f *Frame) Reliable() bool { return f.reliable }

// Shared reports whether the frame is a window into a shared buffer.
func (f *Frame) Shared() bool { return f.buf != nil }

// Done marks the send as completed or failed. Only the first call has an effect.
func (f *Frame) Done() {
	if !f.done.CompareAndSwap(false, true) {
		return
	}
	if f.buf != nil {
		f.buf.Release()
	}
}
