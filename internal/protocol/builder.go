package protocol

import (
	"encoding/binary"
	"fmt"
)

// Writer appends wire-encoded values to a growable byte buffer.
// All methods return the writer so calls can be chained.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with room for size bytes before reallocating.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Reset clears the writer for reuse, keeping its allocation.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// PutByte writes a single raw byte.
func (w *Writer) PutByte(v byte) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// PutInt writes a signed integer.
// Format: one byte for -127..127, 0x80 + int16 LE, or 0x81 + int32 LE.
func (w *Writer) PutInt(n int) *Writer {
	switch {
	case n < 128 && n > -127:
		w.buf = append(w.buf, byte(int8(n)))
	case n < 0x8000 && n >= -0x8000:
		w.buf = append(w.buf, 0x80)
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(int16(n)))
	default:
		w.buf = append(w.buf, 0x81)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(int32(n)))
	}
	return w
}

// PutUint writes an unsigned integer as 7-bit groups, low group first.
// Values outside 0..2^21 always take four bytes.
func (w *Writer) PutUint(n int) *Writer {
	switch {
	case n < 0 || n >= 1<<21:
		w.buf = append(w.buf,
			byte(0x80|(n&0x7F)),
			byte(0x80|((n>>7)&0x7F)),
			byte(0x80|((n>>14)&0x7F)),
			byte(n>>21))
	case n < 1<<7:
		w.buf = append(w.buf, byte(n))
	case n < 1<<14:
		w.buf = append(w.buf, byte(0x80|(n&0x7F)), byte(n>>7))
	default:
		w.buf = append(w.buf, byte(0x80|(n&0x7F)), byte(0x80|((n>>7)&0x7F)), byte(n>>14))
	}
	return w
}

// PutString writes a zero-terminated string, one int per byte.
func (w *Writer) PutString(s string) *Writer {
	for i := 0; i < len(s); i++ {
		w.PutInt(int(int8(s[i])))
	}
	w.buf = append(w.buf, 0)
	return w
}

// Put writes raw bytes.
func (w *Writer) Put(data []byte) *Writer {
	w.buf = append(w.buf, data...)
	return w
}

// PutInts writes a sequence of ints.
func (w *Writer) PutInts(vals ...int) *Writer {
	for _, v := range vals {
		w.PutInt(v)
	}
	return w
}

// Bytes returns the encoded bytes. The slice aliases the writer's storage.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Copy returns a copy of the encoded bytes that survives a Reset.
func (w *Writer) Copy() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// String returns a hex dump of the current buffer for debugging.
func (w *Writer) String() string {
	return fmt.Sprintf("Writer[%d bytes]: %x", len(w.buf), w.buf)
}

// Build encodes a message from ints and strings in order. Any other value
// type panics, as it indicates a programming error at the call site.
func Build(vals ...any) []byte {
	w := NewWriter(32)
	for _, v := range vals {
		switch x := v.(type) {
		case int:
			w.PutInt(x)
		case MessageType:
			w.PutInt(int(x))
		case string:
			w.PutString(x)
		case []byte:
			w.Put(x)
		case bool:
			if x {
				w.PutInt(1)
			} else {
				w.PutInt(0)
			}
		default:
			panic(fmt.Sprintf("protocol.Build: unsupported value %T", v))
		}
	}
	return w.Bytes()
}
