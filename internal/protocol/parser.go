package protocol

import (
	"encoding/binary"
	"errors"
	"strings"
)

// ErrOverread is reported when a message claims more bytes than were received.
var ErrOverread = errors.New("read past end of packet")

// Reader is a cursor over one received packet. Reading past the end never
// panics: it returns zero values and latches the overread flag, which the
// dispatcher checks once the packet is consumed.
type Reader struct {
	buf      []byte
	pos      int
	overread bool
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

func (r *Reader) get() byte {
	if r.pos < len(r.buf) {
		b := r.buf[r.pos]
		r.pos++
		return b
	}
	r.overread = true
	return 0
}

// GetInt reads a signed integer written by Writer.PutInt.
func (r *Reader) GetInt() int {
	c := int8(r.get())
	switch c {
	case -128:
		lo := r.get()
		hi := r.get()
		return int(int16(binary.LittleEndian.Uint16([]byte{lo, hi})))
	case -127:
		var b [4]byte
		for i := range b {
			b[i] = r.get()
		}
		return int(int32(binary.LittleEndian.Uint32(b[:])))
	default:
		return int(c)
	}
}

// GetUint reads an unsigned integer written by Writer.PutUint.
func (r *Reader) GetUint() int {
	n := int(r.get())
	if n&0x80 != 0 {
		n += int(r.get())<<7 - 0x80
		if n&(1<<14) != 0 {
			n += int(r.get())<<14 - (1 << 14)
		}
		if n&(1<<21) != 0 {
			n += int(r.get())<<21 - (1 << 21)
		}
		if n&(1<<28) != 0 {
			n |= -1 << 28
		}
	}
	return n
}

// GetString reads a zero-terminated string of at most maxLen bytes.
// Characters beyond maxLen are consumed and discarded.
func (r *Reader) GetString(maxLen int) string {
	var sb strings.Builder
	for {
		c := r.GetInt()
		if c == 0 || r.overread {
			break
		}
		if sb.Len() < maxLen {
			sb.WriteByte(byte(c))
		}
	}
	return sb.String()
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) {
	if n < 0 || n > r.Remaining() {
		r.ForceOverread()
		return
	}
	r.pos += n
}

// Bytes returns the next n raw bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	if n < 0 || n > r.Remaining() {
		r.ForceOverread()
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

// Slice returns buf[from:to] of the underlying packet.
func (r *Reader) Slice(from, to int) []byte {
	if from < 0 || to > len(r.buf) || from > to {
		return nil
	}
	return r.buf[from:to]
}

// Pos returns the cursor position.
func (r *Reader) Pos() int { return r.pos }

// Len returns the packet size.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the unread byte count.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Done reports whether the whole packet has been consumed or overread.
func (r *Reader) Done() bool { return r.pos >= len(r.buf) || r.overread }

// Overread reports whether any read went past the end of the packet.
func (r *Reader) Overread() bool { return r.overread }

// ForceOverread marks the packet as malformed and stops further reads.
func (r *Reader) ForceOverread() {
	r.overread = true
	r.pos = len(r.buf)
}

// Err returns ErrOverread if the packet was overread.
func (r *Reader) Err() error {
	if r.overread {
		return ErrOverread
	}
	return nil
}
