// Package msg implements the little-endian byte cursor used by the network
// message parsers.
package msg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOverflow is reported once a read runs past the end of the message.
var ErrOverflow = errors.New("msg: read past end of message")

const (
	coordScale   = 1.0 / 8
	angle8Scale  = 360.0 / 256
	angle16Scale = 360.0 / 65536
)

// Reader is a cursor over one received message. Reads past the end return
// zero values and latch ErrOverflow; callers check Err once per logical
// unit instead of after every field.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader wraps data without copying it.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the sticky read error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Offset reports how many bytes have been consumed.
func (r *Reader) Offset() int {
	return r.pos
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrOverflow, n, r.pos, len(r.data))
		r.pos = len(r.data)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Uint8 reads one unsigned byte.
func (r *Reader) Uint8() int {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int(b[0])
}

// Int8 reads one signed byte.
func (r *Reader) Int8() int {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int(int8(b[0]))
}

// Int16 reads a signed 16-bit value.
func (r *Reader) Int16() int {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int(int16(binary.LittleEndian.Uint16(b)))
}

// Int32 reads a signed 32-bit value.
func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// Coord reads a 13.3 fixed point world coordinate.
func (r *Reader) Coord() float32 {
	return float32(r.Int16()) * coordScale
}

// Pos reads three coordinates.
func (r *Reader) Pos() [3]float32 {
	return [3]float32{r.Coord(), r.Coord(), r.Coord()}
}

// Angle8 reads an angle compressed to one signed byte.
func (r *Reader) Angle8() float32 {
	return float32(r.Int8()) * angle8Scale
}

// Angle16 reads an angle compressed to a signed short.
func (r *Reader) Angle16() float32 {
	return float32(r.Int16()) * angle16Scale
}

// PMCoord reads a wide movement coordinate used on large maps.
func (r *Reader) PMCoord() int32 {
	return r.Int32()
}

// Bytes reads n raw bytes. The returned slice is a copy.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// CString reads a NUL terminated string. A missing terminator is an
// overflow, the partial string is still returned.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	start := r.pos
	for r.pos < len(r.data) {
		c := r.data[r.pos]
		r.pos++
		if c == 0 {
			return string(r.data[start : r.pos-1])
		}
	}
	r.err = fmt.Errorf("%w: unterminated string at offset %d", ErrOverflow, start)
	return string(r.data[start:])
}
