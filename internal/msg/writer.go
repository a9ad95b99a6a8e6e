package msg

import "encoding/binary"

// Writer builds messages in the same encoding Reader consumes. The
// server side of the protocol is not implemented here; Writer exists for
// demo recording and for building fixtures.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with capacity for size bytes.
func NewWriter(size int) *Writer {
	if size < 0 {
		size = 0
	}
	return &Writer{buf: make([]byte, 0, size)}
}

// Data returns the encoded bytes. The slice aliases the writer buffer.
func (w *Writer) Data() []byte {
	return w.buf
}

// Len reports the number of encoded bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset discards the buffered bytes.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) Uint8(v int) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) Int8(v int) {
	w.buf = append(w.buf, byte(int8(v)))
}

func (w *Writer) Int16(v int) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(int16(v)))
}

func (w *Writer) Int32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// Coord truncates toward zero, matching the server encoder.
func (w *Writer) Coord(f float32) {
	w.Int16(int(f * 8))
}

func (w *Writer) Pos(p [3]float32) {
	w.Coord(p[0])
	w.Coord(p[1])
	w.Coord(p[2])
}

func (w *Writer) Angle8(f float32) {
	w.Uint8(int(f*256/360) & 0xff)
}

func (w *Writer) Angle16(f float32) {
	w.Int16(int(f*65536/360) & 0xffff)
}

func (w *Writer) PMCoord(v int32) {
	w.Int32(v)
}

func (w *Writer) Bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) CString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}
