// Package demo reads and writes recorded server streams: a sequence of
// little endian int32 length prefixed packets terminated by a length of -1.
package demo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxBlockSize bounds one recorded packet.
const MaxBlockSize = 0x40000

const endOfDemo = -1

var ErrBlockTooLarge = errors.New("demo block too large")

// Reader yields the recorded packets of a demo in order.
type Reader struct {
	r     io.Reader
	buf   []byte
	count int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next packet. The slice is reused by the following call.
// io.EOF reports the end marker or a stream that ends on a block boundary.
func (r *Reader) Next() ([]byte, error) {
	var size int32
	if err := binary.Read(r.r, binary.LittleEndian, &size); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("demo block %d length: %w", r.count, err)
	}
	if size == endOfDemo {
		return nil, io.EOF
	}
	if size < 0 || size > MaxBlockSize {
		return nil, fmt.Errorf("%w: block %d is %d bytes", ErrBlockTooLarge, r.count, size)
	}
	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return nil, fmt.Errorf("demo block %d: %w", r.count, err)
	}
	r.count++
	return r.buf, nil
}

// Count is the number of packets read so far.
func (r *Reader) Count() int {
	return r.count
}

// Writer records packets. Close writes the end marker but does not close
// the underlying writer.
type Writer struct {
	w      io.Writer
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteBlock(data []byte) error {
	if w.closed {
		return errors.New("demo writer closed")
	}
	if len(data) > MaxBlockSize {
		return fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, len(data))
	}
	if err := binary.Write(w.w, binary.LittleEndian, int32(len(data))); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return binary.Write(w.w, binary.LittleEndian, int32(endOfDemo))
}
