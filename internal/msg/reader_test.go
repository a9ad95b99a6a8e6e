package msg

import (
	"errors"
	"testing"
)

func TestReaderDecodesLittleEndianFields(t *testing.T) {
	w := NewWriter(64)
	w.Uint8(200)
	w.Int8(-3)
	w.Int16(-1234)
	w.Int32(-70000)
	w.Coord(100.5)
	w.Angle16(90)
	w.Angle8(-90)
	w.CString("base1")
	w.PMCoord(1 << 20)

	r := NewReader(w.Data())
	if got := r.Uint8(); got != 200 {
		t.Fatalf("expected byte 200, got %d", got)
	}
	if got := r.Int8(); got != -3 {
		t.Fatalf("expected char -3, got %d", got)
	}
	if got := r.Int16(); got != -1234 {
		t.Fatalf("expected short -1234, got %d", got)
	}
	if got := r.Int32(); got != -70000 {
		t.Fatalf("expected long -70000, got %d", got)
	}
	if got := r.Coord(); got != 100.5 {
		t.Fatalf("expected coord 100.5, got %v", got)
	}
	if got := r.Angle16(); got != 90 {
		t.Fatalf("expected angle16 90, got %v", got)
	}
	if got := r.Angle8(); got != -90 {
		t.Fatalf("expected angle8 -90, got %v", got)
	}
	if got := r.CString(); got != "base1" {
		t.Fatalf("expected string base1, got %q", got)
	}
	if got := r.PMCoord(); got != 1<<20 {
		t.Fatalf("expected pmcoord %d, got %d", 1<<20, got)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected message to be consumed, %d bytes left", r.Remaining())
	}
}

func TestReaderOverflowIsSticky(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if got := r.Int16(); got != 0x0201 {
		t.Fatalf("expected 0x0201, got %#x", got)
	}
	if got := r.Int32(); got != 0 {
		t.Fatalf("expected zero value on overflow, got %d", got)
	}
	if !errors.Is(r.Err(), ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", r.Err())
	}
	if got := r.Uint8(); got != 0 {
		t.Fatalf("expected reads after overflow to return zero, got %d", got)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected cursor at end after overflow, got %d remaining", r.Remaining())
	}
}

func TestReaderBytesCopies(t *testing.T) {
	data := []byte{9, 8, 7}
	r := NewReader(data)
	got := r.Bytes(2)
	data[0] = 0
	if got[0] != 9 || got[1] != 8 {
		t.Fatalf("expected copied bytes [9 8], got %v", got)
	}
	if r.Bytes(5) != nil || r.Err() == nil {
		t.Fatalf("expected overflow when reading past end")
	}
}

func TestReaderUnterminatedString(t *testing.T) {
	r := NewReader([]byte("abc"))
	if got := r.CString(); got != "abc" {
		t.Fatalf("expected partial string, got %q", got)
	}
	if !errors.Is(r.Err(), ErrOverflow) {
		t.Fatalf("expected overflow for unterminated string, got %v", r.Err())
	}
}

func TestCoordTruncatesTowardZero(t *testing.T) {
	w := NewWriter(4)
	w.Coord(-0.2)
	w.Coord(12.99)
	r := NewReader(w.Data())
	if got := r.Coord(); got != -0.125 {
		t.Fatalf("expected -0.125, got %v", got)
	}
	if got := r.Coord(); got != 12.875 {
		t.Fatalf("expected 12.875, got %v", got)
	}
}
