// Package delta decodes and encodes bit-flagged entity and player state
// deltas.
package delta

import (
	"sync/atomic"

	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
)

// BitCounts is a histogram of the entity bits seen on the wire. It is safe
// to read while a parser is writing.
type BitCounts struct {
	counts [32]atomic.Uint64
}

// Add counts every bit set in mask.
func (c *BitCounts) Add(mask uint32) {
	if c == nil {
		return
	}
	for i := 0; i < 32; i++ {
		if mask&(1<<i) != 0 {
			c.counts[i].Add(1)
		}
	}
}

// Snapshot copies the current counts.
func (c *BitCounts) Snapshot() [32]uint64 {
	var out [32]uint64
	if c == nil {
		return out
	}
	for i := range out {
		out[i] = c.counts[i].Load()
	}
	return out
}

// Reset zeroes the histogram.
func (c *BitCounts) Reset() {
	if c == nil {
		return
	}
	for i := range c.counts {
		c.counts[i].Store(0)
	}
}

// ParseEntityBits reads an entity header: one to four mask bytes followed
// by the entity number. Overruns surface through r.Err.
func ParseEntityBits(r *msg.Reader, counts *BitCounts) (int, uint32) {
	bits := uint32(r.Uint8())
	if bits&protocol.UMoreBits1 != 0 {
		bits |= uint32(r.Uint8()) << 8
	}
	if bits&protocol.UMoreBits2 != 0 {
		bits |= uint32(r.Uint8()) << 16
	}
	if bits&protocol.UMoreBits3 != 0 {
		bits |= uint32(r.Uint8()) << 24
	}

	counts.Add(bits)

	var number int
	if bits&protocol.UNumber16 != 0 {
		number = r.Int16()
	} else {
		number = r.Uint8()
	}
	return number, bits
}

// WriteEntityBits encodes an entity header, filling in the number width
// and continuation bits.
func WriteEntityBits(w *msg.Writer, number int, bits uint32) uint32 {
	bits = headerBits(number, bits)
	w.Uint8(int(bits & 0xff))
	if bits&protocol.UMoreBits1 != 0 {
		w.Uint8(int(bits>>8) & 0xff)
	}
	if bits&protocol.UMoreBits2 != 0 {
		w.Uint8(int(bits>>16) & 0xff)
	}
	if bits&protocol.UMoreBits3 != 0 {
		w.Uint8(int(bits>>24) & 0xff)
	}
	if bits&protocol.UNumber16 != 0 {
		w.Int16(number)
	} else {
		w.Uint8(number)
	}
	return bits
}

func headerBits(number int, bits uint32) uint32 {
	bits &^= protocol.UMoreBits1 | protocol.UMoreBits2 | protocol.UMoreBits3 | protocol.UNumber16
	if number >= 256 {
		bits |= protocol.UNumber16
	}
	if bits&0xff000000 != 0 {
		bits |= protocol.UMoreBits3 | protocol.UMoreBits2 | protocol.UMoreBits1
	} else if bits&0x00ff0000 != 0 {
		bits |= protocol.UMoreBits2 | protocol.UMoreBits1
	} else if bits&0x0000ff00 != 0 {
		bits |= protocol.UMoreBits1
	}
	return bits
}
