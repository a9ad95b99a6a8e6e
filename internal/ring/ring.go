// Package ring provides the fixed-capacity circular containers backing the
// parse entity log and the frame history.
package ring

import "fmt"

func checkCapacity(capacity int) error {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return fmt.Errorf("ring: capacity %d is not a positive power of two", capacity)
	}
	return nil
}

// Window addresses Count consecutive entries of a Log starting at the
// absolute index Start.
type Window struct {
	Start uint64 `json:"start" msgpack:"start"`
	Count int    `json:"count" msgpack:"count"`
}

// End returns the absolute index one past the last entry.
func (w Window) End() uint64 {
	return w.Start + uint64(w.Count)
}

// Log is an append-only circular log. Appends return an absolute index that
// never wraps; entries older than Capacity appends are overwritten.
type Log[T any] struct {
	items []T
	mask  uint64
	next  uint64
}

// NewLog allocates a log; capacity must be a power of two.
func NewLog[T any](capacity int) (*Log[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return &Log[T]{items: make([]T, capacity), mask: uint64(capacity - 1)}, nil
}

func (l *Log[T]) Capacity() int {
	return len(l.items)
}

// Next is the absolute index the next Append will use.
func (l *Log[T]) Next() uint64 {
	return l.next
}

// Append stores v and returns its absolute index.
func (l *Log[T]) Append(v T) uint64 {
	index := l.next
	l.items[index&l.mask] = v
	l.next++
	return index
}

// Live reports whether index has been written and not yet overwritten.
func (l *Log[T]) Live(index uint64) bool {
	return index < l.next && l.next-index <= uint64(len(l.items))
}

// At returns the entry at an absolute index if it is still live.
func (l *Log[T]) At(index uint64) (T, bool) {
	if !l.Live(index) {
		var zero T
		return zero, false
	}
	return l.items[index&l.mask], true
}

// Within reports whether a window starting at start is close enough to the
// write cursor that margin further appends cannot overwrite it.
func (l *Log[T]) Within(start uint64, margin int) bool {
	if start > l.next {
		return false
	}
	limit := len(l.items) - margin
	if limit < 0 {
		return false
	}
	return l.next-start <= uint64(limit)
}

// Reset rewinds the cursor and clears stored entries.
func (l *Log[T]) Reset() {
	clear(l.items)
	l.next = 0
}

// Slots is a tick keyed history. A tick lands in slot tick&mask and
// replaces whatever was stored Capacity ticks earlier.
type Slots[T any] struct {
	entries []slot[T]
	mask    uint32
}

type slot[T any] struct {
	tick  int32
	set   bool
	value T
}

// NewSlots allocates a history; capacity must be a power of two.
func NewSlots[T any](capacity int) (*Slots[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return &Slots[T]{entries: make([]slot[T], capacity), mask: uint32(capacity - 1)}, nil
}

func (s *Slots[T]) Capacity() int {
	return len(s.entries)
}

func (s *Slots[T]) index(tick int32) uint32 {
	return uint32(tick) & s.mask
}

// Store writes v under tick, overwriting the slot.
func (s *Slots[T]) Store(tick int32, v T) {
	s.entries[s.index(tick)] = slot[T]{tick: tick, set: true, value: v}
}

// Lookup returns the value stored for tick. It fails when the slot is empty
// or has been reused by another tick.
func (s *Slots[T]) Lookup(tick int32) (T, bool) {
	e := s.entries[s.index(tick)]
	if !e.set || e.tick != tick {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Occupant reports which tick currently owns the slot tick maps to.
func (s *Slots[T]) Occupant(tick int32) (int32, bool) {
	e := s.entries[s.index(tick)]
	return e.tick, e.set
}

// Reset empties every slot.
func (s *Slots[T]) Reset() {
	clear(s.entries)
}
