// Package debughttp serves the client's reconstructed state and metrics
// over HTTP while a demo replays or a connection runs.
package debughttp

import (
	"context"
	"sync"

	"github.com/NeonKnightOA/KMQuake2/internal/dump"
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/internal/view"
)

// Session is what the tap needs from the connection it wraps.
type Session interface {
	dump.Source
	ProcessPacket(ctx context.Context, data []byte) error
	DeltaRequest() int32
	Entity(number int) (frame.CEntity, bool)
	FrameAt(tick int32) (frame.Frame, bool)
	Prediction() (origin, angles state.Vec3)
}

// Store holds the last captured frame. The session itself is single
// threaded, so handlers only ever read these copies.
type Store struct {
	mu       sync.RWMutex
	latest   dump.Snapshot
	records  map[int]frame.CEntity
	prev     frame.Frame
	hasPrev  bool
	pred     view.Prediction
	captured bool
}

func NewStore() *Store {
	return &Store{records: make(map[int]frame.CEntity)}
}

// Capture copies the current frame and the interpolation records of the
// entities it contains.
func (s *Store) Capture(sess Session) error {
	snap, err := dump.Capture(sess)
	if err != nil {
		return err
	}
	records := make(map[int]frame.CEntity, len(snap.Entities))
	for _, ent := range snap.Entities {
		if rec, ok := sess.Entity(ent.Number); ok {
			records[ent.Number] = rec
		}
	}

	prev, hasPrev := sess.FrameAt(snap.Frame.ServerFrame - 1)
	origin, angles := sess.Prediction()

	s.mu.Lock()
	s.latest = snap
	s.records = records
	s.prev, s.hasPrev = prev, hasPrev
	s.pred = view.Prediction{Origin: origin, Angles: angles}
	s.captured = true
	s.mu.Unlock()
	return nil
}

func (s *Store) Latest() (dump.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.captured
}

// FrameAt serves the captured frame and the one stored before it.
func (s *Store) FrameAt(tick int32) (frame.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.captured && s.latest.Frame.ServerFrame == tick:
		return s.latest.Frame, true
	case s.hasPrev && s.prev.ServerFrame == tick:
		return s.prev, true
	}
	return frame.Frame{}, false
}

// Prediction returns the predicted origin and angles seen at the last
// capture. Live players take their view angles from it.
func (s *Store) Prediction() view.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pred
}

func (s *Store) Entity(number int) (frame.CEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[number]
	return rec, ok
}

// Tap forwards packets to a session and captures the state after each one
// that produced a new frame.
type Tap struct {
	sess   Session
	store  *Store
	logger telemetry.Logger
	last   int32
	seen   bool
}

func NewTap(sess Session, store *Store, logger telemetry.Logger) *Tap {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Tap{sess: sess, store: store, logger: logger}
}

func (t *Tap) ProcessPacket(ctx context.Context, data []byte) error {
	err := t.sess.ProcessPacket(ctx, data)
	f := t.sess.Frame()
	if f.ServerFrame != 0 && (!t.seen || f.ServerFrame != t.last) {
		t.seen = true
		t.last = f.ServerFrame
		if cerr := t.store.Capture(t.sess); cerr != nil {
			t.logger.Printf("capture frame %d: %v", f.ServerFrame, cerr)
		}
	}
	return err
}

func (t *Tap) DeltaRequest() int32 {
	return t.sess.DeltaRequest()
}
