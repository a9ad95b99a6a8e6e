// Package frame reconciles server frames: it merges entity updates against
// the delta base, keeps the parse entity log and the frame history, and
// maintains the per-entity interpolation records.
package frame

import (
	"errors"
	"fmt"

	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/ring"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

var (
	// ErrBadEntityNumber is fatal: the stream named an entity outside the table.
	ErrBadEntityNumber = errors.New("bad entity number")

	// Delta base rejections. They invalidate the frame but parsing goes on.
	ErrDeltaTooOld      = errors.New("delta frame too old")
	ErrDeltaEvicted     = errors.New("delta parse entities too old")
	ErrDeltaFromInvalid = errors.New("delta from invalid frame")

	// ErrHistoryLost reports an old frame entity overwritten during a merge.
	ErrHistoryLost = errors.New("old frame entity no longer in parse log")
	// ErrRemoveMismatch reports a removal that does not match the old frame cursor.
	ErrRemoveMismatch = errors.New("U_REMOVE: oldnum != newnum")
)

const (
	// TickMillis is the server frame duration.
	TickMillis = 100
	// SnapDistance is the per axis move, in world units, beyond which an
	// entity is not interpolated.
	SnapDistance = 512
	// snapFrame marks an entity record as not seen last frame.
	snapFrame int32 = -99
	// freshTrail restarts diminishing particle trails.
	freshTrail = 1024
)

// Config sizes the reconciliation buffers.
type Config struct {
	MaxEdicts     int
	ParseEntities int
	UpdateBackup  int
	// HistoryMargin is how far behind the parse log cursor a delta base's
	// entities may start, in entries short of the log capacity.
	HistoryMargin int
}

func DefaultConfig() Config {
	return Config{
		MaxEdicts:     1024,
		ParseEntities: 1024,
		UpdateBackup:  16,
		HistoryMargin: 128,
	}
}

func (c Config) validate() error {
	if c.MaxEdicts <= 0 {
		return fmt.Errorf("max edicts must be positive, got %d", c.MaxEdicts)
	}
	if c.HistoryMargin < 0 || c.HistoryMargin >= c.ParseEntities {
		return fmt.Errorf("history margin %d must be in [0, %d)", c.HistoryMargin, c.ParseEntities)
	}
	return nil
}

// Frame is one server tick as reconstructed by the client.
type Frame struct {
	Valid       bool              `json:"valid" msgpack:"valid"`
	ServerFrame int32             `json:"serverFrame" msgpack:"server_frame"`
	DeltaFrame  int32             `json:"deltaFrame" msgpack:"delta_frame"`
	ServerTime  int32             `json:"serverTime" msgpack:"server_time"`
	AreaBits    []byte            `json:"areaBits,omitempty" msgpack:"area_bits"`
	PlayerState state.PlayerState `json:"playerState" msgpack:"player_state"`
	Entities    ring.Window       `json:"entities" msgpack:"entities"`

	// Diagnostics collects the soft errors raised while parsing the frame.
	Diagnostics error `json:"-" msgpack:"-"`
}

// Baselines holds the per entity defaults sent during level load.
type Baselines struct {
	items []state.EntityState
}

func NewBaselines(maxEdicts int) *Baselines {
	return &Baselines{items: make([]state.EntityState, maxEdicts)}
}

func (b *Baselines) Get(number int) (state.EntityState, bool) {
	if number < 0 || number >= len(b.items) {
		return state.EntityState{}, false
	}
	return b.items[number], true
}

func (b *Baselines) Set(s state.EntityState) error {
	if s.Number < 0 || s.Number >= len(b.items) {
		return fmt.Errorf("%w: baseline %d", ErrBadEntityNumber, s.Number)
	}
	b.items[s.Number] = s
	return nil
}

func (b *Baselines) Reset() {
	clear(b.items)
}

// CEntity is the interpolation record of one entity number.
type CEntity struct {
	Current     state.EntityState `json:"current" msgpack:"current"`
	Prev        state.EntityState `json:"prev" msgpack:"prev"`
	ServerFrame int32             `json:"serverFrame" msgpack:"server_frame"`
	TrailCount  int               `json:"trailCount" msgpack:"trail_count"`
	LerpOrigin  state.Vec3        `json:"lerpOrigin" msgpack:"lerp_origin"`
	// Anchored is set when the last update re-anchored Prev instead of
	// shifting Current into it.
	Anchored bool `json:"anchored" msgpack:"anchored"`
}

// Entities is the fixed capacity CEntity table keyed by entity number.
type Entities struct {
	items []CEntity
}

func NewEntities(maxEdicts int) *Entities {
	e := &Entities{items: make([]CEntity, maxEdicts)}
	e.Reset()
	return e
}

func (e *Entities) Len() int {
	return len(e.items)
}

// Get returns the record for number, or nil when out of range.
func (e *Entities) Get(number int) *CEntity {
	if number < 0 || number >= len(e.items) {
		return nil
	}
	return &e.items[number]
}

func (e *Entities) Reset() {
	for i := range e.items {
		e.items[i] = CEntity{ServerFrame: snapFrame}
	}
}

func moved(a, b state.Vec3) bool {
	for i := range a {
		d := int(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		if d > SnapDistance {
			return true
		}
	}
	return false
}

// Update records s as the entity's state for serverFrame. Entities that
// were not in the previous frame, or that changed model, jumped more than
// SnapDistance, or teleported, get Prev anchored to s so they pop instead of
// sliding.
func (c *CEntity) Update(s state.EntityState, serverFrame int32) {
	teleported := s.Event == protocol.EventPlayerTeleport || s.Event == protocol.EventOtherTeleport
	if s.ModelsChanged(c.Current) || moved(s.Origin, c.Current.Origin) || teleported {
		c.ServerFrame = snapFrame
	}

	c.Anchored = c.ServerFrame != serverFrame-1
	if c.Anchored {
		c.TrailCount = freshTrail
		c.Prev = s
		anchor := s.OldOrigin
		if s.Event == protocol.EventOtherTeleport {
			anchor = s.Origin
		}
		c.Prev.Origin = anchor
		c.LerpOrigin = anchor
	} else {
		c.Prev = c.Current
	}

	c.ServerFrame = serverFrame
	c.Current = s
}
