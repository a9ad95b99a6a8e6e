// Package view turns reconciled frames into interpolated positions for
// the current client time.
package view

import (
	"fmt"

	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

const (
	// teleportCut is the pmove origin jump, in fixed point units, past
	// which the view does not interpolate.
	teleportCut = 256 * 8
	// stepMillis is how long a stair step is smoothed over.
	stepMillis = 100
)

// Lerp clamps time into the tick ending at serverTime and returns the
// clamped time with the interpolation fraction. Timedemo always draws the
// latest frame.
func Lerp(time, serverTime int32, timedemo bool) (int32, float32) {
	var frac float32
	switch {
	case time > serverTime:
		time = serverTime
		frac = 1
	case time < serverTime-frame.TickMillis:
		time = serverTime - frame.TickMillis
		frac = 0
	default:
		frac = 1 - float32(serverTime-time)*0.01
	}
	if timedemo {
		frac = 1
	}
	return time, frac
}

// LerpAngle interpolates from a2 to a1 the short way round.
func LerpAngle(a2, a1, frac float32) float32 {
	if a1-a2 > 180 {
		a1 -= 360
	}
	if a1-a2 < -180 {
		a1 += 360
	}
	return a2 + frac*(a1-a2)
}

// RenderEntity is one entity placed for drawing.
type RenderEntity struct {
	Number    int                         `json:"number"`
	Models    [protocol.MaxModelSlots]int `json:"models"`
	Origin    state.Vec3                  `json:"origin"`
	OldOrigin state.Vec3                  `json:"oldOrigin"`
	Angles    state.Vec3                  `json:"angles"`
	Frame     int                         `json:"frame"`
	OldFrame  int                         `json:"oldFrame"`
	BackLerp  float32                     `json:"backLerp"`
	Skin      int32                       `json:"skin"`
	Effects   uint32                      `json:"effects"`
	RenderFX  uint32                      `json:"renderfx"`
	Alpha     float32                     `json:"alpha"`
}

// AddPacketEntities places every entity of a frame between its previous and
// current state and records the result as the entity's LerpOrigin.
// Beams and frame lerped entities are not moved, they carry both ends.
func AddPacketEntities(entities *frame.Entities, list []state.EntityState, frac float32) []RenderEntity {
	out := make([]RenderEntity, 0, len(list))
	for _, s := range list {
		cent := entities.Get(s.Number)
		if cent == nil {
			continue
		}
		ent := RenderEntity{
			Number:   s.Number,
			Models:   s.Models,
			Frame:    s.Frame,
			OldFrame: cent.Prev.Frame,
			BackLerp: 1 - frac,
			Skin:     s.Skin,
			Effects:  s.Effects,
			RenderFX: s.RenderFX,
			Alpha:    s.Alpha,
		}
		if s.RenderFX&(protocol.RFFrameLerp|protocol.RFBeam) != 0 {
			ent.Origin = cent.Current.Origin
			ent.OldOrigin = cent.Current.OldOrigin
		} else {
			for i := range ent.Origin {
				ent.Origin[i] = cent.Prev.Origin[i] + frac*(cent.Current.Origin[i]-cent.Prev.Origin[i])
			}
			ent.OldOrigin = ent.Origin
		}
		for i := range ent.Angles {
			ent.Angles[i] = LerpAngle(cent.Prev.Angles[i], cent.Current.Angles[i], frac)
		}
		cent.LerpOrigin = ent.Origin
		out = append(out, ent)
	}
	return out
}

// SoundOrigin is where sounds attached to an entity are played from.
func SoundOrigin(entities *frame.Entities, number int) (state.Vec3, error) {
	cent := entities.Get(number)
	if cent == nil {
		return state.Vec3{}, fmt.Errorf("%w: sound origin %d", frame.ErrBadEntityNumber, number)
	}
	return cent.LerpOrigin, nil
}
