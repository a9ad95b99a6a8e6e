package delta

import (
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

var (
	modelBits  = [4]uint32{protocol.UModel, protocol.UModel2, protocol.UModel3, protocol.UModel4}
	extraBits  = [2]uint32{protocol.UModel5, protocol.UModel6}
	originBits = [3]uint32{protocol.UOrigin1, protocol.UOrigin2, protocol.UOrigin3}
	angleBits  = [3]uint32{protocol.UAngle1, protocol.UAngle2, protocol.UAngle3}
)

func readWidth(r *msg.Reader, width int) int {
	if width == 8 {
		return r.Uint8()
	}
	return r.Int16()
}

func readAngle(r *msg.Reader, width int) float32 {
	if width == 8 {
		return r.Angle8()
	}
	return r.Angle16()
}

// readFlags32 decodes the byte/short/long selector shared by skin, effects
// and renderfx: both bits set selects a full 32-bit read.
func readFlags32(r *msg.Reader, bits, bit8, bit16 uint32) (int32, bool) {
	switch {
	case bits&(bit8|bit16) == bit8|bit16:
		return r.Int32(), true
	case bits&bit8 != 0:
		return int32(r.Uint8()), true
	case bits&bit16 != 0:
		return int32(r.Int16()), true
	default:
		return 0, false
	}
}

// ParseEntity applies a delta to from. Every field not named by bits keeps
// the value from from, except Event which is cleared and OldOrigin which
// takes from.Origin. A zero mask consumes no bytes.
func ParseEntity(r *msg.Reader, from state.EntityState, number int, bits uint32, p protocol.Policy) state.EntityState {
	to := from
	to.OldOrigin = from.Origin
	to.Number = number

	for i, bit := range modelBits {
		if bits&bit != 0 {
			to.Models[i] = readWidth(r, p.ModelBits)
		}
	}
	if p.ExtraModels != protocol.FieldAbsent {
		for i, bit := range extraBits {
			if bits&bit == 0 {
				continue
			}
			v := r.Int16()
			if p.ExtraModels == protocol.FieldKeep {
				to.Models[4+i] = v
			}
		}
	}

	if bits&protocol.UFrame8 != 0 {
		to.Frame = r.Uint8()
	}
	if bits&protocol.UFrame16 != 0 {
		to.Frame = r.Int16()
	}

	if v, ok := readFlags32(r, bits, protocol.USkin8, protocol.USkin16); ok {
		to.Skin = v
	}
	if v, ok := readFlags32(r, bits, protocol.UEffects8, protocol.UEffects16); ok {
		to.Effects = uint32(v)
	}
	if v, ok := readFlags32(r, bits, protocol.URenderFX8, protocol.URenderFX16); ok {
		to.RenderFX = uint32(v)
	}

	for i, bit := range originBits {
		if bits&bit != 0 {
			to.Origin[i] = r.Coord()
		}
	}
	for i, bit := range angleBits {
		if bits&bit != 0 {
			to.Angles[i] = readAngle(r, p.AngleBits)
		}
	}
	if bits&protocol.UOldOrigin != 0 {
		to.OldOrigin = r.Pos()
	}

	if bits&protocol.UAlpha != 0 && p.Alpha != protocol.FieldAbsent {
		v := r.Uint8()
		if p.Alpha == protocol.FieldKeep {
			to.Alpha = float32(v) / 255
		}
	}

	if bits&protocol.USound != 0 {
		to.Sound = readWidth(r, p.SoundBits)
	}

	if bits&protocol.UAttenuat != 0 && p.Attenuation != protocol.FieldAbsent {
		v := r.Uint8()
		if p.Attenuation == protocol.FieldKeep {
			to.Attenuation = float32(v) / 64
		}
	}

	if bits&protocol.UEvent != 0 {
		to.Event = r.Uint8()
	} else {
		to.Event = 0
	}

	if bits&protocol.USolid != 0 {
		to.Solid = r.Int16()
	}
	return to
}
