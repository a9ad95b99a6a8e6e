package delta

import (
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

func widthBits(v int64, bit8, bit16 uint32) uint32 {
	switch {
	case v >= 0 && v < 0x100:
		return bit8
	case v >= -0x8000 && v < 0x8000:
		return bit16
	default:
		return bit8 | bit16
	}
}

// EntityBits computes the delta mask that turns from into to. Fields the
// policy cannot carry are left out.
func EntityBits(from, to state.EntityState, p protocol.Policy) uint32 {
	var bits uint32
	for i, bit := range modelBits {
		if to.Models[i] != from.Models[i] {
			bits |= bit
		}
	}
	if p.ExtraModels != protocol.FieldAbsent {
		for i, bit := range extraBits {
			if to.Models[4+i] != from.Models[4+i] {
				bits |= bit
			}
		}
	}
	if to.Frame != from.Frame {
		if to.Frame >= 0 && to.Frame < 0x100 {
			bits |= protocol.UFrame8
		} else {
			bits |= protocol.UFrame16
		}
	}
	if to.Skin != from.Skin {
		bits |= widthBits(int64(to.Skin), protocol.USkin8, protocol.USkin16)
	}
	if to.Effects != from.Effects {
		bits |= widthBits(int64(int32(to.Effects)), protocol.UEffects8, protocol.UEffects16)
	}
	if to.RenderFX != from.RenderFX {
		bits |= widthBits(int64(int32(to.RenderFX)), protocol.URenderFX8, protocol.URenderFX16)
	}
	for i, bit := range originBits {
		if to.Origin[i] != from.Origin[i] {
			bits |= bit
		}
	}
	for i, bit := range angleBits {
		if to.Angles[i] != from.Angles[i] {
			bits |= bit
		}
	}
	if to.OldOrigin != from.Origin {
		bits |= protocol.UOldOrigin
	}
	if p.Alpha != protocol.FieldAbsent && to.Alpha != from.Alpha {
		bits |= protocol.UAlpha
	}
	if to.Sound != from.Sound {
		bits |= protocol.USound
	}
	if p.Attenuation != protocol.FieldAbsent && to.Attenuation != from.Attenuation {
		bits |= protocol.UAttenuat
	}
	if to.Event != 0 {
		bits |= protocol.UEvent
	}
	if to.Solid != from.Solid {
		bits |= protocol.USolid
	}
	return bits
}

func writeWidth(w *msg.Writer, width, v int) {
	if width == 8 {
		w.Uint8(v)
		return
	}
	w.Int16(v)
}

func writeAngle(w *msg.Writer, width int, f float32) {
	if width == 8 {
		w.Angle8(f)
		return
	}
	w.Angle16(f)
}

func writeFlags32(w *msg.Writer, bits, bit8, bit16 uint32, v int32) {
	switch {
	case bits&(bit8|bit16) == bit8|bit16:
		w.Int32(v)
	case bits&bit8 != 0:
		w.Uint8(int(v))
	case bits&bit16 != 0:
		w.Int16(int(v))
	}
}

// WriteEntity encodes the fields of to selected by bits, header included.
// It returns the mask actually written.
func WriteEntity(w *msg.Writer, to state.EntityState, bits uint32, p protocol.Policy) uint32 {
	bits = WriteEntityBits(w, to.Number, bits)

	for i, bit := range modelBits {
		if bits&bit != 0 {
			writeWidth(w, p.ModelBits, to.Models[i])
		}
	}
	if p.ExtraModels != protocol.FieldAbsent {
		for i, bit := range extraBits {
			if bits&bit != 0 {
				w.Int16(to.Models[4+i])
			}
		}
	}
	if bits&protocol.UFrame8 != 0 {
		w.Uint8(to.Frame)
	}
	if bits&protocol.UFrame16 != 0 {
		w.Int16(to.Frame)
	}
	writeFlags32(w, bits, protocol.USkin8, protocol.USkin16, to.Skin)
	writeFlags32(w, bits, protocol.UEffects8, protocol.UEffects16, int32(to.Effects))
	writeFlags32(w, bits, protocol.URenderFX8, protocol.URenderFX16, int32(to.RenderFX))
	for i, bit := range originBits {
		if bits&bit != 0 {
			w.Coord(to.Origin[i])
		}
	}
	for i, bit := range angleBits {
		if bits&bit != 0 {
			writeAngle(w, p.AngleBits, to.Angles[i])
		}
	}
	if bits&protocol.UOldOrigin != 0 {
		w.Pos(to.OldOrigin)
	}
	if bits&protocol.UAlpha != 0 && p.Alpha != protocol.FieldAbsent {
		w.Uint8(int(to.Alpha*255 + 0.5))
	}
	if bits&protocol.USound != 0 {
		writeWidth(w, p.SoundBits, to.Sound)
	}
	if bits&protocol.UAttenuat != 0 && p.Attenuation != protocol.FieldAbsent {
		w.Uint8(int(to.Attenuation*64 + 0.5))
	}
	if bits&protocol.UEvent != 0 {
		w.Uint8(to.Event)
	}
	if bits&protocol.USolid != 0 {
		w.Int16(to.Solid)
	}
	return bits
}

// WriteDeltaEntity encodes the difference between from and to. Nothing is
// written when the states match unless force is set.
func WriteDeltaEntity(w *msg.Writer, from, to state.EntityState, p protocol.Policy, force bool) uint32 {
	bits := EntityBits(from, to, p)
	if bits == 0 && !force {
		return 0
	}
	return WriteEntity(w, to, bits, p)
}

// WriteRemove encodes a removal of number.
func WriteRemove(w *msg.Writer, number int) {
	WriteEntityBits(w, number, protocol.URemove)
}

// WriteEndOfEntities terminates an entity stream.
func WriteEndOfEntities(w *msg.Writer) {
	w.Uint8(0)
	w.Uint8(protocol.EndOfEntities)
}

// PlayerStateBits computes the flags needed to turn from into to.
func PlayerStateBits(from, to state.PlayerState, p protocol.Policy) uint32 {
	var flags uint32
	a, b := from.PMove, to.PMove
	if a.Type != b.Type {
		flags |= protocol.PSMType
	}
	if a.Origin != b.Origin {
		flags |= protocol.PSMOrigin
	}
	if a.Velocity != b.Velocity {
		flags |= protocol.PSMVelocity
	}
	if a.Time != b.Time {
		flags |= protocol.PSMTime
	}
	if a.Flags != b.Flags {
		flags |= protocol.PSMFlags
	}
	if a.Gravity != b.Gravity {
		flags |= protocol.PSMGravity
	}
	if a.DeltaAngles != b.DeltaAngles {
		flags |= protocol.PSMDeltaAngles
	}
	if from.ViewOffset != to.ViewOffset {
		flags |= protocol.PSViewOffset
	}
	if from.ViewAngles != to.ViewAngles {
		flags |= protocol.PSViewAngles
	}
	if from.KickAngles != to.KickAngles {
		flags |= protocol.PSKickAngles
	}
	if from.GunIndex != to.GunIndex {
		flags |= protocol.PSWeaponIndex
	}
	if from.GunFrame != to.GunFrame || from.GunOffset != to.GunOffset || from.GunAngles != to.GunAngles {
		flags |= protocol.PSWeaponFrame
	}
	if p.SecondWeapon == protocol.FieldKeep {
		if from.GunIndex2 != to.GunIndex2 {
			flags |= protocol.PSWeaponIndex2
		}
		if from.GunFrame2 != to.GunFrame2 {
			flags |= protocol.PSWeaponFrame2
		}
	}
	if p.WeaponSkins == protocol.FieldKeep {
		if from.GunSkin != to.GunSkin {
			flags |= protocol.PSWeaponSkin
		}
		if from.GunSkin2 != to.GunSkin2 {
			flags |= protocol.PSWeaponSkin2
		}
	}
	if p.MovementTuning == protocol.FieldKeep {
		if from.MaxSpeed != to.MaxSpeed {
			flags |= protocol.PSMaxSpeed
		}
		if from.DuckSpeed != to.DuckSpeed {
			flags |= protocol.PSDuckSpeed
		}
		if from.WaterSpeed != to.WaterSpeed {
			flags |= protocol.PSWaterSpeed
		}
		if from.Accel != to.Accel {
			flags |= protocol.PSAccel
		}
		if from.StopSpeed != to.StopSpeed {
			flags |= protocol.PSStopSpeed
		}
	}
	if from.Blend != to.Blend {
		flags |= protocol.PSBlend
	}
	if from.FOV != to.FOV {
		flags |= protocol.PSFOV
	}
	if from.RDFlags != to.RDFlags {
		flags |= protocol.PSRDFlags
	}
	return flags
}

func writeChar4(w *msg.Writer, v state.Vec3) {
	for _, f := range v {
		w.Int8(int(f * 4))
	}
}

// WritePlayerState encodes the delta from from to to, stats included.
func WritePlayerState(w *msg.Writer, from, to state.PlayerState, p protocol.Policy) uint32 {
	flags := PlayerStateBits(from, to, p)
	if p.PlayerFlagBits == 16 {
		w.Int16(int(flags & 0xffff))
	} else {
		w.Int32(int32(flags))
	}

	pm := to.PMove
	if flags&protocol.PSMType != 0 {
		w.Uint8(pm.Type)
	}
	if flags&protocol.PSMOrigin != 0 {
		for _, v := range pm.Origin {
			if p.WideMoveOrigin {
				w.PMCoord(v)
			} else {
				w.Int16(int(v))
			}
		}
	}
	if flags&protocol.PSMVelocity != 0 {
		for _, v := range pm.Velocity {
			w.Int16(int(v))
		}
	}
	if flags&protocol.PSMTime != 0 {
		w.Uint8(pm.Time)
	}
	if flags&protocol.PSMFlags != 0 {
		w.Uint8(pm.Flags)
	}
	if flags&protocol.PSMGravity != 0 {
		w.Int16(int(pm.Gravity))
	}
	if flags&protocol.PSMDeltaAngles != 0 {
		for _, v := range pm.DeltaAngles {
			w.Int16(int(v))
		}
	}

	if flags&protocol.PSViewOffset != 0 {
		writeChar4(w, to.ViewOffset)
	}
	if flags&protocol.PSViewAngles != 0 {
		for _, f := range to.ViewAngles {
			w.Angle16(f)
		}
	}
	if flags&protocol.PSKickAngles != 0 {
		writeChar4(w, to.KickAngles)
	}

	if flags&protocol.PSWeaponIndex != 0 {
		writeWidth(w, p.WeaponIndexBits, to.GunIndex)
	}
	if flags&protocol.PSWeaponIndex2 != 0 {
		w.Int16(to.GunIndex2)
	}
	if flags&(protocol.PSWeaponFrame|protocol.PSWeaponFrame2) != 0 {
		if flags&protocol.PSWeaponFrame != 0 {
			w.Uint8(to.GunFrame)
		}
		if flags&protocol.PSWeaponFrame2 != 0 {
			w.Uint8(to.GunFrame2)
		}
		writeChar4(w, to.GunOffset)
		writeChar4(w, to.GunAngles)
	}
	if flags&protocol.PSWeaponSkin != 0 {
		w.Int16(to.GunSkin)
	}
	if flags&protocol.PSWeaponSkin2 != 0 {
		w.Int16(to.GunSkin2)
	}
	if flags&protocol.PSMaxSpeed != 0 {
		w.Int16(to.MaxSpeed)
	}
	if flags&protocol.PSDuckSpeed != 0 {
		w.Int16(to.DuckSpeed)
	}
	if flags&protocol.PSWaterSpeed != 0 {
		w.Int16(to.WaterSpeed)
	}
	if flags&protocol.PSAccel != 0 {
		w.Int16(to.Accel)
	}
	if flags&protocol.PSStopSpeed != 0 {
		w.Int16(to.StopSpeed)
	}
	if flags&protocol.PSBlend != 0 {
		for _, f := range to.Blend {
			w.Uint8(int(f*255 + 0.5))
		}
	}
	if flags&protocol.PSFOV != 0 {
		w.Uint8(int(to.FOV))
	}
	if flags&protocol.PSRDFlags != 0 {
		w.Uint8(to.RDFlags)
	}

	var statBits uint32
	for i := 0; i < statSlots(p); i++ {
		if from.Stats[i] != to.Stats[i] {
			statBits |= 1 << i
		}
	}
	w.Int32(int32(statBits))
	for i := 0; i < statSlots(p); i++ {
		if statBits&(1<<i) != 0 {
			w.Int16(int(to.Stats[i]))
		}
	}
	return flags
}
