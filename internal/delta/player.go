package delta

import (
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

func readChar4(r *msg.Reader) state.Vec3 {
	return state.Vec3{
		float32(r.Int8()) * 0.25,
		float32(r.Int8()) * 0.25,
		float32(r.Int8()) * 0.25,
	}
}

func readShorts(r *msg.Reader) [3]int16 {
	return [3]int16{int16(r.Int16()), int16(r.Int16()), int16(r.Int16())}
}

// ParsePlayerState applies a player state delta to from. Pass the zero
// value when there is no delta base.
func ParsePlayerState(r *msg.Reader, from state.PlayerState, p protocol.Policy) state.PlayerState {
	ps := from

	var flags uint32
	if p.PlayerFlagBits == 16 {
		flags = uint32(uint16(r.Int16()))
	} else {
		flags = uint32(r.Int32())
	}

	pm := &ps.PMove
	if flags&protocol.PSMType != 0 {
		pm.Type = r.Uint8()
	}
	if flags&protocol.PSMOrigin != 0 {
		for i := range pm.Origin {
			if p.WideMoveOrigin {
				pm.Origin[i] = r.PMCoord()
			} else {
				pm.Origin[i] = int32(r.Int16())
			}
		}
	}
	if flags&protocol.PSMVelocity != 0 {
		pm.Velocity = readShorts(r)
	}
	if flags&protocol.PSMTime != 0 {
		pm.Time = r.Uint8()
	}
	if flags&protocol.PSMFlags != 0 {
		pm.Flags = r.Uint8()
	}
	if flags&protocol.PSMGravity != 0 {
		pm.Gravity = int16(r.Int16())
	}
	if flags&protocol.PSMDeltaAngles != 0 {
		pm.DeltaAngles = readShorts(r)
	}
	if p.FreezeMovement {
		pm.Type = protocol.PMFreeze
	}

	if flags&protocol.PSViewOffset != 0 {
		ps.ViewOffset = readChar4(r)
	}
	if flags&protocol.PSViewAngles != 0 {
		ps.ViewAngles = state.Vec3{r.Angle16(), r.Angle16(), r.Angle16()}
	}
	if flags&protocol.PSKickAngles != 0 {
		ps.KickAngles = readChar4(r)
	}

	if flags&protocol.PSWeaponIndex != 0 {
		ps.GunIndex = readWidth(r, p.WeaponIndexBits)
	}
	second := p.SecondWeapon == protocol.FieldKeep
	if second && flags&protocol.PSWeaponIndex2 != 0 {
		ps.GunIndex2 = r.Int16()
	}

	frameBits := protocol.PSWeaponFrame
	if second {
		frameBits |= protocol.PSWeaponFrame2
	}
	if flags&frameBits != 0 {
		if flags&protocol.PSWeaponFrame != 0 {
			ps.GunFrame = r.Uint8()
		}
		if second && flags&protocol.PSWeaponFrame2 != 0 {
			ps.GunFrame2 = r.Uint8()
		}
		ps.GunOffset = readChar4(r)
		ps.GunAngles = readChar4(r)
	}

	if p.WeaponSkins == protocol.FieldKeep {
		if flags&protocol.PSWeaponSkin != 0 {
			ps.GunSkin = r.Int16()
		}
		if flags&protocol.PSWeaponSkin2 != 0 {
			ps.GunSkin2 = r.Int16()
		}
	}

	if p.MovementTuning == protocol.FieldKeep {
		if flags&protocol.PSMaxSpeed != 0 {
			ps.MaxSpeed = r.Int16()
		}
		if flags&protocol.PSDuckSpeed != 0 {
			ps.DuckSpeed = r.Int16()
		}
		if flags&protocol.PSWaterSpeed != 0 {
			ps.WaterSpeed = r.Int16()
		}
		if flags&protocol.PSAccel != 0 {
			ps.Accel = r.Int16()
		}
		if flags&protocol.PSStopSpeed != 0 {
			ps.StopSpeed = r.Int16()
		}
	}

	if flags&protocol.PSBlend != 0 {
		for i := range ps.Blend {
			ps.Blend[i] = float32(r.Uint8()) / 255
		}
	}
	if flags&protocol.PSFOV != 0 {
		ps.FOV = float32(r.Uint8())
	}
	if flags&protocol.PSRDFlags != 0 {
		ps.RDFlags = r.Uint8()
	}

	statBits := uint32(r.Int32())
	for i := 0; i < statSlots(p); i++ {
		if statBits&(1<<i) != 0 {
			ps.Stats[i] = int16(r.Int16())
		}
	}
	return ps
}

// statSlots bounds the stat loop to what the 32-bit change mask can
// address, whatever the stat array size.
func statSlots(p protocol.Policy) int {
	n := p.StatSlots
	if n <= 0 || n > 32 {
		n = 32
	}
	if n > protocol.MaxStats {
		n = protocol.MaxStats
	}
	return n
}
