package view

import (
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

// FrameSource looks up stored frames; session.Session implements it.
type FrameSource interface {
	FrameAt(tick int32) (frame.Frame, bool)
}

// Prediction is the client side movement prediction the view blends with
// the server's player state.
type Prediction struct {
	// Enabled is false when prediction is switched off, during demo
	// playback, or when the server set PMF_NO_PREDICTION.
	Enabled bool
	Origin  state.Vec3
	Angles  state.Vec3
	Error   state.Vec3

	Step     float32
	StepTime int32
	Realtime int32
}

// Weapon is the view model placement.
type Weapon struct {
	Model    int        `json:"model"`
	Origin   state.Vec3 `json:"origin"`
	Angles   state.Vec3 `json:"angles"`
	Frame    int        `json:"frame"`
	OldFrame int        `json:"oldFrame"`
	BackLerp float32    `json:"backLerp"`
}

// View is the camera for one rendered frame.
type View struct {
	Origin state.Vec3 `json:"origin"`
	Angles state.Vec3 `json:"angles"`
	FOV    float32    `json:"fov"`
	Blend  [4]float32 `json:"blend"`
	Weapon Weapon     `json:"weapon"`
}

func teleported(a, b state.PMoveState) bool {
	for i := range a.Origin {
		d := a.Origin[i] - b.Origin[i]
		if d < 0 {
			d = -d
		}
		if d > teleportCut {
			return true
		}
	}
	return false
}

// CalcViewValues interpolates the camera between the previous and the
// current frame. The previous frame is only used when it is the valid
// frame right before cur and the player did not teleport.
func CalcViewValues(frames FrameSource, cur frame.Frame, frac float32, pred Prediction) View {
	ps := cur.PlayerState
	ops := ps
	if prev, ok := frames.FrameAt(cur.ServerFrame - 1); ok && prev.Valid {
		ops = prev.PlayerState
	}
	if teleported(ops.PMove, ps.PMove) {
		ops = ps
	}

	var v View
	if pred.Enabled && ps.PMove.Flags&protocol.PMFNoPrediction == 0 {
		backlerp := 1 - frac
		for i := range v.Origin {
			v.Origin[i] = pred.Origin[i] + ops.ViewOffset[i] +
				frac*(ps.ViewOffset[i]-ops.ViewOffset[i]) -
				backlerp*pred.Error[i]
		}
		if delta := pred.Realtime - pred.StepTime; delta >= 0 && delta < stepMillis {
			v.Origin[2] -= pred.Step * float32(stepMillis-delta) * 0.01
		}
	} else {
		from := ops.PMove.WorldOrigin()
		to := ps.PMove.WorldOrigin()
		for i := range v.Origin {
			a := from[i] + ops.ViewOffset[i]
			b := to[i] + ps.ViewOffset[i]
			v.Origin[i] = a + frac*(b-a)
		}
	}

	if ps.PMove.Type < protocol.PMDead {
		v.Angles = pred.Angles
	} else {
		for i := range v.Angles {
			v.Angles[i] = LerpAngle(ops.ViewAngles[i], ps.ViewAngles[i], frac)
		}
	}
	for i := range v.Angles {
		v.Angles[i] += LerpAngle(ops.KickAngles[i], ps.KickAngles[i], frac)
	}

	v.FOV = ops.FOV + frac*(ps.FOV-ops.FOV)
	v.Blend = ps.Blend
	v.Weapon = weapon(ps, ops, v, frac)
	return v
}

func weapon(ps, ops state.PlayerState, v View, frac float32) Weapon {
	w := Weapon{
		Model:    ps.GunIndex,
		Frame:    ps.GunFrame,
		BackLerp: 1 - frac,
	}
	if w.Frame != 0 {
		w.OldFrame = ops.GunFrame
	}
	for i := range w.Origin {
		w.Origin[i] = v.Origin[i] + ops.GunOffset[i] + frac*(ps.GunOffset[i]-ops.GunOffset[i])
		w.Angles[i] = v.Angles[i] + LerpAngle(ops.GunAngles[i], ps.GunAngles[i], frac)
	}
	return w
}
