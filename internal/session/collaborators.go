package session

import (
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

// Presentation receives the user facing side effects of the message stream.
type Presentation interface {
	EndLoadingPlaque()
	Print(level int, text string)
	CenterPrint(text string)
	StuffText(text string)
	Layout(text string)
	Inventory(items []int16)
}

// Sound is a decoded svc_sound.
type Sound struct {
	Index       int
	Volume      float32
	Attenuation float32
	TimeOffset  float32
	Entity      int
	Channel     int
	// Origin is only meaningful when Positioned is set; otherwise the
	// sound follows Entity.
	Origin     state.Vec3
	Positioned bool
}

// MuzzleFlash is a decoded svc_muzzleflash or svc_muzzleflash2.
type MuzzleFlash struct {
	Entity  int
	Weapon  int
	Monster bool
}

// Effects receives the per frame events of valid frames and the transient
// effect messages.
type Effects interface {
	EntityEvent(s state.EntityState)
	TeleporterParticles(s state.EntityState)
	Sound(snd Sound)
	MuzzleFlash(flash MuzzleFlash)
}

// Predictor compares the server's movement result against client prediction.
type Predictor interface {
	CheckPredictionError(serverFrame int32, ps state.PlayerState)
}

type nopPresentation struct{}

func (nopPresentation) EndLoadingPlaque()  {}
func (nopPresentation) Print(int, string)  {}
func (nopPresentation) CenterPrint(string) {}
func (nopPresentation) StuffText(string)   {}
func (nopPresentation) Layout(string)      {}
func (nopPresentation) Inventory([]int16)  {}

type nopEffects struct{}

func (nopEffects) EntityEvent(state.EntityState)         {}
func (nopEffects) TeleporterParticles(state.EntityState) {}
func (nopEffects) Sound(Sound)                           {}
func (nopEffects) MuzzleFlash(MuzzleFlash)               {}

type nopPredictor struct{}

func (nopPredictor) CheckPredictionError(int32, state.PlayerState) {}
