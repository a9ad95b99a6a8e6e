// Package state defines the decoded entity and player snapshots.
package state

import "github.com/NeonKnightOA/KMQuake2/internal/protocol"

// Vec3 is a world space vector.
type Vec3 [3]float32

// EntityState is one entity as seen in one server frame.
type EntityState struct {
	Number      int                         `json:"number" msgpack:"number"`
	Origin      Vec3                        `json:"origin" msgpack:"origin"`
	Angles      Vec3                        `json:"angles" msgpack:"angles"`
	OldOrigin   Vec3                        `json:"oldOrigin" msgpack:"old_origin"`
	Models      [protocol.MaxModelSlots]int `json:"models" msgpack:"models"`
	Frame       int                         `json:"frame" msgpack:"frame"`
	Skin        int32                       `json:"skin" msgpack:"skin"`
	Effects     uint32                      `json:"effects" msgpack:"effects"`
	RenderFX    uint32                      `json:"renderfx" msgpack:"renderfx"`
	Alpha       float32                     `json:"alpha,omitempty" msgpack:"alpha"`
	Attenuation float32                     `json:"attenuation,omitempty" msgpack:"attenuation"`
	Sound       int                         `json:"sound,omitempty" msgpack:"sound"`
	Event       int                         `json:"event,omitempty" msgpack:"event"`
	Solid       int                         `json:"solid,omitempty" msgpack:"solid"`
}

// ModelsChanged reports whether any model slot differs.
func (s EntityState) ModelsChanged(other EntityState) bool {
	return s.Models != other.Models
}

// PMoveState is the movement state shared with client prediction. Origin
// and Velocity are fixed point, eight units per world unit.
type PMoveState struct {
	Type        int      `json:"type" msgpack:"type"`
	Origin      [3]int32 `json:"origin" msgpack:"origin"`
	Velocity    [3]int16 `json:"velocity" msgpack:"velocity"`
	Time        int      `json:"time" msgpack:"time"`
	Flags       int      `json:"flags" msgpack:"flags"`
	Gravity     int16    `json:"gravity" msgpack:"gravity"`
	DeltaAngles [3]int16 `json:"deltaAngles" msgpack:"delta_angles"`
}

// WorldOrigin converts the fixed point origin to world units.
func (p PMoveState) WorldOrigin() Vec3 {
	return Vec3{
		float32(p.Origin[0]) * 0.125,
		float32(p.Origin[1]) * 0.125,
		float32(p.Origin[2]) * 0.125,
	}
}

// PlayerState is the local player's movement and view state.
type PlayerState struct {
	PMove PMoveState `json:"pmove" msgpack:"pmove"`

	ViewOffset Vec3 `json:"viewOffset" msgpack:"view_offset"`
	ViewAngles Vec3 `json:"viewAngles" msgpack:"view_angles"`
	KickAngles Vec3 `json:"kickAngles" msgpack:"kick_angles"`

	GunAngles Vec3 `json:"gunAngles" msgpack:"gun_angles"`
	GunOffset Vec3 `json:"gunOffset" msgpack:"gun_offset"`
	GunIndex  int  `json:"gunIndex" msgpack:"gun_index"`
	GunIndex2 int  `json:"gunIndex2,omitempty" msgpack:"gun_index2"`
	GunFrame  int  `json:"gunFrame" msgpack:"gun_frame"`
	GunFrame2 int  `json:"gunFrame2,omitempty" msgpack:"gun_frame2"`
	GunSkin   int  `json:"gunSkin,omitempty" msgpack:"gun_skin"`
	GunSkin2  int  `json:"gunSkin2,omitempty" msgpack:"gun_skin2"`

	MaxSpeed   int `json:"maxSpeed,omitempty" msgpack:"max_speed"`
	DuckSpeed  int `json:"duckSpeed,omitempty" msgpack:"duck_speed"`
	WaterSpeed int `json:"waterSpeed,omitempty" msgpack:"water_speed"`
	Accel      int `json:"accel,omitempty" msgpack:"accel"`
	StopSpeed  int `json:"stopSpeed,omitempty" msgpack:"stop_speed"`

	Blend   [4]float32 `json:"blend" msgpack:"blend"`
	FOV     float32    `json:"fov" msgpack:"fov"`
	RDFlags int        `json:"rdflags" msgpack:"rdflags"`

	Stats [protocol.MaxStats]int16 `json:"stats" msgpack:"stats"`
}
