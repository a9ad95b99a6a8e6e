// Package protocol holds the wire constants shared by the message parsers
// and the per-mode field width tables.
package protocol

// Protocol versions announced in svc_serverdata.
const (
	VersionAncient = 26
	VersionLegacy  = 34
	VersionCurrent = 56
)

// Server to client commands.
const (
	SvcBad = iota
	SvcMuzzleFlash
	SvcMuzzleFlash2
	SvcTempEntity
	SvcLayout
	SvcInventory
	SvcNop
	SvcDisconnect
	SvcReconnect
	SvcSound
	SvcPrint
	SvcStuffText
	SvcServerData
	SvcConfigString
	SvcSpawnBaseline
	SvcCenterPrint
	SvcDownload
	SvcPlayerInfo
	SvcPacketEntities
	SvcDeltaPacketEntities
	SvcFrame
)

var svcNames = [...]string{
	"svc_bad",
	"svc_muzzleflash",
	"svc_muzzleflash2",
	"svc_temp_entity",
	"svc_layout",
	"svc_inventory",
	"svc_nop",
	"svc_disconnect",
	"svc_reconnect",
	"svc_sound",
	"svc_print",
	"svc_stufftext",
	"svc_serverdata",
	"svc_configstring",
	"svc_spawnbaseline",
	"svc_centerprint",
	"svc_download",
	"svc_playerinfo",
	"svc_packetentities",
	"svc_deltapacketentities",
	"svc_frame",
}

// CommandName returns the printable name of a server command.
func CommandName(cmd int) string {
	if cmd < 0 || cmd >= len(svcNames) {
		return "svc_unknown"
	}
	return svcNames[cmd]
}

// Entity state bits. The first byte is always sent; MoreBits1..3 announce
// the following bytes.
const (
	UOrigin1   uint32 = 1 << 0
	UOrigin2   uint32 = 1 << 1
	UAngle2    uint32 = 1 << 2
	UAngle3    uint32 = 1 << 3
	UFrame8    uint32 = 1 << 4
	UEvent     uint32 = 1 << 5
	URemove    uint32 = 1 << 6
	UMoreBits1 uint32 = 1 << 7

	UNumber16  uint32 = 1 << 8
	UOrigin3   uint32 = 1 << 9
	UAngle1    uint32 = 1 << 10
	UModel     uint32 = 1 << 11
	URenderFX8 uint32 = 1 << 12
	UAlpha     uint32 = 1 << 13
	UEffects8  uint32 = 1 << 14
	UMoreBits2 uint32 = 1 << 15

	USkin8      uint32 = 1 << 16
	UFrame16    uint32 = 1 << 17
	URenderFX16 uint32 = 1 << 18
	UEffects16  uint32 = 1 << 19
	UModel2     uint32 = 1 << 20
	UModel3     uint32 = 1 << 21
	UModel4     uint32 = 1 << 22
	UMoreBits3  uint32 = 1 << 23

	UOldOrigin uint32 = 1 << 24
	USkin16    uint32 = 1 << 25
	USound     uint32 = 1 << 26
	USolid     uint32 = 1 << 27
	UModel5    uint32 = 1 << 28
	UModel6    uint32 = 1 << 29
	UAttenuat  uint32 = 1 << 30
)

// Player state bits.
const (
	PSMType        uint32 = 1 << 0
	PSMOrigin      uint32 = 1 << 1
	PSMVelocity    uint32 = 1 << 2
	PSMTime        uint32 = 1 << 3
	PSMFlags       uint32 = 1 << 4
	PSMGravity     uint32 = 1 << 5
	PSMDeltaAngles uint32 = 1 << 6
	PSViewOffset   uint32 = 1 << 7
	PSViewAngles   uint32 = 1 << 8
	PSKickAngles   uint32 = 1 << 9
	PSBlend        uint32 = 1 << 10
	PSFOV          uint32 = 1 << 11
	PSWeaponIndex  uint32 = 1 << 12
	PSWeaponFrame  uint32 = 1 << 13
	PSRDFlags      uint32 = 1 << 14
	PSWeaponSkin   uint32 = 1 << 15
	PSWeaponIndex2 uint32 = 1 << 16
	PSWeaponFrame2 uint32 = 1 << 17
	PSWeaponSkin2  uint32 = 1 << 18
	PSMaxSpeed     uint32 = 1 << 19
	PSDuckSpeed    uint32 = 1 << 20
	PSWaterSpeed   uint32 = 1 << 21
	PSAccel        uint32 = 1 << 22
	PSStopSpeed    uint32 = 1 << 23
)

// svc_sound flags.
const (
	SndVolume      = 1 << 0
	SndAttenuation = 1 << 1
	SndPos         = 1 << 2
	SndEnt         = 1 << 3
	SndOffset      = 1 << 4
)

// Entity events that force a lerp reset.
const (
	EventNone           = 0
	EventItemRespawn    = 1
	EventFootstep       = 2
	EventFallShort      = 3
	EventFall           = 4
	EventFallFar        = 5
	EventPlayerTeleport = 6
	EventOtherTeleport  = 7
)

const (
	// EFTeleporter behaves like an event but persists across frames.
	EFTeleporter uint32 = 0x00008000

	RFFrameLerp uint32 = 64
	RFBeam      uint32 = 128

	PMFNoPrediction = 64
)

// Movement types.
const (
	PMNormal = iota
	PMSpectator
	PMDead
	PMGib
	PMFreeze
)

// Table sizes.
const (
	MaxModelSlots = 6
	MaxStats      = 256
	OldMaxStats   = 32
	MaxAreaBytes  = 32
	MaxItems      = 256

	// EndOfEntities terminates an entity update stream.
	EndOfEntities = 0
)
