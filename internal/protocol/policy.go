package protocol

import (
	"fmt"
	"strings"
)

// Mode selects the wire layout of entity and player deltas. It is fixed
// for the lifetime of a connection.
type Mode int

const (
	ModeLegacy Mode = iota
	ModeCurrent
)

func (m Mode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeCurrent:
		return "current"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ModeForVersion maps a server protocol version to its delta layout.
func ModeForVersion(version int) (Mode, error) {
	switch version {
	case VersionAncient, VersionLegacy:
		return ModeLegacy, nil
	case VersionCurrent:
		return ModeCurrent, nil
	default:
		return ModeLegacy, fmt.Errorf("unsupported protocol version %d", version)
	}
}

// ParseMode accepts "legacy" or "current".
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "legacy", "old":
		return ModeLegacy, nil
	case "current", "new":
		return ModeCurrent, nil
	default:
		return ModeLegacy, fmt.Errorf("unknown protocol mode %q", name)
	}
}

// Features toggles the optional structure members a client build carries.
// A disabled entity member is still consumed from the wire and dropped; a
// disabled player member is not on the wire at all.
type Features struct {
	NewEntityStateMembers bool
	LoopSoundAttenuation  bool
	LargeMapSize          bool
	NewPlayerStateMembers bool
}

// DefaultFeatures matches the stock client build.
func DefaultFeatures() Features {
	return Features{
		NewEntityStateMembers: true,
		LoopSoundAttenuation:  true,
		NewPlayerStateMembers: true,
	}
}

// ParseFeatures reads a comma separated list of feature names. An empty
// list disables every feature.
func ParseFeatures(list string) (Features, error) {
	var f Features
	for _, raw := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
		case "new_entity", "new_entity_state_members":
			f.NewEntityStateMembers = true
		case "loop_attenuation", "loop_sound_attenuation":
			f.LoopSoundAttenuation = true
		case "large_map", "large_map_size":
			f.LargeMapSize = true
		case "new_player", "new_player_state_members":
			f.NewPlayerStateMembers = true
		default:
			return Features{}, fmt.Errorf("unknown feature %q", raw)
		}
	}
	return f, nil
}

// Field describes what the decoder does with an optional field.
type Field int

const (
	// FieldAbsent fields are never on the wire.
	FieldAbsent Field = iota
	// FieldKeep fields are read and stored.
	FieldKeep
	// FieldSkip fields are read and discarded.
	FieldSkip
)

// Policy is the per-field width table for one mode and feature set.
type Policy struct {
	Mode Mode

	ModelBits   int
	ExtraModels Field
	AngleBits   int
	SoundBits   int
	Alpha       Field
	Attenuation Field

	PlayerFlagBits  int
	WideMoveOrigin  bool
	WeaponIndexBits int
	SecondWeapon    Field
	WeaponSkins     Field
	MovementTuning  Field
	StatSlots       int

	// FreezeMovement forces PMFreeze, set during demo playback.
	FreezeMovement bool
}

// PolicyFor builds the width table for a mode.
func PolicyFor(mode Mode, f Features) Policy {
	if mode == ModeLegacy {
		return Policy{
			Mode:            ModeLegacy,
			ModelBits:       8,
			ExtraModels:     FieldAbsent,
			AngleBits:       8,
			SoundBits:       8,
			Alpha:           FieldAbsent,
			Attenuation:     FieldAbsent,
			PlayerFlagBits:  16,
			WeaponIndexBits: 8,
			SecondWeapon:    FieldAbsent,
			WeaponSkins:     FieldAbsent,
			MovementTuning:  FieldAbsent,
			StatSlots:       OldMaxStats,
		}
	}

	entityMember := FieldSkip
	if f.NewEntityStateMembers {
		entityMember = FieldKeep
	}
	attenuation := FieldAbsent
	if f.LoopSoundAttenuation {
		attenuation = entityMember
	}
	playerMember := FieldAbsent
	if f.NewPlayerStateMembers {
		playerMember = FieldKeep
	}

	return Policy{
		Mode:            ModeCurrent,
		ModelBits:       16,
		ExtraModels:     entityMember,
		AngleBits:       16,
		SoundBits:       16,
		Alpha:           entityMember,
		Attenuation:     attenuation,
		PlayerFlagBits:  32,
		WideMoveOrigin:  f.LargeMapSize,
		WeaponIndexBits: 16,
		SecondWeapon:    playerMember,
		WeaponSkins:     playerMember,
		MovementTuning:  playerMember,
		// Only 32 stat bits fit in the change mask.
		StatSlots: OldMaxStats,
	}
}
