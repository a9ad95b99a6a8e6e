package protocol

import "testing"

func TestModeForVersion(t *testing.T) {
	cases := []struct {
		version int
		mode    Mode
		wantErr bool
	}{
		{version: VersionAncient, mode: ModeLegacy},
		{version: VersionLegacy, mode: ModeLegacy},
		{version: VersionCurrent, mode: ModeCurrent},
		{version: 35, wantErr: true},
	}
	for _, tc := range cases {
		mode, err := ModeForVersion(tc.version)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for version %d", tc.version)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for version %d: %v", tc.version, err)
		}
		if mode != tc.mode {
			t.Fatalf("expected %s for version %d, got %s", tc.mode, tc.version, mode)
		}
	}
}

func TestPolicyWidths(t *testing.T) {
	legacy := PolicyFor(ModeLegacy, DefaultFeatures())
	if legacy.ModelBits != 8 || legacy.AngleBits != 8 || legacy.SoundBits != 8 {
		t.Fatalf("unexpected legacy entity widths: %+v", legacy)
	}
	if legacy.Alpha != FieldAbsent || legacy.ExtraModels != FieldAbsent || legacy.Attenuation != FieldAbsent {
		t.Fatalf("legacy mode must not carry extended entity members: %+v", legacy)
	}
	if legacy.PlayerFlagBits != 16 || legacy.WeaponIndexBits != 8 {
		t.Fatalf("unexpected legacy player widths: %+v", legacy)
	}

	current := PolicyFor(ModeCurrent, DefaultFeatures())
	if current.ModelBits != 16 || current.AngleBits != 16 || current.SoundBits != 16 {
		t.Fatalf("unexpected current entity widths: %+v", current)
	}
	if current.Alpha != FieldKeep || current.ExtraModels != FieldKeep || current.Attenuation != FieldKeep {
		t.Fatalf("expected extended members kept by default: %+v", current)
	}
	if current.StatSlots != OldMaxStats {
		t.Fatalf("expected %d addressable stats, got %d", OldMaxStats, current.StatSlots)
	}
}

func TestPolicyDisabledFeatures(t *testing.T) {
	p := PolicyFor(ModeCurrent, Features{LoopSoundAttenuation: true})
	if p.ExtraModels != FieldSkip || p.Alpha != FieldSkip {
		t.Fatalf("expected disabled entity members to be skipped, got %+v", p)
	}
	if p.Attenuation != FieldSkip {
		t.Fatalf("expected attenuation to be skipped without new entity members, got %v", p.Attenuation)
	}
	if p.SecondWeapon != FieldAbsent || p.MovementTuning != FieldAbsent {
		t.Fatalf("expected player members absent, got %+v", p)
	}

	p = PolicyFor(ModeCurrent, Features{NewEntityStateMembers: true})
	if p.Attenuation != FieldAbsent {
		t.Fatalf("expected attenuation absent when the feature is off, got %v", p.Attenuation)
	}
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures("new_entity, large_map")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.NewEntityStateMembers || !f.LargeMapSize || f.NewPlayerStateMembers || f.LoopSoundAttenuation {
		t.Fatalf("unexpected features: %+v", f)
	}
	if _, err := ParseFeatures("bogus"); err == nil {
		t.Fatalf("expected error for unknown feature")
	}
}

func TestCommandName(t *testing.T) {
	if got := CommandName(SvcFrame); got != "svc_frame" {
		t.Fatalf("expected svc_frame, got %s", got)
	}
	if got := CommandName(200); got != "svc_unknown" {
		t.Fatalf("expected svc_unknown, got %s", got)
	}
}
