package delta

import (
	"testing"

	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
)

func legacyPolicy() protocol.Policy {
	return protocol.PolicyFor(protocol.ModeLegacy, protocol.DefaultFeatures())
}

func currentPolicy() protocol.Policy {
	return protocol.PolicyFor(protocol.ModeCurrent, protocol.DefaultFeatures())
}

func sampleEntity() state.EntityState {
	return state.EntityState{
		Number:    12,
		Origin:    state.Vec3{10, 20, 30},
		Angles:    state.Vec3{0, 90, 0},
		OldOrigin: state.Vec3{1, 2, 3},
		Models:    [protocol.MaxModelSlots]int{3, 4, 0, 0, 0, 0},
		Frame:     7,
		Skin:      2,
		Effects:   1,
		RenderFX:  4,
		Sound:     9,
		Event:     protocol.EventFootstep,
		Solid:     31,
	}
}

func TestParseEntityZeroMaskIsIdentity(t *testing.T) {
	for _, p := range []protocol.Policy{legacyPolicy(), currentPolicy()} {
		from := sampleEntity()
		from.Event = 0
		r := msg.NewReader([]byte{0xAA, 0xBB})
		got := ParseEntity(r, from, 44, 0, p)
		if r.Offset() != 0 {
			t.Fatalf("%s: expected no bytes consumed, got %d", p.Mode, r.Offset())
		}
		want := from
		want.OldOrigin = from.Origin
		want.Number = 44
		if got != want {
			t.Fatalf("%s: expected %+v, got %+v", p.Mode, want, got)
		}
	}
}

func TestParseEntityClearsEventWhenBitUnset(t *testing.T) {
	from := sampleEntity()
	from.Event = protocol.EventPlayerTeleport
	got := ParseEntity(msg.NewReader(nil), from, from.Number, 0, currentPolicy())
	if got.Event != 0 {
		t.Fatalf("expected event cleared, got %d", got.Event)
	}

	w := msg.NewWriter(4)
	w.Uint8(protocol.EventFallFar)
	got = ParseEntity(msg.NewReader(w.Data()), got, from.Number, protocol.UEvent, currentPolicy())
	if got.Event != protocol.EventFallFar {
		t.Fatalf("expected event %d, got %d", protocol.EventFallFar, got.Event)
	}
	got = ParseEntity(msg.NewReader(nil), got, from.Number, 0, currentPolicy())
	if got.Event != 0 {
		t.Fatalf("expected event not to persist into the next tick, got %d", got.Event)
	}
}

func decodeEntity(t *testing.T, data []byte, from state.EntityState, p protocol.Policy) state.EntityState {
	t.Helper()
	r := msg.NewReader(data)
	number, bits := ParseEntityBits(r, nil)
	got := ParseEntity(r, from, number, bits, p)
	if r.Err() != nil {
		t.Fatalf("unexpected read error: %v", r.Err())
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected message consumed, %d bytes left", r.Remaining())
	}
	return got
}

func TestEntityRoundTripCurrent(t *testing.T) {
	p := currentPolicy()
	from := state.EntityState{Number: 300}
	to := state.EntityState{
		Number:      300,
		Origin:      state.Vec3{100, -32.5, 0.125},
		Angles:      state.Vec3{90, 45, -45},
		OldOrigin:   state.Vec3{8, 8, 8},
		Models:      [protocol.MaxModelSlots]int{1, 300, 0, 4, 7, 9},
		Frame:       300,
		Skin:        0x01020304,
		Effects:     protocol.EFTeleporter,
		RenderFX:    protocol.RFBeam,
		Alpha:       float32(128) / 255,
		Attenuation: 0.5,
		Sound:       400,
		Event:       protocol.EventPlayerTeleport,
		Solid:       31,
	}
	w := msg.NewWriter(64)
	bits := WriteDeltaEntity(w, from, to, p, false)
	if bits&(protocol.USkin8|protocol.USkin16) != protocol.USkin8|protocol.USkin16 {
		t.Fatalf("expected 32-bit skin selector, got bits %#x", bits)
	}
	got := decodeEntity(t, w.Data(), from, p)
	if got != to {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", to, got)
	}
}

func TestEntityRoundTripLegacy(t *testing.T) {
	p := legacyPolicy()
	from := state.EntityState{Number: 5}
	to := state.EntityState{
		Number:    5,
		Origin:    state.Vec3{-4096, 12.5, 7},
		Angles:    state.Vec3{45, -45, 90},
		OldOrigin: state.Vec3{0, 0, 0},
		Models:    [protocol.MaxModelSlots]int{255, 2, 3, 4, 0, 0},
		Frame:     12,
		Skin:      -1,
		Effects:   0xffff8000,
		RenderFX:  0x10000,
		Sound:     200,
		Solid:     8,
	}
	w := msg.NewWriter(64)
	WriteDeltaEntity(w, from, to, p, false)
	got := decodeEntity(t, w.Data(), from, p)
	if got != to {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", to, got)
	}
}

func TestEntityAnglePrecisionByMode(t *testing.T) {
	from := state.EntityState{Number: 1}
	to := from
	to.Angles = state.Vec3{0, 1, 0}

	legacy := msg.NewWriter(16)
	WriteDeltaEntity(legacy, from, to, legacyPolicy(), false)
	gotLegacy := decodeEntity(t, legacy.Data(), from, legacyPolicy())

	current := msg.NewWriter(16)
	WriteDeltaEntity(current, from, to, currentPolicy(), false)
	gotCurrent := decodeEntity(t, current.Data(), from, currentPolicy())

	if gotLegacy.Angles[1] != 0 {
		t.Fatalf("expected 1 degree to collapse to 0 at 8-bit precision, got %v", gotLegacy.Angles[1])
	}
	if diff := 1 - gotCurrent.Angles[1]; diff < 0 || diff > 360.0/65536 {
		t.Fatalf("expected 16-bit angle within one step of 1, got %v", gotCurrent.Angles[1])
	}
}

func TestParseEntityWidthsFollowPolicy(t *testing.T) {
	bits := protocol.UModel | protocol.USound | protocol.UAlpha | protocol.UModel5

	// legacy: one byte each for model and sound, alpha and model5 are not on the wire.
	w := msg.NewWriter(8)
	w.Uint8(9)
	w.Uint8(11)
	r := msg.NewReader(w.Data())
	got := ParseEntity(r, state.EntityState{}, 1, bits, legacyPolicy())
	if got.Models[0] != 9 || got.Sound != 11 || got.Alpha != 0 || got.Models[4] != 0 {
		t.Fatalf("unexpected legacy decode: %+v", got)
	}
	if r.Remaining() != 0 || r.Err() != nil {
		t.Fatalf("expected exact legacy consumption, remaining=%d err=%v", r.Remaining(), r.Err())
	}

	// current without the extended members: model5 and alpha are consumed and dropped.
	p := protocol.PolicyFor(protocol.ModeCurrent, protocol.Features{})
	w = msg.NewWriter(8)
	w.Int16(900)
	w.Int16(77)
	w.Uint8(255)
	w.Int16(1000)
	r = msg.NewReader(w.Data())
	got = ParseEntity(r, state.EntityState{}, 1, bits, p)
	if got.Models[0] != 900 || got.Sound != 1000 {
		t.Fatalf("unexpected current decode: %+v", got)
	}
	if got.Models[4] != 0 || got.Alpha != 0 {
		t.Fatalf("expected skipped members to stay zero, got %+v", got)
	}
	if r.Remaining() != 0 || r.Err() != nil {
		t.Fatalf("expected exact current consumption, remaining=%d err=%v", r.Remaining(), r.Err())
	}
}

func TestParseEntityBothFrameBitsReadsBoth(t *testing.T) {
	w := msg.NewWriter(4)
	w.Uint8(5)
	w.Int16(1000)
	r := msg.NewReader(w.Data())
	got := ParseEntity(r, state.EntityState{}, 1, protocol.UFrame8|protocol.UFrame16, currentPolicy())
	if got.Frame != 1000 {
		t.Fatalf("expected the 16-bit frame to win, got %d", got.Frame)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected both frame fields consumed")
	}
}

func TestParseEntityOverflowIsReported(t *testing.T) {
	r := msg.NewReader([]byte{1})
	ParseEntity(r, state.EntityState{}, 1, protocol.UOrigin1|protocol.UOrigin2, currentPolicy())
	if r.Err() == nil {
		t.Fatalf("expected overflow error")
	}
}
