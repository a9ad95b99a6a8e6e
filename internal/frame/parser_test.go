package frame

import (
	"context"
	"errors"
	"testing"

	"github.com/NeonKnightOA/KMQuake2/internal/delta"
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
	"github.com/NeonKnightOA/KMQuake2/logging/netframe"
	"github.com/NeonKnightOA/KMQuake2/logging/sinks"
)

func currentPolicy() protocol.Policy {
	return protocol.PolicyFor(protocol.ModeCurrent, protocol.DefaultFeatures())
}

func newTestParser(t *testing.T, opts ...Option) (*Parser, *sinks.MemorySink) {
	t.Helper()
	sink := sinks.NewMemorySink()
	opts = append([]Option{WithPublisher(sink)}, opts...)
	p, err := NewParser(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	return p, sink
}

func entity(number int, x float32) state.EntityState {
	return state.EntityState{
		Number: number,
		Origin: state.Vec3{x, 0, 0},
		Models: [protocol.MaxModelSlots]int{1},
	}
}

// keyframe parses a frame holding states, every entity sent in full
// against an empty baseline.
func keyframe(t *testing.T, p *Parser, tick int32, states ...state.EntityState) Frame {
	t.Helper()
	pol := currentPolicy()
	w := msg.NewWriter(1024)
	for _, s := range states {
		delta.WriteDeltaEntity(w, state.EntityState{}, s, pol, true)
	}
	delta.WriteEndOfEntities(w)
	f := Frame{Valid: true, ServerFrame: tick, DeltaFrame: -1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), nil, &f, pol); err != nil {
		t.Fatalf("keyframe %d: %v", tick, err)
	}
	p.Store(f)
	return f
}

func numbers(t *testing.T, p *Parser, f Frame) []int {
	t.Helper()
	list, err := p.FrameEntities(f)
	if err != nil {
		t.Fatalf("frame entities: %v", err)
	}
	out := make([]int, len(list))
	for i, s := range list {
		out[i] = s.Number
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFirstFrameDeltasFromBaseline(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()

	w := msg.NewWriter(64)
	delta.WriteEntity(w, state.EntityState{Number: 5, Origin: state.Vec3{100, 0, 0}}, protocol.UOrigin1, pol)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), nil, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}

	ent := p.Entities().Get(5)
	if ent.Current.Origin[0] != 100 {
		t.Fatalf("expected current origin x 100, got %v", ent.Current.Origin[0])
	}
	if ent.Prev.Origin != (state.Vec3{}) {
		t.Fatalf("expected prev anchored at baseline origin, got %v", ent.Prev.Origin)
	}
	if !ent.Anchored || ent.TrailCount != freshTrail {
		t.Fatalf("expected fresh anchored record, got anchored=%v trail=%d", ent.Anchored, ent.TrailCount)
	}
	if ent.ServerFrame != 1 {
		t.Fatalf("expected server frame 1, got %d", ent.ServerFrame)
	}
}

func TestRemoveDropsEntityAndCarriesTheRest(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()
	old := keyframe(t, p, 1, entity(3, 10), entity(7, 20), entity(9, 30))

	w := msg.NewWriter(64)
	delta.WriteRemove(w, 7)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 2, DeltaFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), &old, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := numbers(t, p, f); !equalInts(got, []int{3, 9}) {
		t.Fatalf("expected [3 9], got %v", got)
	}
	if f.Diagnostics != nil {
		t.Fatalf("expected no diagnostics, got %v", f.Diagnostics)
	}
}

func TestMergeKeepsAscendingOrder(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()
	old := keyframe(t, p, 1, entity(2, 1), entity(4, 2), entity(6, 3))

	moved := entity(4, 50)
	w := msg.NewWriter(128)
	delta.WriteDeltaEntity(w, entity(4, 2), moved, pol, false)
	delta.WriteDeltaEntity(w, state.EntityState{}, entity(5, 9), pol, true)
	delta.WriteDeltaEntity(w, state.EntityState{}, entity(8, 11), pol, true)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 2, DeltaFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), &old, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	list, err := p.FrameEntities(f)
	if err != nil {
		t.Fatalf("frame entities: %v", err)
	}
	want := []int{2, 4, 5, 6, 8}
	if len(list) != len(want) {
		t.Fatalf("expected %d entities, got %d", len(want), len(list))
	}
	for i, s := range list {
		if s.Number != want[i] {
			t.Fatalf("expected entity %d at %d, got %d", want[i], i, s.Number)
		}
	}
	if list[1].Origin[0] != 50 {
		t.Fatalf("expected delta applied to entity 4, got %v", list[1].Origin)
	}
	if list[0].Origin[0] != 1 || list[3].Origin[0] != 3 {
		t.Fatalf("expected unchanged entities carried, got %v and %v", list[0].Origin, list[3].Origin)
	}
	ent := p.Entities().Get(4)
	if ent.Anchored || ent.Prev.Origin[0] != 2 {
		t.Fatalf("expected entity 4 to interpolate from 2, got anchored=%v prev=%v", ent.Anchored, ent.Prev.Origin)
	}
}

func TestRemoveMismatchInvalidatesFrame(t *testing.T) {
	p, sink := newTestParser(t)
	pol := currentPolicy()
	old := keyframe(t, p, 1, entity(3, 1), entity(9, 2))

	w := msg.NewWriter(64)
	delta.WriteRemove(w, 5)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 2, DeltaFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), &old, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := numbers(t, p, f); !equalInts(got, []int{3, 9}) {
		t.Fatalf("expected old entities kept, got %v", got)
	}
	if !errors.Is(f.Diagnostics, ErrRemoveMismatch) {
		t.Fatalf("expected remove mismatch diagnostic, got %v", f.Diagnostics)
	}
	if f.Valid {
		t.Fatalf("expected frame invalidated by the mismatch")
	}
	if ent := p.Entities().Get(3); ent.ServerFrame != 1 {
		t.Fatalf("expected entity 3 record left at frame 1, got %d", ent.ServerFrame)
	}
	events := sink.OfType(netframe.EventRemoveMismatch)
	if len(events) != 1 {
		t.Fatalf("expected one remove mismatch event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(netframe.RemovePayload)
	if !ok || payload.Number != 5 || payload.Expected != 9 {
		t.Fatalf("unexpected payload %+v", events[0].Payload)
	}
}

func TestEntityNumberOutOfRangeIsFatal(t *testing.T) {
	p, _ := newTestParser(t)
	w := msg.NewWriter(16)
	delta.WriteEntityBits(w, DefaultConfig().MaxEdicts, 0)

	f := Frame{Valid: true, ServerFrame: 1}
	err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), nil, &f, currentPolicy())
	if !errors.Is(err, ErrBadEntityNumber) {
		t.Fatalf("expected bad entity number, got %v", err)
	}
}

func TestTruncatedStreamIsFatal(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()
	w := msg.NewWriter(64)
	delta.WriteDeltaEntity(w, state.EntityState{}, entity(4, 10), pol, true)

	f := Frame{Valid: true, ServerFrame: 1}
	err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), nil, &f, pol)
	if !errors.Is(err, msg.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestInvalidFrameSkipsEntityRecords(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()
	w := msg.NewWriter(64)
	delta.WriteDeltaEntity(w, state.EntityState{}, entity(4, 10), pol, true)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: false, ServerFrame: 1, DeltaFrame: 0}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), nil, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Entities.Count != 1 {
		t.Fatalf("expected entity logged, got count %d", f.Entities.Count)
	}
	if ent := p.Entities().Get(4); ent.ServerFrame != snapFrame {
		t.Fatalf("expected untouched record, got server frame %d", ent.ServerFrame)
	}
}

func TestDeltaBaseRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("slot reused", func(t *testing.T) {
		p, sink := newTestParser(t)
		keyframe(t, p, 1)
		keyframe(t, p, 1+int32(DefaultConfig().UpdateBackup))
		if _, err := p.DeltaBase(ctx, 20, 1); !errors.Is(err, ErrDeltaTooOld) {
			t.Fatalf("expected too old, got %v", err)
		}
		if len(sink.OfType(netframe.EventDeltaTooOld)) != 1 {
			t.Fatalf("expected a delta_too_old event")
		}
	})

	t.Run("base invalid", func(t *testing.T) {
		p, sink := newTestParser(t)
		p.Store(Frame{ServerFrame: 3})
		if _, err := p.DeltaBase(ctx, 4, 3); !errors.Is(err, ErrDeltaFromInvalid) {
			t.Fatalf("expected from invalid, got %v", err)
		}
		if len(sink.OfType(netframe.EventDeltaFromInvalid)) != 1 {
			t.Fatalf("expected a delta_from_invalid event")
		}
	})

	t.Run("entities evicted", func(t *testing.T) {
		p, sink := newTestParser(t)
		base := keyframe(t, p, 1, entity(1, 0))
		limit := p.cfg.ParseEntities - p.cfg.HistoryMargin
		for i := 0; i < limit; i++ {
			p.log.Append(entity(2, 0))
		}
		if _, err := p.DeltaBase(ctx, 2, base.ServerFrame); !errors.Is(err, ErrDeltaEvicted) {
			t.Fatalf("expected evicted, got %v", err)
		}
		events := sink.OfType(netframe.EventDeltaEvicted)
		if len(events) != 1 {
			t.Fatalf("expected a delta_history_evicted event")
		}
		if payload := events[0].Payload.(netframe.DeltaPayload); payload.Distance != uint64(limit+1) {
			t.Fatalf("expected distance %d, got %d", limit+1, payload.Distance)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		p, _ := newTestParser(t)
		keyframe(t, p, 7, entity(1, 0))
		base, err := p.DeltaBase(ctx, 8, 7)
		if err != nil {
			t.Fatalf("expected base, got %v", err)
		}
		if base.ServerFrame != 7 || base.Entities.Count != 1 {
			t.Fatalf("unexpected base %+v", base)
		}
	})
}

func TestOverwrittenOldEntitiesInvalidateFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParseEntities = 16
	cfg.HistoryMargin = 4
	p, err := NewParser(cfg)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	old := keyframe(t, p, 1, entity(3, 1), entity(4, 2))
	for i := 0; i < cfg.ParseEntities; i++ {
		p.log.Append(entity(9, 0))
	}

	pol := currentPolicy()
	w := msg.NewWriter(64)
	delta.WriteDeltaEntity(w, state.EntityState{}, entity(6, 3), pol, true)
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 2, DeltaFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), &old, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Valid {
		t.Fatalf("expected frame invalidated")
	}
	if !errors.Is(f.Diagnostics, ErrHistoryLost) {
		t.Fatalf("expected history lost, got %v", f.Diagnostics)
	}
	if got := numbers(t, p, f); !equalInts(got, []int{6}) {
		t.Fatalf("expected only the streamed entity, got %v", got)
	}
}

func TestHistoryLostMidMergeLeavesRecordsAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParseEntities = 8
	cfg.HistoryMargin = 0
	p, err := NewParser(cfg)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	old := keyframe(t, p, 1, entity(10, 1), entity(11, 1), entity(12, 1), entity(13, 1), entity(14, 1), entity(15, 1))

	pol := currentPolicy()
	w := msg.NewWriter(128)
	for _, n := range []int{1, 2, 3} {
		delta.WriteDeltaEntity(w, state.EntityState{}, entity(n, 50), pol, true)
	}
	delta.WriteEndOfEntities(w)

	f := Frame{Valid: true, ServerFrame: 2, DeltaFrame: 1}
	if err := p.ParsePacketEntities(context.Background(), msg.NewReader(w.Data()), &old, &f, pol); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Valid {
		t.Fatalf("expected frame invalidated")
	}
	if !errors.Is(f.Diagnostics, ErrHistoryLost) {
		t.Fatalf("expected history lost, got %v", f.Diagnostics)
	}
	for _, n := range []int{1, 2, 3} {
		if ent := p.Entities().Get(n); ent.ServerFrame != snapFrame {
			t.Fatalf("expected entity %d untouched, got server frame %d", n, ent.ServerFrame)
		}
	}
	if ent := p.Entities().Get(10); ent.ServerFrame != 1 || ent.Current.Origin[0] != 1 {
		t.Fatalf("expected entity 10 left at frame 1, got frame %d origin %v", ent.ServerFrame, ent.Current.Origin)
	}
}

func TestEntityTracesFollowShowNet(t *testing.T) {
	for _, tc := range []struct {
		level int
		want  int
	}{
		{level: 0, want: 0},
		{level: ShowNetFrames, want: 0},
		{level: ShowNetEntities, want: 2},
	} {
		p, sink := newTestParser(t, WithShowNet(tc.level))
		keyframe(t, p, 1, entity(1, 0), entity(2, 0))
		if got := len(sink.OfType(netframe.EventEntityTrace)); got != tc.want {
			t.Fatalf("shownet %d: expected %d traces, got %d", tc.level, tc.want, got)
		}
	}
}

func TestParseBaseline(t *testing.T) {
	p, _ := newTestParser(t)
	pol := currentPolicy()
	w := msg.NewWriter(64)
	want := entity(300, 64)
	delta.WriteDeltaEntity(w, state.EntityState{}, want, pol, true)

	if err := p.ParseBaseline(msg.NewReader(w.Data()), pol); err != nil {
		t.Fatalf("parse baseline: %v", err)
	}
	got, ok := p.Baselines().Get(300)
	if !ok || got.Origin != want.Origin || got.Models != want.Models {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestBitCountsRecorded(t *testing.T) {
	counts := &delta.BitCounts{}
	p, _ := newTestParser(t, WithBitCounts(counts))
	keyframe(t, p, 1, entity(1, 5))
	snap := counts.Snapshot()
	if snap[0] != 1 {
		t.Fatalf("expected origin1 counted once, got %d", snap[0])
	}
}

func TestResetClearsHistory(t *testing.T) {
	p, _ := newTestParser(t)
	keyframe(t, p, 1, entity(1, 5))
	p.Reset()
	if _, ok := p.Lookup(1); ok {
		t.Fatalf("expected history cleared")
	}
	if p.log.Next() != 0 {
		t.Fatalf("expected log rewound, got %d", p.log.Next())
	}
	if ent := p.Entities().Get(1); ent.ServerFrame != snapFrame {
		t.Fatalf("expected entity record reset")
	}
}
