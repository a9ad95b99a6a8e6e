package frame

import (
	"context"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/NeonKnightOA/KMQuake2/internal/delta"
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/ring"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
	"github.com/NeonKnightOA/KMQuake2/logging"
	"github.com/NeonKnightOA/KMQuake2/logging/netframe"
)

// Merge decisions, as reported by entity traces.
const (
	MergeUnchanged = "unchanged"
	MergeRemove    = "remove"
	MergeDelta     = "delta"
	MergeBaseline  = "baseline"
)

// Trace levels for ShowNet.
const (
	ShowNetFrames   = 2
	ShowNetEntities = 3
)

// Parser owns the reconciliation state of one connection: the parse entity
// log, the frame history, the baselines and the CEntity table.
type Parser struct {
	cfg       Config
	log       *ring.Log[state.EntityState]
	history   *ring.Slots[Frame]
	baselines *Baselines
	entities  *Entities
	counts    *delta.BitCounts
	publisher logging.Publisher
	showNet   int
	pending   []state.EntityState
}

// Option configures a Parser.
type Option func(*Parser)

// WithPublisher routes reconciliation diagnostics to pub.
func WithPublisher(pub logging.Publisher) Option {
	return func(p *Parser) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithBitCounts records every entity mask into counts.
func WithBitCounts(counts *delta.BitCounts) Option {
	return func(p *Parser) {
		p.counts = counts
	}
}

// WithShowNet sets the trace level.
func WithShowNet(level int) Option {
	return func(p *Parser) {
		p.showNet = level
	}
}

func NewParser(cfg Config, opts ...Option) (*Parser, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log, err := ring.NewLog[state.EntityState](cfg.ParseEntities)
	if err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	history, err := ring.NewSlots[Frame](cfg.UpdateBackup)
	if err != nil {
		return nil, fmt.Errorf("update backup: %w", err)
	}
	p := &Parser{
		cfg:       cfg,
		log:       log,
		history:   history,
		baselines: NewBaselines(cfg.MaxEdicts),
		entities:  NewEntities(cfg.MaxEdicts),
		publisher: logging.NopPublisher(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Parser) Config() Config {
	return p.cfg
}

func (p *Parser) Baselines() *Baselines {
	return p.baselines
}

func (p *Parser) Entities() *Entities {
	return p.entities
}

func (p *Parser) SetShowNet(level int) {
	p.showNet = level
}

// Reset drops every frame, logged entity, baseline and CEntity record.
func (p *Parser) Reset() {
	p.log.Reset()
	p.history.Reset()
	p.baselines.Reset()
	p.entities.Reset()
}

// Store records f in the history under its tick.
func (p *Parser) Store(f Frame) {
	p.history.Store(f.ServerFrame, f)
}

// Lookup returns the frame stored for tick, if its slot has not been reused.
func (p *Parser) Lookup(tick int32) (Frame, bool) {
	return p.history.Lookup(tick)
}

// EntityAt reads the parse log at an absolute index.
func (p *Parser) EntityAt(index uint64) (state.EntityState, bool) {
	return p.log.At(index)
}

// FrameEntities copies the entities of f out of the parse log.
func (p *Parser) FrameEntities(f Frame) ([]state.EntityState, error) {
	out := make([]state.EntityState, 0, f.Entities.Count)
	for i := f.Entities.Start; i < f.Entities.End(); i++ {
		s, ok := p.log.At(i)
		if !ok {
			return nil, fmt.Errorf("%w: index %d", ErrHistoryLost, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// DeltaBase resolves the frame a delta compressed frame was built against.
// A nil frame with an error means the frame cannot be trusted; the error
// is soft and parsing should continue without a base.
func (p *Parser) DeltaBase(ctx context.Context, tick, deltaTick int32) (*Frame, error) {
	base, ok := p.history.Lookup(deltaTick)
	if !ok {
		occupant, _ := p.history.Occupant(deltaTick)
		netframe.DeltaTooOld(ctx, p.publisher, tick, netframe.DeltaPayload{DeltaFrame: deltaTick, Occupant: occupant})
		return nil, fmt.Errorf("%w: wanted %d", ErrDeltaTooOld, deltaTick)
	}
	// Invalid frames are decoded against baselines, so they never serve as a base.
	if !base.Valid {
		netframe.DeltaFromInvalid(ctx, p.publisher, tick, netframe.DeltaPayload{DeltaFrame: deltaTick})
		return nil, fmt.Errorf("%w: %d", ErrDeltaFromInvalid, deltaTick)
	}
	if !p.log.Within(base.Entities.Start, p.cfg.HistoryMargin) {
		var distance uint64
		if next := p.log.Next(); next > base.Entities.Start {
			distance = next - base.Entities.Start
		}
		netframe.DeltaEvicted(ctx, p.publisher, tick, netframe.DeltaPayload{DeltaFrame: deltaTick, Distance: distance})
		return nil, fmt.Errorf("%w: %d entries behind", ErrDeltaEvicted, distance)
	}
	return &base, nil
}

// ParseBaseline reads one svc_spawnbaseline entry.
func (p *Parser) ParseBaseline(r *msg.Reader, pol protocol.Policy) error {
	number, bits := delta.ParseEntityBits(r, p.counts)
	if err := r.Err(); err != nil {
		return fmt.Errorf("baseline header: %w", err)
	}
	if number < 0 || number >= p.cfg.MaxEdicts {
		return fmt.Errorf("%w: baseline %d", ErrBadEntityNumber, number)
	}
	s := delta.ParseEntity(r, state.EntityState{}, number, bits, pol)
	if err := r.Err(); err != nil {
		return fmt.Errorf("baseline %d: %w", number, err)
	}
	return p.baselines.Set(s)
}

const exhausted = math.MaxInt

// oldCursor walks the entity window of the delta base.
type oldCursor struct {
	log    *ring.Log[state.EntityState]
	window ring.Window
	index  int
	number int
	state  state.EntityState
}

func newOldCursor(log *ring.Log[state.EntityState], old *Frame) (*oldCursor, error) {
	c := &oldCursor{log: log, number: exhausted, index: -1}
	if old == nil {
		return c, nil
	}
	c.window = old.Entities
	return c, c.next()
}

func (c *oldCursor) next() error {
	c.index++
	if c.index >= c.window.Count {
		c.number = exhausted
		return nil
	}
	at := c.window.Start + uint64(c.index)
	s, ok := c.log.At(at)
	if !ok {
		c.number = exhausted
		return fmt.Errorf("%w: index %d", ErrHistoryLost, at)
	}
	c.state = s
	c.number = s.Number
	return nil
}

// ParsePacketEntities merges the entity updates in r with old, the delta
// base, appending the result to the parse log and f's window. old is nil
// for keyframes and for frames whose base was rejected. Soft problems are
// collected in f.Diagnostics and invalidate f; the returned error is fatal.
// CEntity records only move once the whole frame merged cleanly.
func (p *Parser) ParsePacketEntities(ctx context.Context, r *msg.Reader, old *Frame, f *Frame, pol protocol.Policy) error {
	f.Entities = ring.Window{Start: p.log.Next()}
	p.pending = p.pending[:0]

	cur, err := newOldCursor(p.log, old)
	p.soft(ctx, f, err)

	for {
		number, bits := delta.ParseEntityBits(r, p.counts)
		if err := r.Err(); err != nil {
			return fmt.Errorf("entity header: %w", err)
		}
		if number < 0 || number >= p.cfg.MaxEdicts {
			return fmt.Errorf("%w: %d", ErrBadEntityNumber, number)
		}
		if number == protocol.EndOfEntities {
			break
		}

		for cur.number < number {
			p.trace(ctx, f, MergeUnchanged, cur.number)
			p.deltaEntity(r, f, cur.number, cur.state, 0, pol)
			p.soft(ctx, f, cur.next())
		}

		switch {
		case bits&protocol.URemove != 0:
			p.trace(ctx, f, MergeRemove, number)
			if cur.number != number {
				expected := cur.number
				if expected == exhausted {
					expected = -1
				}
				netframe.RemoveMismatch(ctx, p.publisher, f.ServerFrame, netframe.RemovePayload{Number: number, Expected: expected})
				f.Valid = false
				f.Diagnostics = multierror.Append(f.Diagnostics, fmt.Errorf("%w: %d", ErrRemoveMismatch, number))
				continue
			}
			p.soft(ctx, f, cur.next())
		case cur.number == number:
			p.trace(ctx, f, MergeDelta, number)
			p.deltaEntity(r, f, number, cur.state, bits, pol)
			p.soft(ctx, f, cur.next())
		default:
			p.trace(ctx, f, MergeBaseline, number)
			base, _ := p.baselines.Get(number)
			p.deltaEntity(r, f, number, base, bits, pol)
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("entity %d: %w", number, err)
		}
	}

	for cur.number != exhausted {
		p.trace(ctx, f, MergeUnchanged, cur.number)
		p.deltaEntity(r, f, cur.number, cur.state, 0, pol)
		p.soft(ctx, f, cur.next())
	}

	if f.Valid {
		for _, s := range p.pending {
			if ent := p.entities.Get(s.Number); ent != nil {
				ent.Update(s, f.ServerFrame)
			}
		}
	}
	p.pending = p.pending[:0]
	return nil
}

// deltaEntity decodes one entity against from, appends it to the log and
// queues it for the CEntity table.
func (p *Parser) deltaEntity(r *msg.Reader, f *Frame, number int, from state.EntityState, bits uint32, pol protocol.Policy) {
	s := delta.ParseEntity(r, from, number, bits, pol)
	p.log.Append(s)
	f.Entities.Count++
	if f.Valid {
		p.pending = append(p.pending, s)
	}
}

// soft records a merge failure that invalidates the frame without ending
// the packet.
func (p *Parser) soft(ctx context.Context, f *Frame, err error) {
	if err == nil {
		return
	}
	f.Valid = false
	f.Diagnostics = multierror.Append(f.Diagnostics, err)
	netframe.HistoryLost(ctx, p.publisher, f.ServerFrame, p.log.Next())
}

func (p *Parser) trace(ctx context.Context, f *Frame, kind string, number int) {
	if p.showNet < ShowNetEntities {
		return
	}
	netframe.EntityTrace(ctx, p.publisher, f.ServerFrame, kind, number)
}
