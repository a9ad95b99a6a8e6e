// Package session drives one server connection: it reads every message of
// a packet, tracks the level state and runs the per frame lifecycle on top
// of the frame reconciliation engine.
package session

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeonKnightOA/KMQuake2/internal/delta"
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/logging"
)

const tracerName = "github.com/NeonKnightOA/KMQuake2/internal/session"

var (
	// ErrUnexpectedMessage is fatal: a frame was missing its player or
	// entity block, or frame data arrived outside svc_frame.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrUnknownCommand is fatal: the stream cannot be resynchronised past
	// a command the client does not decode.
	ErrUnknownCommand = errors.New("unknown server command")
	// ErrBadEntityNumber is fatal: a message named an entity outside the table.
	ErrBadEntityNumber = frame.ErrBadEntityNumber
	// ErrDisconnected reports svc_disconnect.
	ErrDisconnected = errors.New("server disconnected")
	// ErrReconnect reports svc_reconnect.
	ErrReconnect = errors.New("server requested reconnect")
)

// Stage is the lifecycle position of the frame being parsed.
type Stage int

const (
	StageAwaitingHeader Stage = iota
	StageHeaderParsed
	StagePlayerStateParsed
	StageEntitiesParsed
	StageValidated
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingHeader:
		return "awaiting_header"
	case StageHeaderParsed:
		return "header_parsed"
	case StagePlayerStateParsed:
		return "player_state_parsed"
	case StageEntitiesParsed:
		return "entities_parsed"
	case StageValidated:
		return "validated"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Config holds the per connection settings.
type Config struct {
	Frame    frame.Config
	Features protocol.Features
	ShowNet  int
	NoDelta  bool
}

func DefaultConfig() Config {
	return Config{
		Frame:    frame.DefaultConfig(),
		Features: protocol.DefaultFeatures(),
	}
}

// Option configures a Session.
type Option func(*Session)

func WithPublisher(pub logging.Publisher) Option {
	return func(s *Session) {
		if pub != nil {
			s.publisher = pub
		}
	}
}

func WithMetrics(metrics telemetry.Metrics) Option {
	return func(s *Session) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithPresentation(p Presentation) Option {
	return func(s *Session) {
		if p != nil {
			s.presentation = p
		}
	}
}

func WithEffects(e Effects) Option {
	return func(s *Session) {
		if e != nil {
			s.effects = e
		}
	}
}

func WithPredictor(p Predictor) Option {
	return func(s *Session) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithBitCounts shares the entity bit histogram with an exporter.
func WithBitCounts(counts *delta.BitCounts) Option {
	return func(s *Session) {
		if counts != nil {
			s.counts = counts
		}
	}
}

// Level describes the level announced by svc_serverdata.
type Level struct {
	Protocol    int    `json:"protocol"`
	ServerCount int32  `json:"serverCount"`
	AttractLoop bool   `json:"attractLoop"`
	GameDir     string `json:"gameDir"`
	PlayerNum   int    `json:"playerNum"`
	Name        string `json:"name"`
}

// Session is the client side of one connection. It is not safe for
// concurrent use; packets must be fed in arrival order from one goroutine.
type Session struct {
	cfg    Config
	parser *frame.Parser
	counts *delta.BitCounts

	publisher    logging.Publisher
	metrics      telemetry.Metrics
	tracer       trace.Tracer
	presentation Presentation
	effects      Effects
	predictor    Predictor

	mode   protocol.Mode
	policy protocol.Policy
	level  Level

	configStrings map[int]string

	frame  frame.Frame
	stage  Stage
	active bool
	time   int32

	predictedOrigin state.Vec3
	predictedAngles state.Vec3

	demoWaiting        bool
	disableServerCount int32
}

func New(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:                cfg,
		counts:             &delta.BitCounts{},
		publisher:          logging.NopPublisher(),
		metrics:            telemetry.NopMetrics(),
		tracer:             otel.Tracer(tracerName),
		presentation:       nopPresentation{},
		effects:            nopEffects{},
		predictor:          nopPredictor{},
		configStrings:      make(map[int]string),
		disableServerCount: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	parser, err := frame.NewParser(cfg.Frame,
		frame.WithPublisher(s.publisher),
		frame.WithBitCounts(s.counts),
		frame.WithShowNet(cfg.ShowNet),
	)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.parser = parser
	_ = s.setProtocol(protocol.VersionCurrent, false)
	return s, nil
}

func (s *Session) setProtocol(version int, attractLoop bool) error {
	mode, err := protocol.ModeForVersion(version)
	if err != nil {
		return err
	}
	s.mode = mode
	s.policy = protocol.PolicyFor(mode, s.cfg.Features)
	s.policy.FreezeMovement = attractLoop
	s.level.Protocol = version
	s.level.AttractLoop = attractLoop
	return nil
}

// clearState forgets everything tied to the current level.
func (s *Session) clearState() {
	s.parser.Reset()
	clear(s.configStrings)
	s.frame = frame.Frame{}
	s.stage = StageAwaitingHeader
	s.active = false
	s.time = 0
	s.predictedOrigin = state.Vec3{}
	s.predictedAngles = state.Vec3{}
	s.level = Level{}
}

func (s *Session) Mode() protocol.Mode {
	return s.mode
}

func (s *Session) Policy() protocol.Policy {
	return s.policy
}

func (s *Session) Level() Level {
	return s.level
}

func (s *Session) Stage() Stage {
	return s.stage
}

// Active reports whether a valid frame has been received on this level.
func (s *Session) Active() bool {
	return s.active
}

func (s *Session) BitCounts() *delta.BitCounts {
	return s.counts
}

func (s *Session) SetShowNet(level int) {
	s.cfg.ShowNet = level
	s.parser.SetShowNet(level)
}

// Time is the client clock in milliseconds. ParseFrame keeps it within the
// last server tick.
func (s *Session) Time() int32 {
	return s.time
}

func (s *Session) SetTime(ms int32) {
	s.time = ms
}

// Prediction returns the origin and angles seeded by the first valid frame.
func (s *Session) Prediction() (origin, angles state.Vec3) {
	return s.predictedOrigin, s.predictedAngles
}

// BeginRecording makes the client ask for a keyframe so the recording
// starts from a full frame.
func (s *Session) BeginRecording() {
	s.demoWaiting = true
}

// DisableLoadingPlaque keeps the loading plaque up across the first frame
// of the level with the given server count.
func (s *Session) DisableLoadingPlaque(serverCount int32) {
	s.disableServerCount = serverCount
}

// DeltaRequest is the tick to acknowledge in the next client command, -1
// to ask for a full frame.
func (s *Session) DeltaRequest() int32 {
	if s.cfg.NoDelta || !s.frame.Valid || s.demoWaiting {
		return -1
	}
	return s.frame.ServerFrame
}

func (s *Session) ConfigString(index int) string {
	return s.configStrings[index]
}

// Frame returns the most recently parsed frame.
func (s *Session) Frame() frame.Frame {
	return s.frame
}

// FrameAt returns the stored frame for tick.
func (s *Session) FrameAt(tick int32) (frame.Frame, bool) {
	return s.parser.Lookup(tick)
}

// EntityAt reads the parse entity log at an absolute index.
func (s *Session) EntityAt(index uint64) (state.EntityState, bool) {
	return s.parser.EntityAt(index)
}

// FrameEntities copies the entities of f.
func (s *Session) FrameEntities(f frame.Frame) ([]state.EntityState, error) {
	return s.parser.FrameEntities(f)
}

// Entity returns the interpolation record for number.
func (s *Session) Entity(number int) (frame.CEntity, bool) {
	ent := s.parser.Entities().Get(number)
	if ent == nil {
		return frame.CEntity{}, false
	}
	return *ent, true
}

// Entities exposes the interpolation table to the view code.
func (s *Session) Entities() *frame.Entities {
	return s.parser.Entities()
}

func (s *Session) Baseline(number int) (state.EntityState, bool) {
	return s.parser.Baselines().Get(number)
}
