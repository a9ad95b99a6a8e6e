package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeonKnightOA/KMQuake2/internal/delta"
	"github.com/NeonKnightOA/KMQuake2/internal/frame"
	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/state"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/logging/netframe"
)

// ParseFrame reads the body of one svc_frame and, when the frame can be
// trusted, hands its events to the collaborators.
func (s *Session) ParseFrame(ctx context.Context, r *msg.Reader) error {
	s.stage = StageAwaitingHeader

	var f frame.Frame
	f.ServerFrame = r.Int32()
	f.DeltaFrame = r.Int32()
	f.ServerTime = f.ServerFrame * frame.TickMillis
	suppress := 0
	if s.level.Protocol != protocol.VersionAncient {
		suppress = r.Uint8()
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("svc_frame header: %w", err)
	}
	s.stage = StageHeaderParsed

	ctx, span := s.tracer.Start(ctx, "session.ParseFrame", trace.WithAttributes(
		attribute.Int("frame.tick", int(f.ServerFrame)),
		attribute.Int("frame.delta", int(f.DeltaFrame)),
	))
	defer span.End()

	var old *frame.Frame
	if f.DeltaFrame <= 0 {
		f.Valid = true
		s.demoWaiting = false
	} else {
		base, err := s.parser.DeltaBase(ctx, f.ServerFrame, f.DeltaFrame)
		if err != nil {
			f.Diagnostics = multierror.Append(f.Diagnostics, err)
		} else {
			f.Valid = true
			old = base
		}
	}

	if s.cfg.ShowNet >= frame.ShowNetFrames {
		netframe.FrameParsed(ctx, s.publisher, f.ServerFrame, netframe.FramePayload{
			DeltaFrame: f.DeltaFrame,
			Valid:      f.Valid,
			Suppress:   suppress,
		})
	}

	s.clampTime(f.ServerTime)

	size := r.Uint8()
	f.AreaBits = r.Bytes(size)

	if cmd := r.Uint8(); cmd != protocol.SvcPlayerInfo {
		if err := r.Err(); err != nil {
			return fmt.Errorf("svc_frame areabits: %w", err)
		}
		return fmt.Errorf("%w: %s where svc_playerinfo expected", ErrUnexpectedMessage, protocol.CommandName(cmd))
	}
	var fromPlayer state.PlayerState
	if old != nil {
		fromPlayer = old.PlayerState
	}
	f.PlayerState = delta.ParsePlayerState(r, fromPlayer, s.policy)
	if err := r.Err(); err != nil {
		return fmt.Errorf("svc_playerinfo: %w", err)
	}
	s.stage = StagePlayerStateParsed

	if cmd := r.Uint8(); cmd != protocol.SvcPacketEntities {
		if err := r.Err(); err != nil {
			return fmt.Errorf("svc_frame: %w", err)
		}
		return fmt.Errorf("%w: %s where svc_packetentities expected", ErrUnexpectedMessage, protocol.CommandName(cmd))
	}
	if err := s.parser.ParsePacketEntities(ctx, r, old, &f, s.policy); err != nil {
		return err
	}
	s.stage = StageEntitiesParsed

	s.parser.Store(f)
	s.frame = f
	s.record(f)
	span.SetAttributes(
		attribute.Bool("frame.valid", f.Valid),
		attribute.Int("frame.entities", f.Entities.Count),
	)

	if !f.Valid {
		s.stage = StageRejected
		return nil
	}
	s.stage = StageValidated

	if !s.active {
		s.active = true
		s.predictedOrigin = f.PlayerState.PMove.WorldOrigin()
		s.predictedAngles = f.PlayerState.ViewAngles
		if s.disableServerCount != s.level.ServerCount {
			s.presentation.EndLoadingPlaque()
		}
		netframe.ConnectionActive(ctx, s.publisher, f.ServerFrame, map[string]any{
			"serverCount": s.level.ServerCount,
			"level":       s.level.Name,
		})
	}

	if err := s.fireEntityEvents(f); err != nil {
		return err
	}
	s.predictor.CheckPredictionError(f.ServerFrame, f.PlayerState)
	return nil
}

// clampTime keeps the client clock inside the tick that just arrived.
func (s *Session) clampTime(serverTime int32) {
	if s.time > serverTime {
		s.time = serverTime
	} else if s.time < serverTime-frame.TickMillis {
		s.time = serverTime - frame.TickMillis
	}
}

func (s *Session) fireEntityEvents(f frame.Frame) error {
	entities, err := s.parser.FrameEntities(f)
	if err != nil {
		return err
	}
	for _, ent := range entities {
		if ent.Event != protocol.EventNone {
			s.effects.EntityEvent(ent)
		}
		if ent.Effects&protocol.EFTeleporter != 0 {
			s.effects.TeleporterParticles(ent)
		}
	}
	return nil
}

func (s *Session) record(f frame.Frame) {
	s.metrics.Add(telemetry.KeyFramesParsed, 1)
	s.metrics.Add(telemetry.KeyEntitiesDecoded, uint64(f.Entities.Count))
	s.metrics.Store(telemetry.KeyLastServerFrame, uint64(uint32(f.ServerFrame)))
	if !f.Valid {
		s.metrics.Add(telemetry.KeyFramesInvalid, 1)
	}
	if merr, ok := f.Diagnostics.(*multierror.Error); ok {
		for _, err := range merr.Errors {
			if errors.Is(err, frame.ErrRemoveMismatch) {
				s.metrics.Add(telemetry.KeyRemoveMismatches, 1)
			}
		}
	}
}
