package session

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeonKnightOA/KMQuake2/internal/msg"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/logging/netframe"
)

// ProcessPacket parses every message in one received packet. A returned
// error is fatal for the connection; the rest of the packet is dropped.
func (s *Session) ProcessPacket(ctx context.Context, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "session.ProcessPacket",
		trace.WithAttributes(attribute.Int("packet.bytes", len(data))),
	)
	defer span.End()

	start := time.Now()
	r := msg.NewReader(data)
	err := s.readMessages(ctx, r)

	s.metrics.Add(telemetry.KeyPacketsProcessed, 1)
	s.metrics.Add(telemetry.KeyBytesConsumed, uint64(r.Offset()))
	s.metrics.Store(telemetry.KeyParseDurationMicro, uint64(time.Since(start).Microseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.Add(telemetry.KeyPacketsDropped, 1)
		netframe.PacketDropped(ctx, s.publisher, s.frame.ServerFrame, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Session) readMessages(ctx context.Context, r *msg.Reader) error {
	for r.Remaining() > 0 {
		cmd := r.Uint8()
		if err := s.dispatch(ctx, r, cmd); err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("%s: %w", protocol.CommandName(cmd), err)
		}
	}
	return nil
}

func (s *Session) dispatch(ctx context.Context, r *msg.Reader, cmd int) error {
	switch cmd {
	case protocol.SvcNop:
		return nil
	case protocol.SvcDisconnect:
		return ErrDisconnected
	case protocol.SvcReconnect:
		return ErrReconnect
	case protocol.SvcPrint:
		level := r.Uint8()
		s.presentation.Print(level, r.CString())
	case protocol.SvcCenterPrint:
		s.presentation.CenterPrint(r.CString())
	case protocol.SvcStuffText:
		s.presentation.StuffText(r.CString())
	case protocol.SvcLayout:
		s.presentation.Layout(r.CString())
	case protocol.SvcInventory:
		items := make([]int16, protocol.MaxItems)
		for i := range items {
			items[i] = int16(r.Int16())
		}
		s.presentation.Inventory(items)
	case protocol.SvcServerData:
		return s.parseServerData(ctx, r)
	case protocol.SvcConfigString:
		index := r.Int16()
		s.configStrings[index] = r.CString()
	case protocol.SvcSpawnBaseline:
		return s.parser.ParseBaseline(r, s.policy)
	case protocol.SvcSound:
		return s.parseSound(r)
	case protocol.SvcMuzzleFlash, protocol.SvcMuzzleFlash2:
		flash := MuzzleFlash{Entity: r.Int16(), Weapon: r.Uint8(), Monster: cmd == protocol.SvcMuzzleFlash2}
		if flash.Entity < 1 || flash.Entity >= s.cfg.Frame.MaxEdicts {
			return fmt.Errorf("%w: muzzle flash entity %d", ErrBadEntityNumber, flash.Entity)
		}
		s.effects.MuzzleFlash(flash)
	case protocol.SvcDownload:
		size := r.Int16()
		r.Uint8()
		if size > 0 {
			r.Bytes(size)
		}
	case protocol.SvcFrame:
		return s.ParseFrame(ctx, r)
	case protocol.SvcPlayerInfo, protocol.SvcPacketEntities, protocol.SvcDeltaPacketEntities:
		return fmt.Errorf("%w: %s outside svc_frame", ErrUnexpectedMessage, protocol.CommandName(cmd))
	default:
		return fmt.Errorf("%w: %s (%d)", ErrUnknownCommand, protocol.CommandName(cmd), cmd)
	}
	return nil
}

// parseServerData starts a new level: every frame, baseline and entity
// record of the previous one is dropped.
func (s *Session) parseServerData(ctx context.Context, r *msg.Reader) error {
	s.clearState()

	version := int(r.Int32())
	serverCount := r.Int32()
	attractLoop := r.Uint8() != 0
	gameDir := r.CString()
	playerNum := r.Int16()
	name := r.CString()
	if err := r.Err(); err != nil {
		return fmt.Errorf("svc_serverdata: %w", err)
	}
	if err := s.setProtocol(version, attractLoop); err != nil {
		return fmt.Errorf("svc_serverdata: %w", err)
	}
	s.level.ServerCount = serverCount
	s.level.GameDir = gameDir
	s.level.PlayerNum = playerNum
	s.level.Name = name

	netframe.ServerData(ctx, s.publisher, netframe.ServerDataPayload{
		Protocol:    version,
		Mode:        s.mode.String(),
		ServerCount: serverCount,
		GameDir:     gameDir,
		Level:       name,
		Demo:        attractLoop,
	})
	return nil
}

const (
	defaultSoundVolume      = 1.0
	defaultSoundAttenuation = 1.0
)

func (s *Session) parseSound(r *msg.Reader) error {
	flags := r.Uint8()
	snd := Sound{
		Volume:      defaultSoundVolume,
		Attenuation: defaultSoundAttenuation,
	}
	if s.mode == protocol.ModeLegacy {
		snd.Index = r.Uint8()
	} else {
		snd.Index = r.Int16()
	}
	if flags&protocol.SndVolume != 0 {
		snd.Volume = float32(r.Uint8()) / 255
	}
	if flags&protocol.SndAttenuation != 0 {
		snd.Attenuation = float32(r.Uint8()) / 64
	}
	if flags&protocol.SndOffset != 0 {
		snd.TimeOffset = float32(r.Uint8()) / 1000
	}
	if flags&protocol.SndEnt != 0 {
		channel := r.Int16()
		snd.Entity = channel >> 3
		snd.Channel = channel & 7
		if snd.Entity >= s.cfg.Frame.MaxEdicts {
			return fmt.Errorf("%w: sound entity %d", ErrBadEntityNumber, snd.Entity)
		}
	}
	if flags&protocol.SndPos != 0 {
		snd.Origin = r.Pos()
		snd.Positioned = true
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("svc_sound: %w", err)
	}
	s.effects.Sound(snd)
	return nil
}
