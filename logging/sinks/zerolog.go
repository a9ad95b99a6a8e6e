package sinks

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/NeonKnightOA/KMQuake2/logging"
)

// Zerolog writes events through a zerolog logger.
type Zerolog struct {
	logger zerolog.Logger
}

// NewZerolog builds a sink on w. Pretty selects the human readable console
// writer instead of JSON lines.
func NewZerolog(w io.Writer, pretty bool) *Zerolog {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return &Zerolog{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// NewZerologFrom wraps an already configured logger.
func NewZerologFrom(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

func zerologLevel(sev logging.Severity) zerolog.Level {
	switch sev {
	case logging.SeverityDebug:
		return zerolog.DebugLevel
	case logging.SeverityWarn:
		return zerolog.WarnLevel
	case logging.SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (s *Zerolog) Write(event logging.Event) error {
	e := s.logger.WithLevel(zerologLevel(event.Severity)).
		Str("type", string(event.Type)).
		Int64("tick", event.Tick).
		Str("category", event.Category)
	if event.Subject.ID != "" || event.Subject.Kind != "" {
		e = e.Str("subject", formatSubject(event.Subject))
	}
	if event.Payload != nil {
		e = e.Interface("payload", event.Payload)
	}
	if len(event.Extra) > 0 {
		e = e.Fields(event.Extra)
	}
	if event.TraceID != "" {
		e = e.Str("trace_id", event.TraceID)
	}
	e.Msg("")
	return nil
}

func (s *Zerolog) Close(context.Context) error {
	return nil
}
