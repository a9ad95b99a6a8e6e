package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/NeonKnightOA/KMQuake2/logging"
)

// JSON emits newline-delimited events.
type JSON struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	encoder *json.Encoder
	stop    chan struct{}
	once    sync.Once
}

type jsonEvent struct {
	Type     logging.EventType  `json:"type"`
	Tick     int64              `json:"tick"`
	Time     string             `json:"time"`
	Severity string             `json:"severity"`
	Category string             `json:"category,omitempty"`
	Subject  logging.SubjectRef `json:"subject"`
	Payload  any                `json:"payload,omitempty"`
	Extra    map[string]any     `json:"extra,omitempty"`
	TraceID  string             `json:"traceId,omitempty"`
}

// NewJSON writes to w, flushing every flushInterval or after each event
// when the interval is not positive.
func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{writer: buf, encoder: json.NewEncoder(buf)}
	if flushInterval > 0 {
		sink.stop = make(chan struct{})
		go sink.flushEvery(flushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.encoder.Encode(jsonEvent{
		Type:     event.Type,
		Tick:     event.Tick,
		Time:     event.Time.Format(time.RFC3339Nano),
		Severity: event.Severity.String(),
		Category: event.Category,
		Subject:  event.Subject,
		Payload:  event.Payload,
		Extra:    event.Extra,
		TraceID:  event.TraceID,
	})
	if err != nil {
		return err
	}
	if s.stop == nil {
		return s.writer.Flush()
	}
	return nil
}

func (s *JSON) Close(context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
		}
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Flush()
}

func (s *JSON) flushEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}
