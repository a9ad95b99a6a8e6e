package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/NeonKnightOA/KMQuake2/logging"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "netframe.remove_mismatch",
		Tick:     12,
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Subject:  logging.SubjectRef{ID: "5", Kind: logging.SubjectEntity},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  map[string]int{"expected": 4},
		Extra:    map[string]any{"b": 2, "a": 1},
	}
}

func TestConsoleSinkFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{Prefix: "[net] "})
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[net] ", "[netframe.remove_mismatch]", "tick=12", "entity:5", "severity=warn", `payload={"expected":4}`, "a=1 b=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONSinkFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, time.Hour)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffered output before close")
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "netframe.remove_mismatch" || decoded["severity"] != "warn" || decoded["time"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected json event %v", decoded)
	}
}

func TestJSONSinkWithoutIntervalFlushesEachEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected a flushed line, got %q", buf.String())
	}
}

func TestZerologSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerolog(&buf, false)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if decoded["level"] != "warn" || decoded["type"] != "netframe.remove_mismatch" || decoded["subject"] != "entity:5" {
		t.Fatalf("unexpected zerolog event %v", decoded)
	}
	if decoded["tick"] != float64(12) || decoded["a"] != float64(1) {
		t.Fatalf("unexpected fields %v", decoded)
	}
}

func TestMemorySinkFiltersByType(t *testing.T) {
	sink := NewMemorySink()
	sink.Publish(context.Background(), sampleEvent())
	_ = sink.Write(logging.Event{Type: "other"})
	if len(sink.Events()) != 2 || len(sink.OfType("other")) != 1 {
		t.Fatalf("unexpected memory contents %v", sink.Events())
	}
	sink.Reset()
	if len(sink.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}

func TestMemorySinkKeepsItsOwnExtra(t *testing.T) {
	sink := NewMemorySink()
	event := logging.Event{Type: "netframe.packet_dropped", Extra: map[string]any{"bytes": 12}}
	sink.Publish(context.Background(), event)
	event.Extra["bytes"] = 99

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if got := events[0].Extra["bytes"]; got != 12 {
		t.Fatalf("expected recorded extra to stay 12, got %v", got)
	}
}
