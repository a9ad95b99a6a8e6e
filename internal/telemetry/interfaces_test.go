package telemetry

import (
	"bytes"
	"log"
	"testing"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestCountersImplementMetrics(t *testing.T) {
	counters := NewCounters()
	var metrics Metrics = counters

	metrics.Add(KeyFramesParsed, 2)
	metrics.Add(KeyFramesParsed, 3)
	metrics.Store(KeyLastServerFrame, 40)
	metrics.Add("unknown", 1)

	snapshot := counters.Snapshot()
	if snapshot.FramesParsed != 5 {
		t.Fatalf("expected 5 frames, got %d", snapshot.FramesParsed)
	}
	if snapshot.LastServerFrame != 40 {
		t.Fatalf("expected last frame 40, got %d", snapshot.LastServerFrame)
	}

	var nilCounters *Counters
	nilCounters.Add(KeyFramesParsed, 1)
	nilCounters.Store(KeyFramesParsed, 1)
}

func TestMultiSkipsNilBackends(t *testing.T) {
	a, b := NewCounters(), NewCounters()
	m := Multi(a, nil, b)
	m.Add(KeyEntitiesDecoded, 4)
	if a.Snapshot().EntitiesDecoded != 4 || b.Snapshot().EntitiesDecoded != 4 {
		t.Fatalf("expected both backends updated")
	}
	NopMetrics().Add(KeyEntitiesDecoded, 1)
}
