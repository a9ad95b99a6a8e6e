package netframe

import (
	"context"
	"errors"
	"testing"

	"github.com/NeonKnightOA/KMQuake2/logging"
	"github.com/NeonKnightOA/KMQuake2/logging/sinks"
)

func TestHelpersFillCategoryAndSubject(t *testing.T) {
	sink := sinks.NewMemorySink()
	ctx := context.Background()

	RemoveMismatch(ctx, sink, 9, RemovePayload{Number: 4, Expected: 3})
	DeltaTooOld(ctx, sink, 10, DeltaPayload{DeltaFrame: 2, Occupant: 18})
	PacketDropped(ctx, sink, 11, errors.New("truncated"))

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Category != logging.CategoryNetwork {
			t.Fatalf("%s: expected network category, got %q", e.Type, e.Category)
		}
	}
	if e := events[0]; e.Type != EventRemoveMismatch || e.Subject.Kind != logging.SubjectEntity || e.Subject.ID != "4" || e.Severity != logging.SeverityWarn {
		t.Fatalf("unexpected remove mismatch event %+v", e)
	}
	if e := events[1]; e.Subject.Kind != logging.SubjectFrame || e.Subject.ID != "10" || e.Payload.(DeltaPayload).Occupant != 18 {
		t.Fatalf("unexpected delta event %+v", e)
	}
	if e := events[2]; e.Extra["error"] != "truncated" || e.Severity != logging.SeverityError {
		t.Fatalf("unexpected drop event %+v", e)
	}
}

func TestHelpersTolerateNilPublisher(t *testing.T) {
	EntityTrace(context.Background(), nil, 1, "delta", 3)
}
