// Package netframe publishes the diagnostics raised while reconciling
// server frames.
package netframe

import (
	"context"
	"strconv"

	"github.com/NeonKnightOA/KMQuake2/logging"
)

const (
	// EventDeltaTooOld is emitted when the delta base slot holds another tick.
	EventDeltaTooOld logging.EventType = "netframe.delta_too_old"
	// EventDeltaEvicted is emitted when the delta base's entities were overwritten in the parse log.
	EventDeltaEvicted logging.EventType = "netframe.delta_history_evicted"
	// EventDeltaFromInvalid is emitted when the delta base was itself invalid.
	EventDeltaFromInvalid logging.EventType = "netframe.delta_from_invalid"
	// EventRemoveMismatch is emitted when a removal names an entity the old frame does not hold at the cursor.
	EventRemoveMismatch logging.EventType = "netframe.remove_mismatch"
	// EventHistoryLost is emitted when an old frame entity can no longer be read from the parse log.
	EventHistoryLost logging.EventType = "netframe.history_lost"
	// EventEntityTrace traces every merge decision.
	EventEntityTrace logging.EventType = "netframe.entity_trace"
	// EventFrameParsed is emitted for every frame header.
	EventFrameParsed logging.EventType = "netframe.frame_parsed"
	// EventConnectionActive is emitted for the first valid frame of a connection.
	EventConnectionActive logging.EventType = "netframe.connection_active"
	// EventServerData is emitted when a level starts.
	EventServerData logging.EventType = "netframe.server_data"
	// EventPacketDropped is emitted when a packet fails with a fatal error.
	EventPacketDropped logging.EventType = "netframe.packet_dropped"
)

// DeltaPayload describes a rejected delta base.
type DeltaPayload struct {
	DeltaFrame int32  `json:"deltaFrame"`
	Occupant   int32  `json:"occupant,omitempty"`
	Distance   uint64 `json:"distance,omitempty"`
}

// RemovePayload describes a removal that did not line up with the old frame.
type RemovePayload struct {
	Number   int `json:"number"`
	Expected int `json:"expected"`
}

// TracePayload names the merge decision taken for one entity.
type TracePayload struct {
	Kind   string `json:"kind"`
	Number int    `json:"number"`
}

// FramePayload summarises a parsed frame header.
type FramePayload struct {
	DeltaFrame int32 `json:"deltaFrame"`
	Valid      bool  `json:"valid"`
	Suppress   int   `json:"suppress,omitempty"`
}

// ServerDataPayload summarises svc_serverdata.
type ServerDataPayload struct {
	Protocol    int    `json:"protocol"`
	Mode        string `json:"mode"`
	ServerCount int32  `json:"serverCount"`
	GameDir     string `json:"gameDir,omitempty"`
	Level       string `json:"level"`
	Demo        bool   `json:"demo,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	if event.Category == "" {
		event.Category = logging.CategoryNetwork
	}
	pub.Publish(ctx, event)
}

func frameRef(tick int32) logging.SubjectRef {
	return logging.SubjectRef{ID: strconv.FormatInt(int64(tick), 10), Kind: logging.SubjectFrame}
}

func entityRef(number int) logging.SubjectRef {
	return logging.SubjectRef{ID: strconv.Itoa(number), Kind: logging.SubjectEntity}
}

// DeltaTooOld publishes a warning for a delta base whose slot was reused.
func DeltaTooOld(ctx context.Context, pub logging.Publisher, tick int32, payload DeltaPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventDeltaTooOld,
		Tick:     int64(tick),
		Subject:  frameRef(tick),
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// DeltaEvicted publishes a warning for a delta base whose entities left the parse log.
func DeltaEvicted(ctx context.Context, pub logging.Publisher, tick int32, payload DeltaPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventDeltaEvicted,
		Tick:     int64(tick),
		Subject:  frameRef(tick),
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// DeltaFromInvalid publishes a warning for a delta against an invalid frame.
func DeltaFromInvalid(ctx context.Context, pub logging.Publisher, tick int32, payload DeltaPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventDeltaFromInvalid,
		Tick:     int64(tick),
		Subject:  frameRef(tick),
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// RemoveMismatch publishes a warning for an out of order removal.
func RemoveMismatch(ctx context.Context, pub logging.Publisher, tick int32, payload RemovePayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRemoveMismatch,
		Tick:     int64(tick),
		Subject:  entityRef(payload.Number),
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// HistoryLost publishes an error when an old frame entity vanished from the log mid merge.
func HistoryLost(ctx context.Context, pub logging.Publisher, tick int32, index uint64) {
	publish(ctx, pub, logging.Event{
		Type:     EventHistoryLost,
		Tick:     int64(tick),
		Subject:  frameRef(tick),
		Severity: logging.SeverityError,
		Extra:    map[string]any{"index": index},
	})
}

// EntityTrace publishes a debug event per merge step.
func EntityTrace(ctx context.Context, pub logging.Publisher, tick int32, kind string, number int) {
	publish(ctx, pub, logging.Event{
		Type:     EventEntityTrace,
		Tick:     int64(tick),
		Subject:  entityRef(number),
		Severity: logging.SeverityDebug,
		Payload:  TracePayload{Kind: kind, Number: number},
	})
}

// FrameParsed publishes a debug event for a frame header.
func FrameParsed(ctx context.Context, pub logging.Publisher, tick int32, payload FramePayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventFrameParsed,
		Tick:     int64(tick),
		Subject:  frameRef(tick),
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

// ConnectionActive publishes an info event when the first valid frame arrives.
func ConnectionActive(ctx context.Context, pub logging.Publisher, tick int32, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventConnectionActive,
		Tick:     int64(tick),
		Subject:  logging.SubjectRef{Kind: logging.SubjectConnection},
		Severity: logging.SeverityInfo,
		Extra:    extra,
	})
}

// ServerData publishes an info event for a level change.
func ServerData(ctx context.Context, pub logging.Publisher, payload ServerDataPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventServerData,
		Subject:  logging.SubjectRef{Kind: logging.SubjectConnection},
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// PacketDropped publishes an error for a packet abandoned on a fatal error.
func PacketDropped(ctx context.Context, pub logging.Publisher, tick int32, err error) {
	publish(ctx, pub, logging.Event{
		Type:     EventPacketDropped,
		Tick:     int64(tick),
		Subject:  logging.SubjectRef{Kind: logging.SubjectConnection},
		Severity: logging.SeverityError,
		Extra:    map[string]any{"error": err.Error()},
	})
}
