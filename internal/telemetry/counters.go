// Package telemetry carries the logger and metrics seams used by the
// session, plus the in-process counters and the Prometheus exporter.
package telemetry

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Metric keys recorded by the session.
const (
	KeyPacketsProcessed   = "packets_processed"
	KeyPacketsDropped     = "packets_dropped"
	KeyBytesConsumed      = "bytes_consumed"
	KeyFramesParsed       = "frames_parsed"
	KeyFramesInvalid      = "frames_invalid"
	KeyEntitiesDecoded    = "entities_decoded"
	KeyRemoveMismatches   = "remove_mismatches"
	KeyParseDurationMicro = "parse_duration_us"
	KeyLastServerFrame    = "last_server_frame"
)

// Counters keeps the session metrics in atomics so an inspector can read
// them while packets are being parsed.
type Counters struct {
	packetsProcessed atomic.Uint64
	packetsDropped   atomic.Uint64
	bytesConsumed    atomic.Uint64
	framesParsed     atomic.Uint64
	framesInvalid    atomic.Uint64
	entitiesDecoded  atomic.Uint64
	removeMismatches atomic.Uint64
	parseDurationUs  atomic.Uint64
	lastServerFrame  atomic.Uint64
	debug            bool
}

type Snapshot struct {
	PacketsProcessed uint64 `json:"packetsProcessed"`
	PacketsDropped   uint64 `json:"packetsDropped"`
	BytesConsumed    uint64 `json:"bytesConsumed"`
	FramesParsed     uint64 `json:"framesParsed"`
	FramesInvalid    uint64 `json:"framesInvalid"`
	EntitiesDecoded  uint64 `json:"entitiesDecoded"`
	RemoveMismatches uint64 `json:"removeMismatches"`
	ParseDurationUs  uint64 `json:"parseDurationUs"`
	LastServerFrame  uint64 `json:"lastServerFrame"`
}

func NewCounters() *Counters {
	c := &Counters{}
	if os.Getenv("KMQ2_DEBUG_TELEMETRY") == "1" {
		c.debug = true
	}
	return c
}

func (c *Counters) counter(key string) *atomic.Uint64 {
	switch key {
	case KeyPacketsProcessed:
		return &c.packetsProcessed
	case KeyPacketsDropped:
		return &c.packetsDropped
	case KeyBytesConsumed:
		return &c.bytesConsumed
	case KeyFramesParsed:
		return &c.framesParsed
	case KeyFramesInvalid:
		return &c.framesInvalid
	case KeyEntitiesDecoded:
		return &c.entitiesDecoded
	case KeyRemoveMismatches:
		return &c.removeMismatches
	case KeyParseDurationMicro:
		return &c.parseDurationUs
	case KeyLastServerFrame:
		return &c.lastServerFrame
	default:
		return nil
	}
}

// Add implements Metrics. Unknown keys are ignored.
func (c *Counters) Add(key string, delta uint64) {
	if c == nil {
		return
	}
	if v := c.counter(key); v != nil {
		v.Add(delta)
	}
}

// Store implements Metrics. Unknown keys are ignored.
func (c *Counters) Store(key string, value uint64) {
	if c == nil {
		return
	}
	if v := c.counter(key); v != nil {
		v.Store(value)
	}
	if key == KeyParseDurationMicro && c.debug {
		fmt.Printf(
			"[telemetry] parse=%dus frames=%d invalid=%d entities=%d bytes=%d\n",
			value,
			c.framesParsed.Load(),
			c.framesInvalid.Load(),
			c.entitiesDecoded.Load(),
			c.bytesConsumed.Load(),
		)
	}
}

func (c *Counters) DebugEnabled() bool {
	return c.debug
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PacketsProcessed: c.packetsProcessed.Load(),
		PacketsDropped:   c.packetsDropped.Load(),
		BytesConsumed:    c.bytesConsumed.Load(),
		FramesParsed:     c.framesParsed.Load(),
		FramesInvalid:    c.framesInvalid.Load(),
		EntitiesDecoded:  c.entitiesDecoded.Load(),
		RemoveMismatches: c.removeMismatches.Load(),
		ParseDurationUs:  c.parseDurationUs.Load(),
		LastServerFrame:  c.lastServerFrame.Load(),
	}
}
