package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// PacketHandler consumes one server packet.
type PacketHandler interface {
	ProcessPacket(ctx context.Context, data []byte) error
}

// ReplayOptions control playback speed.
type ReplayOptions struct {
	// Interval between packets. Zero replays as fast as possible, the
	// timedemo behaviour.
	Interval time.Duration
}

// Replay feeds every packet of r to h until the end marker, a handler error
// or cancellation. It returns the number of packets delivered.
func Replay(ctx context.Context, r *Reader, h PacketHandler, opts ReplayOptions) (int, error) {
	var ticker *time.Ticker
	if opts.Interval > 0 {
		ticker = time.NewTicker(opts.Interval)
		defer ticker.Stop()
	}
	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		block, err := r.Next()
		if errors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, err
		}
		if err := h.ProcessPacket(ctx, block); err != nil {
			return delivered, fmt.Errorf("demo packet %d: %w", r.Count()-1, err)
		}
		delivered++
		if ticker != nil {
			select {
			case <-ctx.Done():
				return delivered, ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
