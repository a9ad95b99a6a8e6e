// Package ws carries server packets over a websocket: every binary message
// is one packet, and the client answers each with a JSON acknowledgement of
// the frame it wants the next delta built from.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
)

// PacketHandler consumes one server packet.
type PacketHandler interface {
	ProcessPacket(ctx context.Context, data []byte) error
}

// DeltaRequester reports the frame to acknowledge, -1 for a full frame.
type DeltaRequester interface {
	DeltaRequest() int32
}

// AckMessage is written after every processed packet.
type AckMessage struct {
	Type  string `json:"type"`
	Frame int32  `json:"frame"`
}

const ackType = "ack"

type ClientConfig struct {
	Logger       telemetry.Logger
	Dialer       *websocket.Dialer
	Header       nethttp.Header
	WriteTimeout time.Duration
}

// Client is one websocket connection to a relay.
type Client struct {
	conn         *websocket.Conn
	logger       telemetry.Logger
	writeTimeout time.Duration

	closeOnce sync.Once
}

func Dial(ctx context.Context, url string, cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Client{conn: conn, logger: logger, writeTimeout: writeTimeout}, nil
}

// Run feeds binary messages to h until the relay closes the connection, the
// handler fails or ctx is cancelled. A normal close returns nil.
func (c *Client) Run(ctx context.Context, h PacketHandler) error {
	stop := context.AfterFunc(ctx, func() {
		c.closeWith(websocket.CloseGoingAway, "client shutting down")
	})
	defer stop()
	defer c.closeWith(websocket.CloseNormalClosure, "")

	acks, _ := h.(DeltaRequester)
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read packet: %w", err)
		}
		if kind != websocket.BinaryMessage {
			c.logger.Printf("discarding %d byte non binary message", len(payload))
			continue
		}
		if err := h.ProcessPacket(ctx, payload); err != nil {
			c.closeWith(websocket.CloseProtocolError, truncateReason(err.Error()))
			return err
		}
		if acks != nil {
			if err := c.ack(acks.DeltaRequest()); err != nil {
				return err
			}
		}
	}
}

func (c *Client) ack(frame int32) error {
	data, err := json.Marshal(AckMessage{Type: ackType, Frame: frame})
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	return nil
}

func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(c.writeTimeout))
		_ = c.conn.Close()
	})
}

// Close ends the connection with a normal closure.
func (c *Client) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

// close frames carry at most 123 bytes of reason text
func truncateReason(reason string) string {
	if len(reason) > 123 {
		return reason[:123]
	}
	return reason
}
