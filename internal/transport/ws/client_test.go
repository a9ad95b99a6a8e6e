package ws

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recorder struct {
	mu      sync.Mutex
	packets [][]byte
	fail    error
	delta   int32
}

func (r *recorder) ProcessPacket(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, append([]byte(nil), data...))
	r.delta = int32(len(r.packets)) * 10
	return r.fail
}

func (r *recorder) DeltaRequest() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delta
}

// relay sends the packets, collects the acknowledgements and closes.
func relay(t *testing.T, packets [][]byte, acks chan<- AckMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("motd"))
		for _, p := range packets {
			if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
				return
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ack AckMessage
			if err := json.Unmarshal(data, &ack); err != nil {
				t.Errorf("decode ack: %v", err)
				return
			}
			acks <- ack
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientDeliversPacketsAndAcknowledges(t *testing.T) {
	acks := make(chan AckMessage, 4)
	srv := relay(t, [][]byte{{1}, {2, 3}}, acks)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, wsURL(srv), ClientConfig{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	rec := &recorder{}
	if err := client.Run(ctx, rec); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.packets) != 2 || rec.packets[1][1] != 3 {
		t.Fatalf("expected both packets, got %v", rec.packets)
	}
	close(acks)
	var frames []int32
	for ack := range acks {
		if ack.Type != ackType {
			t.Fatalf("unexpected ack type %q", ack.Type)
		}
		frames = append(frames, ack.Frame)
	}
	if len(frames) != 2 || frames[0] != 10 || frames[1] != 20 {
		t.Fatalf("unexpected acknowledged frames %v", frames)
	}
}

func TestClientStopsOnHandlerError(t *testing.T) {
	acks := make(chan AckMessage, 4)
	srv := relay(t, [][]byte{{1}, {2}}, acks)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, wsURL(srv), ClientConfig{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	boom := errors.New("bad packet")
	rec := &recorder{fail: boom}
	if err := client.Run(ctx, rec); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if len(rec.packets) != 1 {
		t.Fatalf("expected processing to stop after the first packet, got %d", len(rec.packets))
	}
}

func TestClientCancellation(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := Dial(ctx, wsURL(srv), ClientConfig{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, &recorder{}) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancellation")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(nethttp.NotFoundHandler())
	defer srv.Close()
	if _, err := Dial(context.Background(), wsURL(srv), ClientConfig{}); err == nil {
		t.Fatalf("expected dial to fail against a plain http endpoint")
	}
}

func TestTruncateReason(t *testing.T) {
	if got := truncateReason(strings.Repeat("x", 200)); len(got) != 123 {
		t.Fatalf("expected 123 bytes, got %d", len(got))
	}
}
