package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
)

const testWait = 5 * time.Second

// stubConn is one accepted connection on the stub relay.
type stubConn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	registers chan proto.Register
}

func (s *stubConn) writeJSON(t *testing.T, v any) {
	t.Helper()
	b, err := proto.Encode(v)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("stub write failed: %v", err)
	}
}

// startStubRelay runs a minimal signaling endpoint that acknowledges
// register frames and hands each accepted connection to the test.
func startStubRelay(t *testing.T) (string, chan *stubConn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *stubConn, 4)
	var seq atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &stubConn{ws: ws, registers: make(chan proto.Register, 4)}
		conns <- sc
		go func() {
			defer ws.Close()
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				var env proto.Envelope
				if json.Unmarshal(data, &env) != nil || env.Type != proto.TypeRegister {
					continue
				}
				var reg proto.Register
				if json.Unmarshal(data, &reg) != nil {
					continue
				}
				sc.registers <- reg
				connID := fmt.Sprintf("srv-conn-%d", seq.Add(1))
				b, _ := proto.Encode(&proto.Registered{Type: proto.TypeRegistered, CallID: reg.CallID, ConnID: domain.ConnID(connID)})
				sc.mu.Lock()
				_ = ws.WriteMessage(websocket.TextMessage, b)
				sc.mu.Unlock()
			}
		}()
	}))
	t.Cleanup(ts.Close)

	return strings.Replace(ts.URL, "http", "ws", 1), conns
}

func mustConn(t *testing.T, conns chan *stubConn) *stubConn {
	t.Helper()
	select {
	case sc := <-conns:
		return sc
	case <-time.After(testWait):
		t.Fatal("no connection reached the stub relay")
		return nil
	}
}

func mustRegister(t *testing.T, sc *stubConn) proto.Register {
	t.Helper()
	select {
	case reg := <-sc.registers:
		return reg
	case <-time.After(testWait):
		t.Fatal("no register frame received")
		return proto.Register{}
	}
}

func waitEvent(t *testing.T, events <-chan core.TransportEvent, match func(core.TransportEvent) bool, what string) core.TransportEvent {
	t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", what)
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestClientRegistersOnConnect(t *testing.T) {
	url, conns := startStubRelay(t)

	client := Dial(context.Background(), url, "alice", "Alice", zerolog.Nop())
	t.Cleanup(client.Close)

	sc := mustConn(t, conns)
	reg := mustRegister(t, sc)
	if reg.CallID != "alice" || reg.DisplayName != "Alice" {
		t.Fatalf("unexpected register frame: %+v", reg)
	}

	waitEvent(t, client.Events(), func(ev core.TransportEvent) bool {
		return ev.Msg == nil && ev.State == core.TransportRegistered
	}, "registered state")

	if client.ConnID() == "" {
		t.Fatal("conn id not recorded after registration")
	}
}

func TestClientDeliversInboundMessages(t *testing.T) {
	url, conns := startStubRelay(t)

	client := Dial(context.Background(), url, "alice", "", zerolog.Nop())
	t.Cleanup(client.Close)

	sc := mustConn(t, conns)
	mustRegister(t, sc)

	sc.writeJSON(t, &proto.CallRequest{Type: proto.TypeCallRequest, From: "conn-b", FromCallID: "bob", FromName: "Bob"})

	ev := waitEvent(t, client.Events(), func(ev core.TransportEvent) bool {
		_, ok := ev.Msg.(*proto.CallRequest)
		return ok
	}, "relayed call request")
	req := ev.Msg.(*proto.CallRequest)
	if req.FromCallID != "bob" || req.From != "conn-b" {
		t.Fatalf("unexpected call request: %+v", req)
	}
}

func TestClientSendRequiresConnection(t *testing.T) {
	client := Dial(context.Background(), "ws://127.0.0.1:1/nope", "alice", "", zerolog.Nop())
	t.Cleanup(client.Close)

	err := client.Send(&proto.EndCall{Type: proto.TypeEndCall})
	if err != core.ErrSignalingDown {
		t.Fatalf("expected ErrSignalingDown, got %v", err)
	}
}

func TestClientReconnectsAndReregisters(t *testing.T) {
	url, conns := startStubRelay(t)

	client := Dial(context.Background(), url, "alice", "", zerolog.Nop())
	t.Cleanup(client.Close)

	first := mustConn(t, conns)
	mustRegister(t, first)
	waitEvent(t, client.Events(), func(ev core.TransportEvent) bool {
		return ev.Msg == nil && ev.State == core.TransportRegistered
	}, "initial registration")

	// Kill the connection from the relay side.
	first.ws.Close()

	waitEvent(t, client.Events(), func(ev core.TransportEvent) bool {
		return ev.Msg == nil && ev.State == core.TransportDown
	}, "down state")

	second := mustConn(t, conns)
	reg := mustRegister(t, second)
	if reg.CallID != "alice" {
		t.Fatalf("reconnect registered as %q", reg.CallID)
	}
	waitEvent(t, client.Events(), func(ev core.TransportEvent) bool {
		return ev.Msg == nil && ev.State == core.TransportRegistered
	}, "re-registration")
}
