// Package transport implements the participant side of the signaling
// connection: a persistent websocket to the relay that registers the stable
// call id on every (re)connect and feeds decoded messages to the session
// layer.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peerdial/peerdial/internal/core"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 20 * time.Second
	pongWait   = 2 * pingPeriod

	backoffMin = time.Second
	backoffMax = 30 * time.Second
)

// Client keeps one signaling connection alive. It reconnects on its own with
// capped exponential backoff and re-registers after every reconnect; the
// session layer only sees the state transitions.
type Client struct {
	url         string
	callID      domain.CallID
	displayName string
	log         zerolog.Logger

	events chan core.TransportEvent

	mu     sync.Mutex
	conn   *websocket.Conn
	connID domain.ConnID
	up     bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial starts the connection loop. It returns immediately; registration is
// reported through Events as TransportRegistered.
func Dial(ctx context.Context, url string, callID domain.CallID, displayName string, logger zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		url:         url,
		callID:      callID,
		displayName: displayName,
		log:         logger,
		events:      make(chan core.TransportEvent, 32),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Client) Events() <-chan core.TransportEvent { return c.events }

func (c *Client) ConnID() domain.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Send marshals and writes one signaling message on the current connection.
func (c *Client) Send(msg any) error {
	b, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.up || c.conn == nil {
		return core.ErrSignalingDown
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return core.ErrSignalingDown
	}
	return nil
}

func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.events)

	backoff := backoffMin
	for {
		if c.ctx.Err() != nil {
			return
		}
		c.emit(core.TransportEvent{State: core.TransportConnecting})

		if err := c.session(); err != nil {
			c.log.Warn().Err(err).Str("module", "transport").Msg("signaling connection lost")
		}
		c.setDown()
		if c.ctx.Err() != nil {
			return
		}
		c.emit(core.TransportEvent{State: core.TransportDown})

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// session runs one connection from dial to failure.
func (c *Client) session() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.up = true
	c.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(conn, stopPing)

	if err := c.Send(&proto.Register{Type: proto.TypeRegister, CallID: c.callID, DisplayName: c.displayName}); err != nil {
		_ = conn.Close()
		return err
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		msg, err := proto.DecodeInbound(data)
		if err != nil {
			c.log.Warn().Err(err).Str("module", "transport").Msg("undecodable frame")
			continue
		}
		if reg, ok := msg.(*proto.Registered); ok {
			c.mu.Lock()
			c.connID = reg.ConnID
			c.mu.Unlock()
			c.log.Info().Str("module", "transport").Str("conn", string(reg.ConnID)).Msg("registered with relay")
			c.emit(core.TransportEvent{State: core.TransportRegistered})
		}
		c.emit(core.TransportEvent{Msg: msg})
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) setDown() {
	c.mu.Lock()
	c.up = false
	c.conn = nil
	c.connID = ""
	c.mu.Unlock()
}

func (c *Client) emit(ev core.TransportEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("module", "transport").Msg("event dropped, consumer too slow")
	}
}
