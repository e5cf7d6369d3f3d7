package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerdial/peerdial/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, cid domain.ConnID, c *wsConn, cancel context.CancelFunc) {
	pinger := time.NewTicker(ctl.PingPeriod)
	defer func() {
		pinger.Stop()
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("writePump ctx done")
			return
		case <-pinger.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("conn", string(cid)).Msg("ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "relay").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cid domain.ConnID, c *wsConn, clientToken string, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("readPump closing")
		cancel()
		ctl.onDisconnect(cid)
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	// A silent client is dead after two missed pings.
	deadline := 2 * ctl.PingPeriod
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "relay").Str("conn", string(cid)).Msg("readPump read error")
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
			ctl.handleFrame(cid, c, clientToken, data)
		}
	}
}
