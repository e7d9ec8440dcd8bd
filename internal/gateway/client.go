package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supernoba/marketstream/internal/model"
)

// client is one WebSocket connection and its outbound queue.
type client struct {
	id     string
	userID string
	tier   model.ConnectionTier

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id, userID string, tier model.ConnectionTier, conn *websocket.Conn, sendBuffer int) *client {
	return &client{
		id:     id,
		userID: userID,
		tier:   tier,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// close signals both pumps to stop. Safe to call more than once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// readPump consumes inbound frames until the connection drops.
func (g *Gateway) readPump(c *client) {
	defer g.wg.Done()
	defer g.disconnect(c)

	c.conn.SetReadLimit(g.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("unexpected close", "conn_id", c.id, "err", err)
			}
			return
		}
		g.handleMessage(c, payload)
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings.
func (g *Gateway) writePump(c *client) {
	defer g.wg.Done()

	pingInterval := (g.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.closed:
			return

		case <-g.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return

		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
