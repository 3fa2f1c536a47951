package socket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
)

// Client is one WebSocket connection. A client gains a session after a
// successful login on this connection; the session ties the access token
// and its crypto keys to the connection so later encrypted messages can be
// decrypted without first reading the token.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	token   string
	keys    auth.SessionKeys
	session bool
}

func newClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		id:   uuid.NewString()[:8],
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// bindSession attaches a logged-in session to the connection.
func (c *Client) bindSession(token string, keys auth.SessionKeys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.keys = keys
	c.session = true
}

// clearSession detaches the session, e.g. on logout.
func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.keys = auth.SessionKeys{}
	c.session = false
}

// sessionKeys returns the connection's session crypto material, if any.
func (c *Client) sessionKeys() (auth.SessionKeys, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys, c.session
}

// trySend queues data for the write pump. Closed channels (client gone mid
// broadcast) and full buffers (slow client) are silently skipped.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // absorb send-on-closed-channel during disconnect
	}()

	select {
	case c.send <- data:
	default:
	}
}

// readPump reads messages from the connection and runs each through the
// server's pipeline. Messages from one connection are processed in arrival
// order.
func (c *Client) readPump(s *Server) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := s.wsCfg
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	wait := readWait(cfg)
	//nolint:errcheck // best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "id", c.id, "error", err)
			} else {
				s.logger.Debug("websocket closed", "id", c.id, "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))
		s.process(c, message)
	}
}

// writePump writes queued messages and pings to the connection.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readWait(cfg config.WebSocketConfig) time.Duration {
	return time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
}
