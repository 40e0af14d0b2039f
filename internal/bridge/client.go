package bridge

import (
	"sync"

	"github.com/ashgrove/questforge/internal/logger"
	"github.com/gorilla/websocket"
)

// client wraps one websocket connection. Reads happen on the client's
// own goroutine; writes are serialized by the mutex because gorilla
// connections allow only one concurrent writer.
type client struct {
	bridge *Bridge
	conn   *websocket.Conn

	writeMu sync.Mutex

	adminMu sync.RWMutex
	admin   bool

	closeOnce sync.Once
}

func newClient(b *Bridge, conn *websocket.Conn) *client {
	return &client{bridge: b, conn: conn}
}

// readLoop decodes inbound messages until the connection dies. A
// malformed message is logged and skipped; it never kills the
// connection.
func (c *client) readLoop() {
	defer c.bridge.dropClient(c)
	defer c.close()

	for {
		var msg inbound
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warning("Host connection error", "error", err)
			}
			return
		}
		if msg.Type == "" {
			logger.Debug("Message without type dropped")
			continue
		}
		c.bridge.handleMessage(c, msg)
	}
}

func (c *client) send(out outbound) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(out); err != nil {
		logger.Debug("Write to host failed", "type", out.Type, "error", err)
	}
}

func (c *client) setAdmin(v bool) {
	c.adminMu.Lock()
	defer c.adminMu.Unlock()
	c.admin = v
}

func (c *client) isAdmin() bool {
	c.adminMu.RLock()
	defer c.adminMu.RUnlock()
	return c.admin
}

func (c *client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
