package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	sendBufferSize = 256                 // Outbound queue bound per connection.
)

var errSendBufferFull = errors.New("send buffer full")

// Client bridges one websocket connection and the hub. Inbound frames go
// through Dispatch to the hub loop; outbound frames are queued on a bounded
// channel drained by writePump. A full queue drops the frame rather than
// blocking the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	log     *zap.Logger
	session *Session

	send      chan []byte
	closeOnce sync.Once
	closed    bool
}

func newClient(hub *Hub, conn *websocket.Conn, log *zap.Logger, userID int64, username string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		log:  log,
		send: make(chan []byte, sendBufferSize),
	}
	c.session = &Session{
		ID:        uuid.Must(uuid.NewV4()).String(),
		UserID:    userID,
		Username:  username,
		Transport: c,
	}
	return c
}

// Send queues a frame without blocking. Only the hub goroutine calls it.
func (c *Client) Send(payload []byte) error {
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump. Only the hub goroutine calls it.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed = true
		close(c.send)
	})
}

// readPump pumps frames from the websocket to the hub. One goroutine per
// connection; frames from a single connection stay in order.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", zap.String("conn", c.session.ID), zap.Error(err))
			}
			break
		}
		c.hub.Dispatch(c.session, data)
	}
}

// writePump pumps queued frames to the websocket and keeps the connection
// alive with pings. Exits when Close drains the channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
