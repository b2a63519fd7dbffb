package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	// Fits the longest valid chat text even when every rune is sent as an
	// escaped surrogate pair, so text length is rejected by validation and
	// not by dropping the socket.
	maxMessageSize = 64 << 10
)

var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one authenticated websocket connection. It is the channel handle
// stored in the Registry.
type Client struct {
	ID     uuid.UUID
	UserID string
	Conn   *websocket.Conn

	send       chan []byte
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn for userID. conn may be nil when the client is only
// used as a push target.
func NewClient(ctx context.Context, userID string, conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    cctx,
		cancel: cancel,
	}
}

// Send encodes an event and queues it without blocking.
func (c *Client) Send(event string, payload any) error {
	data, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

func (c *Client) sendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outbound exposes queued frames; the write pump is the normal consumer.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

// ReadPump reads inbound frames until the connection fails, then
// disconnects the client from the hub.
func (c *Client) ReadPump(hub *Hub) {
	defer func() {
		hub.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Debug("websocket closed unexpectedly",
					zap.String("user_id", c.UserID),
					zap.Error(err),
				)
			}
			return
		}
		hub.HandleInbound(c.ctx, c, data)
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per event; clients parse a single JSON object.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
