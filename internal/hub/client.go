package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

var (
	// ErrSendBufferFull is returned by Deliver when the client cannot keep
	// up with the event rate.
	ErrSendBufferFull = errors.New("client send buffer full")

	// ErrClientClosed is returned by Deliver after the client has detached.
	ErrClientClosed = errors.New("client closed")
)

// Config bounds one overlay websocket connection.
type Config struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// Client is one overlay websocket subscriber. The buffered send channel
// keeps per-subscriber delivery FIFO; the write pump owns the connection's
// write side.
type Client struct {
	id     string
	room   domain.RoomID
	conn   *websocket.Conn
	send   chan []byte
	cfg    Config
	closed sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(id string, room domain.RoomID, conn *websocket.Conn, cfg Config) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Client{
		id:   id,
		room: room,
		conn: conn,
		send: make(chan []byte, cfg.SendBuffer),
		cfg:  cfg,
	}
}

// ID returns the subscriber identity.
func (c *Client) ID() string { return c.id }

// Room returns the room this client subscribed to.
func (c *Client) Room() domain.RoomID { return c.room }

// Deliver queues one live event for the client. It never blocks: a full
// buffer is reported as a delivery failure and the event is dropped for
// this client only.
func (c *Client) Deliver(ev *domain.LiveEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Send queues an arbitrary message (command replies, error messages).
func (c *Client) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) (err error) {
	defer func() {
		// The send channel is closed on detach; a late delivery racing the
		// close is a delivery failure, not a crash.
		if recover() != nil {
			err = ErrClientClosed
		}
	}()
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ReadPump reads client commands until the connection dies. onMessage is
// invoked per text frame; onClose exactly once when the pump exits.
func (c *Client) ReadPump(onMessage func(data []byte), onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Debug().Err(err).Str(log.FieldSubscriberID, c.id).Msg("websocket read error")
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

// WritePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts the send channel down; the write pump then closes the
// connection. Safe to call more than once.
func (c *Client) Close() {
	c.closed.Do(func() {
		close(c.send)
	})
}
