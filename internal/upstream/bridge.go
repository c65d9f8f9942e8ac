package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// BridgeConfig holds settings for the upstream bridge dialer.
type BridgeConfig struct {
	// BaseURL of the relay exposing the live feed over websocket,
	// e.g. ws://localhost:8765
	BaseURL string `mapstructure:"base_url"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

// bridgeStatus is the first frame the relay sends after the websocket
// handshake, before any feed messages.
type bridgeStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Relay error codes mapped onto the session failure taxonomy.
const (
	bridgeErrOffline  = "offline"
	bridgeErrNotFound = "not_found"
	bridgeErrBlocked  = "blocked"
)

// BridgeDialer dials the external live-feed relay over websocket. The relay
// owns the actual upstream protocol and auth; this side only consumes the
// typed JSON feed.
type BridgeDialer struct {
	cfg      BridgeConfig
	dialer   *websocket.Dialer
	mu       sync.Mutex
	deviceID string
}

// NewBridgeDialer creates a dialer with a fresh device identity.
func NewBridgeDialer(cfg BridgeConfig) *BridgeDialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &BridgeDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		deviceID: uuid.New().String(),
	}
}

// Rotate discards the current device identity. The next Dial presents as a
// fresh device to the relay.
func (d *BridgeDialer) Rotate() {
	d.mu.Lock()
	d.deviceID = uuid.New().String()
	d.mu.Unlock()
}

// Dial connects to the relay feed for one room and waits for the status
// frame. Relay-reported failures are classified into the sentinel errors.
func (d *BridgeDialer) Dial(ctx context.Context, room domain.RoomID) (Connection, error) {
	d.mu.Lock()
	deviceID := d.deviceID
	d.mu.Unlock()

	u := fmt.Sprintf("%s/live/%s?device_id=%s", d.cfg.BaseURL, url.PathEscape(room.String()), url.QueryEscape(deviceID))

	conn, _, err := d.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial %s: %w", room, err)
	}

	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	var status bridgeStatus
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
	}
	if err := conn.ReadJSON(&status); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge status read %s: %w", room, err)
	}
	conn.SetReadDeadline(time.Time{})

	if status.Error != "" {
		conn.Close()
		switch status.Error {
		case bridgeErrOffline:
			return nil, fmt.Errorf("%s: %w", room, ErrRoomOffline)
		case bridgeErrNotFound:
			return nil, fmt.Errorf("%s: %w", room, ErrRoomNotFound)
		case bridgeErrBlocked:
			return nil, fmt.Errorf("%s: %w", room, ErrBlocked)
		default:
			return nil, fmt.Errorf("bridge rejected %s: %s", room, status.Error)
		}
	}

	bc := &bridgeConn{
		conn:   conn,
		events: make(chan RawMessage, 64),
		done:   make(chan struct{}),
	}
	go bc.readLoop(room)

	return bc, nil
}

// bridgeConn wraps one relay websocket as a Connection.
type bridgeConn struct {
	conn      *websocket.Conn
	events    chan RawMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *bridgeConn) Events() <-chan RawMessage {
	return c.events
}

func (c *bridgeConn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *bridgeConn) readLoop(room domain.RoomID) {
	defer close(c.events)

	l := log.L().With().Str(log.FieldRoomID, room.String()).Logger()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					l.Warn().Err(err).Msg("bridge connection lost")
				}
			}
			return
		}

		var msg RawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.Debug().Err(err).Msg("skipping malformed bridge message")
			continue
		}

		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}
