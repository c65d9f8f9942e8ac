package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/hub"
	"github.com/AlirizaAslan/tikfinity/internal/registry"
	"github.com/AlirizaAslan/tikfinity/internal/upstream"
	"github.com/AlirizaAslan/tikfinity/pkg/jwt"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades overlay connections and drives the per-connection
// command protocol.
type WSHandler struct {
	registry *registry.Registry
	wsCfg    hub.Config
	jwt      *jwt.Manager // nil when auth is disabled
}

func NewWSHandler(reg *registry.Registry, wsCfg hub.Config, jwtManager *jwt.Manager) *WSHandler {
	return &WSHandler{
		registry: reg,
		wsCfg:    wsCfg,
		jwt:      jwtManager,
	}
}

// wsSession is the per-connection state: one client, one room, at most one
// live subscription at a time. gen identifies the current start_stream so a
// dial that was stopped or detached mid-flight can undo its own registration
// without touching a newer one.
type wsSession struct {
	client *hub.Client
	room   domain.RoomID

	mu         sync.Mutex
	subscribed bool
	closed     bool
	gen        uint64
}

// HandleWebSocket serves GET /ws/:room.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	room := domain.NormalizeRoomID(c.Param("room"))
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	if h.jwt != nil {
		if _, err := h.jwt.Validate(c.Query("token")); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), room, conn, h.wsCfg)
	sess := &wsSession{client: client, room: room}

	log.L().Info().
		Str(log.FieldSubscriberID, client.ID()).
		Str(log.FieldRoomID, string(room)).
		Msg("overlay client connected")

	go client.WritePump()
	go client.ReadPump(
		func(data []byte) { h.handleMessage(sess, data) },
		func() { h.detach(sess) },
	)
}

func (h *WSHandler) handleMessage(sess *wsSession, data []byte) {
	var cmd domain.ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		sess.client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid command format"))
		return
	}

	switch cmd.Command {
	case domain.CmdStartStream:
		h.startStream(sess)

	case domain.CmdStopStream:
		h.stopStream(sess)

	case domain.CmdReconnect:
		h.stopStream(sess)
		h.startStream(sess)

	case domain.CmdPing:
		sess.client.Send(map[string]string{"type": domain.MsgTypePong})

	default:
		sess.client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown command: "+cmd.Command))
	}
}

// startStream joins the room's live session, creating it when this is the
// first subscriber. Subscribe blocks while a new session dials upstream, so
// it runs off the read pump; once it returns the goroutine re-checks the
// session state, because the socket may have dropped during the dial and a
// registration must never outlive its connection.
func (h *WSHandler) startStream(sess *wsSession) {
	sess.mu.Lock()
	if sess.closed || sess.subscribed {
		sess.mu.Unlock()
		return
	}
	sess.subscribed = true
	sess.gen++
	gen := sess.gen
	sess.mu.Unlock()

	go func() {
		err := h.registry.Subscribe(context.Background(), sess.room, sess.client)

		sess.mu.Lock()
		current := sess.gen == gen
		live := current && sess.subscribed && !sess.closed
		if err != nil && current {
			sess.subscribed = false
		}
		sess.mu.Unlock()

		switch {
		case err != nil:
			if live {
				sess.client.Send(classifyStartError(sess.room, err))
			}
		case !live:
			// Stopped or detached while the dial was in flight.
			h.registry.RemoveSubscriber(sess.room, sess.client)
		}
	}()
}

func (h *WSHandler) stopStream(sess *wsSession) {
	sess.mu.Lock()
	wasSubscribed := sess.subscribed
	sess.subscribed = false
	sess.mu.Unlock()

	if wasSubscribed {
		h.registry.RemoveSubscriber(sess.room, sess.client)
	}
}

func (h *WSHandler) detach(sess *wsSession) {
	sess.mu.Lock()
	wasSubscribed := sess.subscribed
	sess.subscribed = false
	sess.closed = true
	sess.mu.Unlock()

	if wasSubscribed {
		h.registry.RemoveSubscriber(sess.room, sess.client)
	}
	log.L().Info().
		Str(log.FieldSubscriberID, sess.client.ID()).
		Str(log.FieldRoomID, string(sess.room)).
		Msg("overlay client disconnected")
}

func classifyStartError(room domain.RoomID, err error) *domain.ErrorMessage {
	switch {
	case errors.Is(err, upstream.ErrRoomOffline), errors.Is(err, upstream.ErrRoomNotFound):
		return domain.NewErrorMessage(domain.ErrCodeRoomOffline,
			"@"+string(room)+" is not live right now",
			"Check the username and try again once the stream is live")
	case errors.Is(err, upstream.ErrBlocked):
		return domain.NewErrorMessage(domain.ErrCodeRoomBlocked,
			"The live source is rejecting connections",
			"Wait a few minutes before reconnecting, or switch networks")
	default:
		return domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to connect to the live stream")
	}
}
