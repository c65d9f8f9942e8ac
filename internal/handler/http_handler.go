package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/registry"
	"github.com/AlirizaAslan/tikfinity/internal/store"
	"github.com/AlirizaAslan/tikfinity/internal/upstream"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
	"github.com/AlirizaAslan/tikfinity/pkg/response"
)

// widgetInteraction maps a widget type to the interaction type feeding it.
var widgetInteraction = map[string]string{
	"follower": domain.EventFollow,
	"gifter":   domain.EventGift,
	"chatter":  domain.EventComment,
	"liker":    domain.EventLike,
	"sharer":   domain.EventShare,
}

// widgetTestNames back each widget with sample data so an overlay can be
// laid out before the stream is live.
var widgetTestNames = map[string]string{
	"follower": "TestFollower123",
	"gifter":   "TestGifter123",
	"chatter":  "TestChatter123",
	"liker":    "TestLiker123",
	"sharer":   "TestSharer123",
}

// HTTPHandler serves the widget and room-status API.
type HTTPHandler struct {
	registry *registry.Registry
	recorder *store.Recorder
	dialer   upstream.Dialer
	probeCfg upstream.Config
}

func NewHTTPHandler(reg *registry.Registry, rec *store.Recorder, dialer upstream.Dialer, probeCfg upstream.Config) *HTTPHandler {
	return &HTTPHandler{
		registry: reg,
		recorder: rec,
		dialer:   dialer,
		probeCfg: probeCfg,
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/widgets/:type", h.GetWidget)

		rooms := api.Group("/rooms")
		{
			rooms.GET("/:room/live", h.CheckLive)
			rooms.GET("/:room/stats", h.GetStats)
			rooms.DELETE("/:room", h.CloseRoom)
		}
	}
}

// Health is the liveness endpoint.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetWidget returns the most recent interaction of the widget's kind, or
// sample data when `test` is set or nothing has been recorded yet.
func (h *HTTPHandler) GetWidget(c *gin.Context) {
	widgetType := c.Param("type")
	itype, ok := widgetInteraction[widgetType]
	if !ok {
		response.BadRequest(c, "unknown widget type: "+widgetType)
		return
	}

	room := domain.NormalizeRoomID(c.Query("room"))
	if room == "" {
		response.BadRequest(c, "room is required")
		return
	}

	if c.Query("test") != "" {
		response.Success(c, gin.H{
			"widget_type": widgetType,
			"username":    widgetTestNames[widgetType],
			"room_id":     room,
			"test":        true,
		})
		return
	}

	last, err := h.recorder.LastInteraction(c.Request.Context(), room, itype)
	if err != nil {
		if errors.Is(err, store.ErrNoInteraction) {
			response.Success(c, gin.H{
				"widget_type": widgetType,
				"username":    widgetTestNames[widgetType],
				"room_id":     room,
				"test":        true,
			})
			return
		}
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldRoomID, string(room)).Msg("widget lookup failed")
		response.InternalError(c, "failed to load widget data")
		return
	}

	response.Success(c, gin.H{
		"widget_type": widgetType,
		"username":    last.Username,
		"room_id":     room,
		"timestamp":   last.CreatedAt,
	})
}

// CheckLive probes whether the room is currently live without creating a
// session.
func (h *HTTPHandler) CheckLive(c *gin.Context) {
	room := domain.NormalizeRoomID(c.Param("room"))
	if room == "" {
		response.BadRequest(c, "room is required")
		return
	}

	if h.registry.Active(room) {
		response.Success(c, gin.H{"room_id": room, "live": true})
		return
	}

	live, err := upstream.Probe(c.Request.Context(), h.dialer, room, h.probeCfg.ProbeTimeout)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Str(log.FieldRoomID, string(room)).Msg("liveness probe failed")
		response.InternalError(c, "failed to check live status")
		return
	}
	response.Success(c, gin.H{"room_id": room, "live": live})
}

// GetStats returns stream statistics for a room.
func (h *HTTPHandler) GetStats(c *gin.Context) {
	room := domain.NormalizeRoomID(c.Param("room"))
	if room == "" {
		response.BadRequest(c, "room is required")
		return
	}

	stats, err := h.recorder.StreamStats(c.Request.Context(), room)
	if err != nil {
		response.NotFound(c, "no stream recorded for @"+string(room))
		return
	}

	response.Success(c, gin.H{
		"room_id":        room,
		"stream_id":      stats.StreamID,
		"active":         stats.IsActive,
		"viewer_count":   stats.ViewerCount,
		"peak_viewers":   stats.PeakViewers,
		"total_comments": stats.TotalComments,
		"total_gifts":    stats.TotalGifts,
		"total_likes":    stats.TotalLikes,
		"total_shares":   stats.TotalShares,
		"subscribers":    h.registry.SubscriberCount(room),
		"started_at":     stats.StartedAt,
	})
}

// CloseRoom tears the room's session down regardless of subscribers.
func (h *HTTPHandler) CloseRoom(c *gin.Context) {
	room := domain.NormalizeRoomID(c.Param("room"))
	if room == "" {
		response.BadRequest(c, "room is required")
		return
	}

	h.registry.ForceClose(room)
	response.Success(c, gin.H{"room_id": room, "closed": true})
}
