package domain

import "time"

// Live event types pushed to overlay subscribers.
const (
	EventConnection    = "connection"
	EventDisconnection = "disconnection"
	EventViewerUpdate  = "viewer_update"
	EventComment       = "comment"
	EventGift          = "gift"
	EventFollow        = "follow"
	EventLike          = "like"
	EventJoin          = "join"
	EventShare         = "share"
	EventTTS           = "tts"
	EventLastX         = "lastx_update"
	EventError         = "error"
)

// Connection status values for EventConnection / EventDisconnection.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusStarted      = "started"
	StatusStopped      = "stopped"
)

// LiveEvent is the normalized form of one upstream room event. Fields not
// relevant to an event type are left zero and omitted from the wire format.
// Timestamp is set exactly once, when the raw upstream message is normalized;
// downstream consumers must never re-derive it.
type LiveEvent struct {
	Type        string    `json:"type"`
	Status      string    `json:"status,omitempty"`
	RoomID      RoomID    `json:"room_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Message     string    `json:"message,omitempty"`
	GiftName    string    `json:"gift_name,omitempty"`
	GiftValue   int       `json:"gift_value,omitempty"`
	GiftCount   int       `json:"gift_count,omitempty"`
	Widget      string    `json:"widget,omitempty"`
	LikeCount   int       `json:"like_count,omitempty"`
	TotalLikes  int       `json:"total_likes,omitempty"`
	ViewerCount int       `json:"viewer_count,omitempty"`
	Text        string    `json:"text,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// NewConnectionEvent reports a change of the upstream connection state.
func NewConnectionEvent(room RoomID, status, message string) *LiveEvent {
	typ := EventConnection
	if status == StatusDisconnected {
		typ = EventDisconnection
	}
	return &LiveEvent{
		Type:      typ,
		Status:    status,
		RoomID:    room,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewViewerUpdateEvent reports the current viewer count of a room.
func NewViewerUpdateEvent(room RoomID, count int) *LiveEvent {
	return &LiveEvent{
		Type:        EventViewerUpdate,
		RoomID:      room,
		ViewerCount: count,
		Timestamp:   time.Now(),
	}
}

// NewCommentEvent normalizes a chat comment.
func NewCommentEvent(room RoomID, username, message string) *LiveEvent {
	return &LiveEvent{
		Type:      EventComment,
		RoomID:    room,
		Username:  username,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewGiftEvent normalizes a finalized gift. Combo gifts must be finalized
// before this is called; the count is the completed streak total.
func NewGiftEvent(room RoomID, username, giftName string, value, count int) *LiveEvent {
	return &LiveEvent{
		Type:      EventGift,
		RoomID:    room,
		Username:  username,
		GiftName:  giftName,
		GiftValue: value,
		GiftCount: count,
		Timestamp: time.Now(),
	}
}

// NewFollowEvent normalizes a new follower.
func NewFollowEvent(room RoomID, username string) *LiveEvent {
	return &LiveEvent{
		Type:      EventFollow,
		RoomID:    room,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// NewLikeEvent normalizes a like burst.
func NewLikeEvent(room RoomID, username string, count, total int) *LiveEvent {
	if total < count {
		total = count
	}
	return &LiveEvent{
		Type:       EventLike,
		RoomID:     room,
		Username:   username,
		LikeCount:  count,
		TotalLikes: total,
		Timestamp:  time.Now(),
	}
}

// NewJoinEvent normalizes a viewer joining the room.
func NewJoinEvent(room RoomID, username string) *LiveEvent {
	return &LiveEvent{
		Type:      EventJoin,
		RoomID:    room,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// NewShareEvent normalizes a stream share.
func NewShareEvent(room RoomID, username string) *LiveEvent {
	return &LiveEvent{
		Type:      EventShare,
		RoomID:    room,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// NewTTSEvent carries a synthesized audio reference for an eligible comment.
func NewTTSEvent(room RoomID, username, text, audioURL string) *LiveEvent {
	return &LiveEvent{
		Type:      EventTTS,
		RoomID:    room,
		Username:  username,
		Text:      text,
		AudioURL:  audioURL,
		Timestamp: time.Now(),
	}
}

// NewLastXEvent reports that the most recent interactor shown by a last-X
// widget changed.
func NewLastXEvent(room RoomID, widget, username string) *LiveEvent {
	return &LiveEvent{
		Type:      EventLastX,
		RoomID:    room,
		Widget:    widget,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent carries a terminal error message to the subscriber that
// requested the room.
func NewErrorEvent(room RoomID, message string) *LiveEvent {
	return &LiveEvent{
		Type:      EventError,
		RoomID:    room,
		Message:   message,
		Timestamp: time.Now(),
	}
}
