package upstream

import (
	"context"
	"errors"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
)

// Terminal connection failures, classified by the dialer.
var (
	// ErrRoomOffline means the target exists but is not currently live.
	ErrRoomOffline = errors.New("room is not currently live")
	// ErrRoomNotFound means no such room handle exists upstream.
	ErrRoomNotFound = errors.New("room not found")
	// ErrBlocked means the device or network identity is rejected upstream.
	ErrBlocked = errors.New("device or network blocked by upstream")
)

// Raw message kinds received from the upstream feed.
const (
	RawConnected    = "connected"
	RawDisconnected = "disconnected"
	RawRoomUserSeq  = "room_user_seq"
	RawComment      = "comment"
	RawGift         = "gift"
	RawFollow       = "follow"
	RawLike         = "like"
	RawJoin         = "join"
	RawShare        = "share"
)

// RawUser carries the sender identity of an upstream message. Which name
// fields are populated varies between upstream protocol versions.
type RawUser struct {
	UniqueID    string `json:"unique_id"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
}

// Name returns the best available display name for the user.
func (u RawUser) Name() string {
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.DisplayName != "":
		return u.DisplayName
	case u.UniqueID != "":
		return u.UniqueID
	}
	return "Unknown"
}

// RawGiftInfo describes the gift attached to a gift message.
type RawGiftInfo struct {
	Name         string `json:"name"`
	DiamondCount int    `json:"diamond_count"`
	Count        int    `json:"count"`
	Streakable   bool   `json:"streakable"`
	Streaking    bool   `json:"streaking"`
}

// RawMessage is one typed message from the upstream feed, before
// normalization. Viewer-count style messages do not have a stable field name
// across protocol versions, so all known candidates are carried.
type RawMessage struct {
	Kind    string      `json:"kind"`
	User    RawUser     `json:"user"`
	Comment string      `json:"comment,omitempty"`
	Gift    RawGiftInfo `json:"gift,omitempty"`

	LikeCount  int `json:"like_count,omitempty"`
	TotalLikes int `json:"total_likes,omitempty"`

	// Viewer-count candidates, in priority order. The upstream protocol has
	// shipped all three names at different times; see ViewerCount.
	ViewerCount int `json:"viewer_count,omitempty"`
	TotalUser   int `json:"total_user,omitempty"`
	Total       int `json:"total,omitempty"`
}

// viewerCount returns the first positive viewer-count candidate, trying the
// known field names in priority order. Returns 0 when no candidate is
// usable; zero is never reported downstream. Compatibility shim for unstable
// upstream field naming.
func (m RawMessage) viewerCount() int {
	for _, n := range []int{m.ViewerCount, m.TotalUser, m.Total} {
		if n > 0 {
			return n
		}
	}
	return 0
}

// Connection is one established upstream connection. It is owned exclusively
// by the Session that dialed it.
type Connection interface {
	// Events returns the stream of raw messages. The channel is closed when
	// the upstream closes the connection.
	Events() <-chan RawMessage
	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error
}

// Dialer opens connections to live rooms.
type Dialer interface {
	// Dial connects to the given room. Failures are classified with the
	// sentinel errors above where possible.
	Dial(ctx context.Context, room domain.RoomID) (Connection, error)
	// Rotate discards the current connection identity so the next Dial
	// presents as a fresh device. Used after ErrBlocked.
	Rotate()
}
