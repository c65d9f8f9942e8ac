package pubsub

import "fmt"

// Channel naming conventions for the overlay event bus.
const (
	// Per-room live event fan-out (group delivery fallback).
	ChannelLiveRoom = "live:%s"

	// Per-room last-X widget updates.
	ChannelLastX = "lastx:%s"
)

// LiveRoomChannel returns the group channel name for a room's live events.
func LiveRoomChannel(roomID string) string {
	return fmt.Sprintf(ChannelLiveRoom, roomID)
}

// LastXChannel returns the widget update channel for a room.
func LastXChannel(roomID string) string {
	return fmt.Sprintf(ChannelLastX, roomID)
}

// Event types on the last-X widget channel.
const (
	EventLastXUpdate = "lastx_update"
)

// LastXUpdatePayload is pushed whenever the most recent interaction of a
// widget type changes.
type LastXUpdatePayload struct {
	WidgetType string `json:"widget_type"`
	Username   string `json:"username"`
	RoomID     string `json:"room_id"`
}
