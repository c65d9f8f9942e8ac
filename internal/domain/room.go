package domain

import "strings"

// RoomID is the normalized handle of a live room. It is the sole key used by
// the room registry, so any user-supplied handle must go through
// NormalizeRoomID before touching the registry.
type RoomID string

// NormalizeRoomID maps any input handle to its canonical room ID: surrounding
// whitespace trimmed, leading @ markers stripped, lower-cased. The mapping is
// total and idempotent.
func NormalizeRoomID(handle string) RoomID {
	s := strings.TrimSpace(handle)
	s = strings.TrimLeft(s, "@")
	return RoomID(strings.ToLower(s))
}

func (r RoomID) String() string {
	return string(r)
}
