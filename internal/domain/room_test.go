package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoomID(t *testing.T) {
	tests := []struct {
		name   string
		handle string
		want   RoomID
	}{
		{"plain handle", "streamer42", "streamer42"},
		{"leading at", "@streamer42", "streamer42"},
		{"double at", "@@streamer42", "streamer42"},
		{"surrounding whitespace", "  @streamer42  ", "streamer42"},
		{"mixed case", "@StreamerFortyTwo", "streamerfortytwo"},
		{"empty", "", ""},
		{"only at markers", "@@@", ""},
		{"inner at kept", "user@home", "user@home"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRoomID(tt.handle))
		})
	}
}

func TestNormalizeRoomIDIdempotent(t *testing.T) {
	for _, handle := range []string{"@Streamer42", "  user  ", "@@X", "plain"} {
		once := NormalizeRoomID(handle)
		twice := NormalizeRoomID(string(once))
		assert.Equal(t, once, twice, "normalizing %q twice changed the result", handle)
	}
}
