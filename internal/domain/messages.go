package domain

// WebSocket command types from the overlay client.
const (
	CmdStartStream = "start_stream"
	CmdStopStream  = "stop_stream"
	CmdReconnect   = "reconnect"
	CmdPing        = "ping"
)

// WebSocket message types to the overlay client that are not live events.
const (
	MsgTypePong = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeRoomOffline   = "ROOM_OFFLINE"
	ErrCodeRoomBlocked   = "ROOM_BLOCKED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// ClientCommand is the base structure for overlay client commands.
type ClientCommand struct {
	Command string `json:"command"`
}

// ErrorMessage is sent to a client when a command or a room request fails.
type ErrorMessage struct {
	Type    string   `json:"type"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string, details ...string) *ErrorMessage {
	return &ErrorMessage{
		Type:    EventError,
		Code:    code,
		Message: message,
		Details: details,
	}
}
