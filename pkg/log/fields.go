package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Live room
	FieldRoomID       = "room_id"
	FieldStreamID     = "stream_id"
	FieldEventType    = "event_type"
	FieldSubscriberID = "subscriber_id"
	FieldAttempt      = "attempt"
	FieldStage        = "stage"

	// Service
	FieldService = "service"
)
