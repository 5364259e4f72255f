package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency"
	FieldClientIP  = "client_ip"

	// Deliberation domain
	FieldRoomID    = "room_id"
	FieldUsername  = "username"
	FieldMessageID = "message_id"
	FieldStance    = "stance"
	FieldEnvelope  = "envelope_type"

	// Service
	FieldService = "service"
)
