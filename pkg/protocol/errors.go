package protocol

// Error codes carried in ErrorShape.Code by the HTTP and WebSocket endpoints.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrNotFound          = "NOT_FOUND"
	ErrMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrInputRejected     = "INPUT_REJECTED"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrAgentTimeout      = "AGENT_TIMEOUT"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"
)
