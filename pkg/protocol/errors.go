package protocol

// Error codes carried in ErrorShape.Code.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrNotFound          = "NOT_FOUND"
	ErrUnavailable       = "UNAVAILABLE"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrInternal          = "INTERNAL"
)
