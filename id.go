package quizgate

import (
	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewRequestID generates the value used for X-Request-ID when the caller
// did not supply one.
func NewRequestID() string {
	return uuid.NewString()
}
