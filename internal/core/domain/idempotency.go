package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog memoizes the result of a step that must run at most once,
// such as a call to the bank that already succeeded.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "scope:step"
	ResourceID   uuid.UUID `json:"resource_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(scope uuid.UUID, step string) string {
	return scope.String() + ":" + step
}
