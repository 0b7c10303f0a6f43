package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Exchange status values.
const (
	StatusCompleted = "completed"
	StatusFallback  = "fallback"
)

// Exchange is one recorded question/answer pair from the assistant.
type Exchange struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Sources        string    `json:"sources"` // JSON array stored as text
	Status         string    `json:"status"`  // "completed" or "fallback"
}
