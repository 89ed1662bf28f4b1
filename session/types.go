package session

import (
	"errors"
	"time"

	"github.com/creastat/assistant"
)

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
)

// SessionData is the conversation state kept next to a provider thread.
// ID is the provider thread id; the assistant itself keeps the full transcript,
// this only holds what the fallback path needs when the run path fails.
type SessionData struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int64               `json:"version"` // Monotonically increasing for optimistic locking
	LastRunID string              `json:"last_run_id"`
	History   []assistant.Message `json:"history"`
}

func (d *SessionData) clone() *SessionData {
	c := *d
	c.History = append([]assistant.Message(nil), d.History...)
	return &c
}
