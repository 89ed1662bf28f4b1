package llm

import (
	"errors"
	"strings"
	"time"
)

// Run statuses reported by the provider. Unknown values are passed through as is.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusExpired    = "expired"
)

// ContentTypeText marks a message content part carrying text.
const ContentTypeText = "text"

// Run is one assistant run against a thread.
type Run struct {
	ID          string
	ThreadID    string
	Status      string
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *RunError
}

// RunError is the provider's explanation of a failed run.
type RunError struct {
	Code    string
	Message string
}

// Terminal reports whether the run will not change status any more.
func (r *Run) Terminal() bool {
	return IsTerminal(r.Status)
}

// IsTerminal reports whether status is completed, failed, cancelled or expired.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Message is a message inside a thread.
type Message struct {
	ID        string
	Role      string
	Content   []ContentPart
	CreatedAt time.Time
}

// ContentPart is one piece of message content. Only text parts carry Text.
type ContentPart struct {
	Type string
	Text string
}

// Text concatenates the message's text parts in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ChatMessage is one turn of a plain chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// StatusError is returned by providers when the upstream answered with an HTTP error.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode extracts the upstream HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
