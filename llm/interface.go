// Package llm defines the provider-neutral view of the hosted assistant service:
// conversation threads, runs, thread messages, and plain chat completions.
package llm

import (
	"context"
	"io"
)

// Provider is the hosted assistant service.
type Provider interface {
	// CreateThread opens a new conversation thread and returns its id.
	CreateThread(ctx context.Context) (string, error)

	// PostMessage appends a user turn to a thread.
	PostMessage(ctx context.Context, threadID, content string) error

	// StartRun asks the assistant to process the thread's latest user turn.
	StartRun(ctx context.Context, threadID, assistantID string) (*Run, error)

	// GetRun fetches the current state of a run.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)

	// ListMessages returns the thread's messages, newest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)

	// CompleteChat issues one non-streaming completion and returns its text.
	CompleteChat(ctx context.Context, model string, messages []ChatMessage) (string, error)

	// StreamChat issues one streaming completion. The reader yields the text as
	// tokens arrive; the caller must close it.
	StreamChat(ctx context.Context, model string, messages []ChatMessage) (io.ReadCloser, error)
}
