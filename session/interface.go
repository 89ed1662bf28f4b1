package session

import "context"

// Store keeps one SessionData per assistant thread.
//
// Get returns (nil, nil) for an unknown thread. Update succeeds only when the
// caller's Version matches the stored one; on success the stored Version is
// incremented and copied back into data.
type Store interface {
	Create(ctx context.Context, data *SessionData) error
	Get(ctx context.Context, threadID string) (*SessionData, error)
	Update(ctx context.Context, data *SessionData) error
	Delete(ctx context.Context, threadID string) error
	Close() error
}
