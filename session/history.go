package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/creastat/assistant"
)

// HistoryLimits bound the history kept per session.
type HistoryLimits struct {
	Messages int
	Tokens   int
}

// DefaultHistoryLimits keeps the last 20 turns within roughly 4000 tokens.
var DefaultHistoryLimits = HistoryLimits{Messages: 20, Tokens: 4000}

const maxAppendAttempts = 3

// Turn is one history entry to record against a session.
type Turn struct {
	SessionID string
	UserID    string
	RunID     string
	Role      string
	Content   string
}

// AppendTurn adds a turn to the session, creating the session on first use.
// Version conflicts are retried a few times before giving up.
func AppendTurn(ctx context.Context, store Store, turn Turn, limits HistoryLimits) error {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := appendOnce(ctx, store, turn, limits)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("failed to append turn to session %s: %w", turn.SessionID, ErrVersionConflict)
}

func appendOnce(ctx context.Context, store Store, turn Turn, limits HistoryLimits) error {
	data, err := store.Get(ctx, turn.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", turn.SessionID, err)
	}

	if data == nil {
		data = &SessionData{ID: turn.SessionID, UserID: turn.UserID, LastRunID: turn.RunID}
		data.History = assistant.AddMessageToHistory(nil, turn.Role, turn.Content)
		return store.Create(ctx, data)
	}

	if turn.RunID != "" {
		data.LastRunID = turn.RunID
	}
	if data.UserID == "" {
		data.UserID = turn.UserID
	}
	data.History = assistant.AddMessageToHistory(data.History, turn.Role, turn.Content)
	data.History = assistant.TruncateHistory(data.History, limits.Tokens, limits.Messages)
	return store.Update(ctx, data)
}
