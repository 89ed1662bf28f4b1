package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/ratelimit"
)

// ThreadStore maps users to provider threads, creating a thread on first contact.
type ThreadStore struct {
	provider llm.Provider
	repo     ThreadRepository
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewThreadStore creates a ThreadStore. repo may be nil, in which case every call
// creates a fresh thread and nothing is persisted.
func NewThreadStore(provider llm.Provider, repo ThreadRepository, limiter *ratelimit.Limiter, logger *slog.Logger) *ThreadStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadStore{provider: provider, repo: repo, limiter: limiter, logger: logger}
}

// ResolveThread returns the user's persisted thread, or creates and persists a
// new one. Persistence failures never fail the call: a failed lookup is a miss
// and a failed save only loses the mapping.
func (s *ThreadStore) ResolveThread(ctx context.Context, userID string) (string, error) {
	if userID != "" && s.repo != nil {
		threadID, err := s.repo.GetThread(ctx, userID)
		switch {
		case err != nil:
			s.logger.Warn("thread lookup failed, creating a new thread", "user_id", userID, "error", err)
		case threadID != "":
			s.logger.Debug("reusing thread", "user_id", userID, "thread_id", threadID)
			return threadID, nil
		}
	}

	threadID, err := s.provider.CreateThread(ctx)
	record(s.limiter, KeyThreadCreate, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", assistant.ErrThreadCreationFailed, err)
	}
	s.logger.Info("thread created", "user_id", userID, "thread_id", threadID)

	if userID != "" && s.repo != nil {
		if err := s.repo.SaveThread(ctx, userID, threadID); err != nil {
			s.logger.Warn("failed to persist thread", "user_id", userID, "thread_id", threadID, "error", err)
		}
	}
	return threadID, nil
}
