package session

import (
	"context"
	"time"
)

func (s *memoryStore) Create(ctx context.Context, data *SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[data.ID]; ok {
		return ErrVersionConflict
	}
	stampNew(data, time.Now())
	s.threads[data.ID] = data.clone()
	return nil
}

func (s *memoryStore) Get(ctx context.Context, threadID string) (*SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if data, ok := s.threads[threadID]; ok {
		return data.clone(), nil
	}
	return nil, nil
}

func (s *memoryStore) Update(ctx context.Context, data *SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.threads[data.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != data.Version {
		return ErrVersionConflict
	}
	data.Version++
	data.UpdatedAt = time.Now()
	s.threads[data.ID] = data.clone()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.threads)
	return nil
}

func stampNew(data *SessionData, now time.Time) {
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1
}
