package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps sessions as JSON documents with a sliding TTL.
// Updates are guarded with WATCH so concurrent writers cannot interleave.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func (s *redisStore) Create(ctx context.Context, data *SessionData) error {
	stampNew(data, time.Now())
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", data.ID, err)
	}

	created, err := s.client.SetNX(ctx, s.key(data.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", data.ID, err)
	}
	if !created {
		return ErrVersionConflict
	}
	return nil
}

// Get reads a session and slides its TTL in the same command.
func (s *redisStore) Get(ctx context.Context, threadID string) (*SessionData, error) {
	return decodeSession(s.client.GetEx(ctx, s.key(threadID), s.ttl))
}

func (s *redisStore) Update(ctx context.Context, data *SessionData) error {
	key := s.key(data.ID)

	txn := func(tx *redis.Tx) error {
		stored, err := decodeSession(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		if stored == nil {
			return ErrNotFound
		}
		if stored.Version != data.Version {
			return ErrVersionConflict
		}

		next := data.clone()
		next.Version++
		next.UpdatedAt = time.Now()
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode session %s: %w", data.ID, err)
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		}); err != nil {
			return err
		}
		data.Version, data.UpdatedAt = next.Version, next.UpdatedAt
		return nil
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, threadID string) error {
	return s.client.Del(ctx, s.key(threadID)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) key(threadID string) string {
	return s.prefix + threadID
}

// decodeSession turns a GET reply into a session; a missing key is (nil, nil).
func decodeSession(cmd *redis.StringCmd) (*SessionData, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &data, nil
}
