package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-lesson/internal/platform/cache"
)

// RedisStore keeps drafts in Redis/Dragonfly, namespaced per learner.
// Drafts and positions expire after ttl of inactivity (0 keeps them forever).
type RedisStore struct {
	client *redis.Client
	userID string
	ttl    time.Duration
}

// NewRedisStore creates a store whose keys are namespaced by userID.
func NewRedisStore(client *redis.Client, userID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		userID: userID,
		ttl:    ttl,
	}
}

func (s *RedisStore) draftKey(moduleID string) string {
	return cache.Key(s.userID, "draft", moduleID)
}

func (s *RedisStore) positionKey(moduleID string) string {
	return cache.Key(s.userID, "position", moduleID)
}

func (s *RedisStore) LoadDraft(ctx context.Context, moduleID string) (Draft, bool, error) {
	data, err := s.client.Get(ctx, s.draftKey(moduleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, fmt.Errorf("loading draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, false, fmt.Errorf("decoding draft: %w", err)
	}
	return d, true, nil
}

func (s *RedisStore) SaveDraft(ctx context.Context, moduleID string, d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	if err := s.client.Set(ctx, s.draftKey(moduleID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteDraft(ctx context.Context, moduleID string) error {
	if err := s.client.Del(ctx, s.draftKey(moduleID)).Err(); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadPosition(ctx context.Context, moduleID string) (int, bool, error) {
	index, err := s.client.Get(ctx, s.positionKey(moduleID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading position: %w", err)
	}
	return index, true, nil
}

func (s *RedisStore) SavePosition(ctx context.Context, moduleID string, index int) error {
	if err := s.client.Set(ctx, s.positionKey(moduleID), index, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving position: %w", err)
	}
	return nil
}
