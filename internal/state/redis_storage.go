package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	chatStateKeyPattern  = "chat:state:%d"
	chatStateScanPattern = "chat:state:*"
)

// DefaultTTL bounds how long an abandoned conversation lingers.
const DefaultTTL = 15 * time.Minute

// RedisStorage persists chat conversation states in Redis.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
// Records expire after ttl (DefaultTTL when zero), so no sweeper is needed.
func NewRedisStorage(client *redis.Client, ttl time.Duration, log *slog.Logger) Storage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStorage{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// GetState returns the stored chat state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, chatID int64) (*UserState, error) {
	key := redisChatStateKey(chatID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get state from redis", "chat_id", chatID, "error", err)
		return nil, err
	}

	var state UserState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Error("failed to decode chat state", "chat_id", chatID, "error", err)
		return nil, err
	}

	return &state, nil
}

// SetState saves the provided chat state with the configured TTL.
func (s *RedisStorage) SetState(ctx context.Context, chatID int64, state *UserState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to encode chat state", "chat_id", chatID, "error", err)
		return err
	}

	key := redisChatStateKey(chatID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save state in redis", "chat_id", chatID, "error", err)
		return err
	}

	return nil
}

// ClearState removes the stored state for the given chat.
func (s *RedisStorage) ClearState(ctx context.Context, chatID int64) error {
	key := redisChatStateKey(chatID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to clear chat state", "chat_id", chatID, "error", err)
		return err
	}

	return nil
}

// GetAllStates retrieves every stored chat state by scanning Redis keys.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*UserState, error) {
	var (
		cursor uint64
		result []*UserState
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, chatStateScanPattern, 100).Result()
		if err != nil {
			s.log.Error("failed to scan chat states", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch chat state", "key", key, "error", err)
				return nil, err
			}

			var chatState UserState
			if err := json.Unmarshal([]byte(data), &chatState); err != nil {
				s.log.Error("failed to decode chat state", "key", key, "error", err)
				continue
			}

			copied := chatState
			result = append(result, &copied)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func redisChatStateKey(chatID int64) string {
	return fmt.Sprintf(chatStateKeyPattern, chatID)
}
