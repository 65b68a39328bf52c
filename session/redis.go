package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nevindra/quizgate"
)

const historyKeyPrefix = "quizgate:history:"

// RedisStore persists message logs as Redis lists, one per thread id, with
// a per-thread TTL refreshed on every read and write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the given redis:// URL. A non-positive ttl
// disables key expiry.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(threadID string) string {
	return historyKeyPrefix + threadID
}

func (s *RedisStore) Append(ctx context.Context, threadID string, messages []quizgate.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, b)
	}
	key := s.key(threadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, threadID string) ([]quizgate.ChatMessage, error) {
	key := s.key(threadID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if s.ttl > 0 && len(raw) > 0 {
		s.client.Expire(ctx, key, s.ttl)
	}
	out := make([]quizgate.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg quizgate.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// Skip corrupt entries rather than failing the whole read.
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// Ping verifies connectivity, used by readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
