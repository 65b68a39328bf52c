// Package session manages conversation metadata and message history on a
// pluggable checkpoint store with TTL eviction.
package session

import (
	"context"
	"sync"

	"github.com/nevindra/quizgate"
)

// Store is the checkpoint backend: an ordered message log per thread id.
// Appends are durable at-least-once; History returns messages in append
// order.
type Store interface {
	Append(ctx context.Context, threadID string, messages []quizgate.ChatMessage) error
	History(ctx context.Context, threadID string) ([]quizgate.ChatMessage, error)
	Delete(ctx context.Context, threadID string) error
}

// MemoryStore is the in-process backend used for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	threads map[string][]quizgate.ChatMessage
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]quizgate.ChatMessage)}
}

func (s *MemoryStore) Append(_ context.Context, threadID string, messages []quizgate.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], messages...)
	return nil
}

func (s *MemoryStore) History(_ context.Context, threadID string) ([]quizgate.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.threads[threadID]
	out := make([]quizgate.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}
