package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nevindra/quizgate"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	msgs := []quizgate.ChatMessage{
		quizgate.UserMessage("Q: 동물인가요?"),
		quizgate.AssistantMessage("A: 아니오"),
	}
	if err := store.Append(ctx, "t1", msgs); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, "t1", []quizgate.ChatMessage{quizgate.UserMessage("Q: 사물인가요?")}); err != nil {
		t.Fatal(err)
	}

	got, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("history length = %d, want 3", len(got))
	}
	if got[0].Content != "Q: 동물인가요?" || got[0].Role != "user" {
		t.Errorf("history[0] = %+v", got[0])
	}
	if got[2].Content != "Q: 사물인가요?" {
		t.Errorf("history[2] = %+v", got[2])
	}
}

func TestRedisHistoryEmptyThread(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	got, err := store.History(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("history = %v, want empty", got)
	}
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	if err := store.Append(ctx, "t1", []quizgate.ChatMessage{quizgate.UserMessage("q")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	got, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("history after delete = %v, want empty", got)
	}
}

func TestRedisTTLRefreshOnRead(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)

	if err := store.Append(ctx, "t1", []quizgate.ChatMessage{quizgate.UserMessage("q")}); err != nil {
		t.Fatal(err)
	}

	// Halfway to expiry, a read must push the deadline back out.
	mr.FastForward(30 * time.Minute)
	if _, err := store.History(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(45 * time.Minute)

	got, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Error("key expired despite TTL refresh on read")
	}

	// Without further reads the key lapses.
	mr.FastForward(2 * time.Hour)
	got, err = store.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Error("key survived past its TTL")
	}
}

func TestRedisCorruptEntrySkipped(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	if _, err := mr.Push("quizgate:history:t1", "not json"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, "t1", []quizgate.ChatMessage{quizgate.UserMessage("q")}); err != nil {
		t.Fatal(err)
	}

	got, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "q" {
		t.Errorf("history = %+v, want the one valid message", got)
	}
}
