package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/chat"
)

// Tests below need a live redis; they skip when none is reachable,
// same as the rest of the integration-style coverage.
const testRedisAddr = "localhost:6379"

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func seedSource(n int) *fakeSource {
	src := &fakeSource{}
	// Newest first, the order the repository returns.
	for i := n; i >= 1; i-- {
		src.msgs = append(src.msgs, chat.Message{
			ID:             int64(i),
			ConversationID: 10,
			Content:        fmt.Sprintf("msg %d", i),
		})
	}
	return src
}

// After the key expires, a single Append rebuilds the list with one entry.
// That partial window must not be served as the backlog: Recent has to go
// back to the repository, which still holds the full history.
func TestHistory_PartialListAfterExpiryFallsBack(t *testing.T) {
	client := setupRedis(t)
	conversationID := int64(10)
	k := key(conversationID)
	client.Del(context.Background(), k)
	t.Cleanup(func() { client.Del(context.Background(), k) })

	const limit = 5
	source := seedSource(limit)
	h := NewHistory(zap.NewNop(), client, source, limit)

	// Simulates the expired-key case: the list is reborn with one message.
	h.Append(context.Background(), &chat.Message{ID: 6, ConversationID: conversationID, Content: "msg 6"})

	msgs, err := h.Recent(context.Background(), conversationID, limit)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls, "partial cache window must defer to the repository")
	require.Len(t, msgs, limit)
	require.Equal(t, "msg 1", msgs[0].Content, "oldest first")
	require.Equal(t, "msg 5", msgs[limit-1].Content)
}

// Once warmed with a full window, reads are served from the cache alone.
func TestHistory_FullWindowServedFromCache(t *testing.T) {
	client := setupRedis(t)
	conversationID := int64(10)
	k := key(conversationID)
	client.Del(context.Background(), k)
	t.Cleanup(func() { client.Del(context.Background(), k) })

	const limit = 5
	source := seedSource(limit)
	h := NewHistory(zap.NewNop(), client, source, limit)

	first, err := h.Recent(context.Background(), conversationID, limit)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	second, err := h.Recent(context.Background(), conversationID, limit)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls, "warm cache must not hit the repository again")
	require.Equal(t, first, second)

	ttl, err := client.TTL(context.Background(), k).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0), "warmed key carries an expiry")
}
