// Package cache keeps the most recent messages of each conversation in
// redis so the history backlog sent on (re)connect skips Postgres on the
// hot path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/chat"
)

const keyTTL = 24 * time.Hour

// RecentSource is the fallback store; *chat.Repository implements it.
type RecentSource interface {
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]chat.Message, error)
}

// History is a cache-aside wrapper: reads try redis first, writes go through
// on message create. Cache failures degrade to the fallback, never to an
// error for the caller.
type History struct {
	log      *zap.Logger
	rdb      *redis.Client
	fallback RecentSource
	limit    int
}

func NewHistory(log *zap.Logger, rdb *redis.Client, fallback RecentSource, limit int) *History {
	return &History{log: log, rdb: rdb, fallback: fallback, limit: limit}
}

func key(conversationID int64) string {
	return fmt.Sprintf("chat:recent:%d", conversationID)
}

// Append pushes a freshly persisted message onto the conversation's list and
// trims it to the configured bound. Best effort.
func (h *History) Append(ctx context.Context, msg *chat.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	k := key(msg.ConversationID)
	pipe := h.rdb.Pipeline()
	pipe.LPush(ctx, k, payload)
	pipe.LTrim(ctx, k, 0, int64(h.limit-1))
	pipe.Expire(ctx, k, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn("history cache append failed", zap.Int64("conversation", msg.ConversationID), zap.Error(err))
	}
}

// Recent returns up to limit messages, oldest first, ready to ship as a
// history backlog. Falls back to the repository on a cold or broken cache
// and warms the key from the result.
func (h *History) Recent(ctx context.Context, conversationID int64, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}
	k := key(conversationID)

	raw, err := h.rdb.LRange(ctx, k, 0, int64(limit-1)).Result()
	if err != nil {
		h.log.Warn("history cache read failed", zap.Int64("conversation", conversationID), zap.Error(err))
	}
	// Only a full window is authoritative. A shorter list may be the remnant
	// of an expired key rebuilt by a single Append, while Postgres still
	// holds older messages; serving it would truncate the backlog.
	if len(raw) >= limit {
		msgs := make([]chat.Message, 0, len(raw))
		for _, item := range raw {
			var m chat.Message
			if err := json.Unmarshal([]byte(item), &m); err != nil {
				// Corrupt entry, drop the key and fall through to the store.
				h.rdb.Del(ctx, k)
				msgs = nil
				break
			}
			msgs = append(msgs, m)
		}
		if msgs != nil {
			reverse(msgs) // redis holds newest first
			return msgs, nil
		}
	}

	msgs, err := h.fallback.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	h.warm(ctx, k, msgs)
	reverse(msgs)
	return msgs, nil
}

// warm backfills the key with newest-first entries.
func (h *History) warm(ctx context.Context, k string, newestFirst []chat.Message) {
	if len(newestFirst) == 0 {
		return
	}
	pipe := h.rdb.Pipeline()
	pipe.Del(ctx, k)
	for _, m := range newestFirst {
		payload, err := json.Marshal(m)
		if err != nil {
			return
		}
		pipe.RPush(ctx, k, payload)
	}
	pipe.Expire(ctx, k, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn("history cache warm failed", zap.String("key", k), zap.Error(err))
	}
}

func reverse(msgs []chat.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
