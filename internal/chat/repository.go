package chat

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pkondratev/chatwave/internal/db"
	"github.com/pkondratev/chatwave/internal/errs"
)

// Repository is the durable chat store: conversations, membership, messages
// and the presence mirror. It is the persistence gateway the realtime hub
// consumes.
type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

// FindOrCreatePrivateConversation returns the private conversation between
// the two users, creating it (with both memberships) if none exists.
func (r *Repository) FindOrCreatePrivateConversation(ctx context.Context, userID, targetID int64) (int64, error) {
	const find = `
SELECT p1.conversation_id
FROM participants p1
JOIN participants p2 ON p1.conversation_id = p2.conversation_id
JOIN conversations c ON c.id = p1.conversation_id
WHERE p1.user_id = $1 AND p2.user_id = $2 AND c.type = 'private'
LIMIT 1`
	var id int64
	err := r.db.Pool.QueryRow(ctx, find, userID, targetID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO conversations (type) VALUES ('private') RETURNING id`,
	).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`,
		id, userID, targetID,
	); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// IsMember reports whether the user belongs to the conversation.
func (r *Repository) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`
	var member bool
	if err := r.db.Pool.QueryRow(ctx, q, conversationID, userID).Scan(&member); err != nil {
		return false, err
	}
	return member, nil
}

// ListConversationsFor returns the ids of every conversation the user is in.
func (r *Repository) ListConversationsFor(ctx context.Context, userID int64) ([]int64, error) {
	const q = `SELECT conversation_id FROM participants WHERE user_id = $1`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage inserts a message and returns the stored record. Sender name
// is filled in by the caller, which already knows it.
func (r *Repository) CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error) {
	const q = `
INSERT INTO messages (conversation_id, sender_id, content)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	msg := &Message{ConversationID: conversationID, SenderID: senderID, Content: content}
	if err := r.db.Pool.QueryRow(ctx, q, conversationID, senderID, content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns the newest messages of a conversation, newest first.
func (r *Repository) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	const q = `
SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content,
       COALESCE(m.attachment_ref, ''), m.created_at, m.is_read
FROM messages m
JOIN users u ON u.id = m.sender_id
WHERE m.conversation_id = $1
ORDER BY m.created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Sender,
			&m.Content, &m.AttachmentRef, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageRead flips the read flag if the user is a member of the
// message's conversation and returns that conversation id.
func (r *Repository) MarkMessageRead(ctx context.Context, messageID, userID int64) (int64, error) {
	const q = `
UPDATE messages m SET is_read = TRUE
FROM participants p
WHERE m.id = $1 AND p.conversation_id = m.conversation_id AND p.user_id = $2
RETURNING m.conversation_id`
	var conversationID int64
	if err := r.db.Pool.QueryRow(ctx, q, messageID, userID).Scan(&conversationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return conversationID, nil
}

// SetUserOnlineStatus writes the durable presence mirror.
func (r *Repository) SetUserOnlineStatus(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	const q = `UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, userID, online, lastSeen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
