package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
	"dm-service/internal/pagination"
)

const messageColumns = `message_id, conversation_id, sender_id, receiver_id, content, kind, original_message_id, delivery_state, created_at`

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	PutMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	GetMessagesByConversation(ctx context.Context, conversationID, viewerID string, cursor pagination.Cursor, limit int) ([]models.Message, string, error)
	UpdateMessageState(ctx context.Context, messageID, expectedSenderID, newState string) (models.Message, bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// PutMessage stores a message unconditionally.
func (r *MessageRepo) PutMessage(ctx context.Context, msg models.Message) error {
	if msg.MessageID == "" || msg.ConversationID == "" || msg.SenderID == "" || msg.ReceiverID == "" || msg.Kind == "" {
		return fmt.Errorf("%w: message is missing required fields", ErrValidation)
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (message_id, conversation_id, sender_id, receiver_id, content, kind, original_message_id, delivery_state, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.MessageID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind, msg.OriginalMessageID, msg.DeliveryState, msg.CreatedAt)
	if err != nil {
		return storageErr("put message", err)
	}
	return nil
}

// GetMessage retrieves a single message by its primary key.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, storageErr("get message", err)
	}
	return msg, nil
}

// GetMessagesByConversation returns a page of messages in ascending send
// order plus a continuation token. Messages the viewer deleted are hidden
// from the viewer but stay visible to the peer. An empty conversation yields
// an empty page, never an error.
func (r *MessageRepo) GetMessagesByConversation(ctx context.Context, conversationID, viewerID string, cursor pagination.Cursor, limit int) ([]models.Message, string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1
        AND NOT (delivery_state='deleted' AND sender_id=$2)`
	args := []interface{}{conversationID, viewerID}
	if !cursor.Zero() {
		query += ` AND (created_at, message_id) > ($3, $4)`
		args = append(args, cursor.At, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC, message_id ASC LIMIT %d`, limit+1)

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, "", storageErr("list messages", err)
	}

	next := ""
	if len(msgs) > limit {
		msgs = msgs[:limit]
		last := msgs[len(msgs)-1]
		next = pagination.Encode(pagination.Cursor{At: last.CreatedAt, ID: last.MessageID})
	}
	return msgs, next, nil
}

// UpdateMessageState transitions a message's delivery state. Only the
// original sender may transition; re-applying a terminal state is a no-op
// success. The returned bool reports whether a transition actually happened,
// so callers can skip duplicate fan-out.
func (r *MessageRepo) UpdateMessageState(ctx context.Context, messageID, expectedSenderID, newState string) (models.Message, bool, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, false, err
	}
	if msg.SenderID != expectedSenderID {
		return models.Message{}, false, ErrForbidden
	}
	if msg.Terminal() {
		return msg, false, nil
	}

	query := `UPDATE messages SET delivery_state=$2 WHERE message_id=$1 AND delivery_state='sent' RETURNING ` + messageColumns
	if newState == models.StateRecalled {
		// Recall is global erasure: the stored content is replaced too.
		query = `UPDATE messages SET delivery_state=$2, content=$3 WHERE message_id=$1 AND delivery_state='sent' RETURNING ` + messageColumns
	}

	var updated models.Message
	if newState == models.StateRecalled {
		err = r.db.GetContext(ctx, &updated, query, messageID, newState, models.RecalledPlaceholder)
	} else {
		err = r.db.GetContext(ctx, &updated, query, messageID, newState)
	}
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race against another transition; the terminal state sticks.
		current, getErr := r.GetMessage(ctx, messageID)
		if getErr != nil {
			return models.Message{}, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return models.Message{}, false, storageErr("update message state", err)
	}
	return updated, true, nil
}
