package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
	"dm-service/internal/pagination"
)

const summaryColumns = `conversation_id, owner_id, peer_id, last_content, last_sender_id, last_sent_at, created_at, updated_at`

// ConversationRepository defines interactions for conversation summaries.
type ConversationRepository interface {
	UpsertPair(ctx context.Context, senderID, receiverID string, last models.LastMessage) error
	ListForParticipant(ctx context.Context, ownerID string, cursor pagination.Cursor, limit int) ([]models.ConversationSummary, string, error)
}

// ConversationRepo is a sqlx-backed repository. The pair write is sequential
// and non-transactional by default; atomic mode wraps both rows in one
// transaction for stores that support it.
type ConversationRepo struct {
	db     *sqlx.DB
	atomic bool
}

// NewConversationRepo constructs ConversationRepo.
func NewConversationRepo(db *sqlx.DB, atomicPairWrite bool) *ConversationRepo {
	return &ConversationRepo{db: db, atomic: atomicPairWrite}
}

const upsertSummaryQuery = `INSERT INTO conversations (conversation_id, owner_id, peer_id, last_content, last_sender_id, last_sent_at, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
    ON CONFLICT (conversation_id, owner_id) DO UPDATE SET
        last_content = EXCLUDED.last_content,
        last_sender_id = EXCLUDED.last_sender_id,
        last_sent_at = EXCLUDED.last_sent_at,
        updated_at = NOW()`

// UpsertPair writes the two owner rows of a conversation, preserving each
// row's created_at (first write wins). In the default sequential mode the
// rows may be left divergent when the second write fails; the next message
// in either direction repairs them.
func (r *ConversationRepo) UpsertPair(ctx context.Context, senderID, receiverID string, last models.LastMessage) error {
	conversationID := models.ConversationID(senderID, receiverID)

	if r.atomic {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return storageErr("begin pair write", err)
		}
		if err := upsertSummary(ctx, tx, conversationID, senderID, receiverID, last); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := upsertSummary(ctx, tx, conversationID, receiverID, senderID, last); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return storageErr("commit pair write", err)
		}
		return nil
	}

	if err := upsertSummary(ctx, r.db, conversationID, senderID, receiverID, last); err != nil {
		return err
	}
	return upsertSummary(ctx, r.db, conversationID, receiverID, senderID, last)
}

func upsertSummary(ctx context.Context, ext sqlx.ExtContext, conversationID, ownerID, peerID string, last models.LastMessage) error {
	_, err := ext.ExecContext(ctx, upsertSummaryQuery,
		conversationID, ownerID, peerID, last.Content, last.SenderID, last.Timestamp)
	if err != nil {
		return storageErr("upsert conversation summary", err)
	}
	return nil
}

// ListForParticipant returns the participant's conversation summaries,
// newest activity first, plus a continuation token.
func (r *ConversationRepo) ListForParticipant(ctx context.Context, ownerID string, cursor pagination.Cursor, limit int) ([]models.ConversationSummary, string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + summaryColumns + ` FROM conversations WHERE owner_id=$1`
	args := []interface{}{ownerID}
	if !cursor.Zero() {
		query += ` AND (updated_at, conversation_id) < ($2, $3)`
		args = append(args, cursor.At, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC, conversation_id DESC LIMIT %d`, limit+1)

	var summaries []models.ConversationSummary
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, "", storageErr("list conversations", err)
	}

	next := ""
	if len(summaries) > limit {
		summaries = summaries[:limit]
		last := summaries[len(summaries)-1]
		next = pagination.Encode(pagination.Cursor{At: last.UpdatedAt, ID: last.ConversationID})
	}
	return summaries, next, nil
}
