package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_user_id, message_type, body, media_id, quoted_message_id, edit_of, ephemeral_expires_at, seq, metadata, created_at, server_received_at`

// CreateMessageInput carries the fields of a new message. Seq is not part of
// the input: it is allocated inside the transaction.
type CreateMessageInput struct {
	ChatID             string
	SenderUserID       int64
	MessageType        string
	Body               *string
	MediaID            *string
	QuotedMessageID    *int64
	EditOf             *int64
	EphemeralExpiresAt *time.Time
	Metadata           json.RawMessage
}

// MessageRepository abstracts message and receipt persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in CreateMessageInput) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error)
	ReceiptsForMessages(ctx context.Context, messageIDs []int64) ([]models.Receipt, error)
	GetMeta(ctx context.Context, messageID int64) (models.MessageMeta, error)
	MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error)
	MarkRead(ctx context.Context, messageID, userID int64) (int64, error)
	MarkReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error)
	DeleteBySender(ctx context.Context, messageID, senderID int64) (int64, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and its receipt rows in one transaction.
// The chat row is locked first so that reading MAX(seq) and inserting the
// next value is atomic with respect to concurrent senders: per chat, seq is
// a contiguous sequence starting at 1 with no gaps or duplicates.
func (r *MessageRepo) CreateMessage(ctx context.Context, in CreateMessageInput) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin send message: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.GetContext(ctx, &lockedID, `SELECT id FROM chats WHERE id=$1 FOR UPDATE`, in.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	var nextSeq int64
	if err := tx.GetContext(ctx, &nextSeq,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE chat_id=$1`, in.ChatID); err != nil {
		return models.Message{}, err
	}

	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	var msg models.Message
	err = tx.GetContext(ctx, &msg,
		`INSERT INTO messages
            (chat_id, sender_user_id, message_type, body, media_id, quoted_message_id, edit_of, ephemeral_expires_at, seq, metadata)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
         RETURNING `+messageColumns,
		in.ChatID, in.SenderUserID, in.MessageType, in.Body, in.MediaID,
		in.QuotedMessageID, in.EditOf, in.EphemeralExpiresAt, nextSeq, metadata)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, recipient_user_id)
         SELECT $1, cm.user_id
         FROM chat_members cm
         WHERE cm.chat_id = $2 AND cm.user_id <> $3
         ON CONFLICT (message_id, recipient_user_id) DO NOTHING`,
		msg.ID, in.ChatID, in.SenderUserID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListChatMessages returns up to limit messages in ascending seq order,
// optionally only those below beforeSeq (0 disables the cursor). The receipt
// join is scoped to the requester so my_delivered_at/my_read_at reflect the
// requester's own receipt row.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error) {
	args := []any{chatID, requesterID}
	where := `m.chat_id = $1`
	if beforeSeq > 0 {
		args = append(args, beforeSeq)
		where += fmt.Sprintf(` AND m.seq < $%d`, len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
        SELECT * FROM (
            SELECT
                m.id, m.chat_id, m.sender_user_id, m.message_type, m.body, m.media_id,
                m.quoted_message_id, m.edit_of, m.ephemeral_expires_at, m.seq, m.metadata,
                m.created_at, m.server_received_at,
                u.name AS sender_name,
                u.profile_picture AS sender_avatar,
                r.delivered_at AS my_delivered_at,
                r.read_at AS my_read_at
            FROM messages m
            JOIN users u ON u.id = m.sender_user_id
            LEFT JOIN message_receipts r
              ON r.message_id = m.id AND r.recipient_user_id = $2
            WHERE %s
            ORDER BY m.seq DESC
            LIMIT $%d
        ) sub ORDER BY seq ASC`, where, len(args))

	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// ReceiptsForMessages returns every receipt row for the given messages.
func (r *MessageRepo) ReceiptsForMessages(ctx context.Context, messageIDs []int64) ([]models.Receipt, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT message_id, recipient_user_id, delivered_at, read_at
         FROM message_receipts WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return nil, err
	}
	var receipts []models.Receipt
	err = r.db.SelectContext(ctx, &receipts, r.db.Rebind(query), args...)
	return receipts, err
}

// GetMeta retrieves the identity of a message.
func (r *MessageRepo) GetMeta(ctx context.Context, messageID int64) (models.MessageMeta, error) {
	var meta models.MessageMeta
	err := r.db.GetContext(ctx, &meta,
		`SELECT id, chat_id, sender_user_id, seq FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageMeta{}, ErrMessageNotFound
	}
	return meta, err
}

// MarkDelivered upserts the recipient's receipt with delivered_at = now.
// COALESCE keeps an already-set timestamp: the merge is monotonic and a late
// delivered event can never erase an earlier state.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, recipient_user_id, delivered_at)
         VALUES ($1, $2, NOW())
         ON CONFLICT (message_id, recipient_user_id)
         DO UPDATE SET delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)`,
		messageID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkRead upserts the recipient's receipt with both timestamps: read implies
// delivered. Same monotonic merge as MarkDelivered.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, recipient_user_id, delivered_at, read_at)
         VALUES ($1, $2, NOW(), NOW())
         ON CONFLICT (message_id, recipient_user_id)
         DO UPDATE SET
            delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at),
            read_at      = COALESCE(message_receipts.read_at, EXCLUDED.read_at)`,
		messageID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkReadUpTo upserts a read receipt for every message in the chat with
// seq <= uptoSeq not sent by the user. Returns the number of affected rows.
func (r *MessageRepo) MarkReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, recipient_user_id, delivered_at, read_at)
         SELECT m.id, $2, NOW(), NOW()
         FROM messages m
         WHERE m.chat_id = $1 AND m.seq <= $3 AND m.sender_user_id <> $2
         ON CONFLICT (message_id, recipient_user_id)
         DO UPDATE SET
            delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at),
            read_at      = COALESCE(message_receipts.read_at, EXCLUDED.read_at)`,
		chatID, userID, uptoSeq)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteBySender hard-deletes a message if the requester is its sender.
// Receipts go with it via the FK cascade.
func (r *MessageRepo) DeleteBySender(ctx context.Context, messageID, senderID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id=$1 AND sender_user_id=$2`, messageID, senderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
