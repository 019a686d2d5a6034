package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatExists   = errors.New("chat id already exists")
)

const chatColumns = `id, is_group, title, description, created_by, created_at, properties`

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error)
	IsMember(ctx context.Context, chatID string, userID int64) (bool, error)
	MemberIDs(ctx context.Context, chatID string) ([]int64, error)
	MemberChatIDs(ctx context.Context, userID int64) ([]string, error)
	ListUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	UnreadCount(ctx context.Context, chatID string, userID int64) (int, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat inserts the chat row and its initial membership in one
// transaction: the creator as owner and every other member with the default
// role. Rolls back entirely on any failure.
func (r *ChatRepo) CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, fmt.Errorf("begin create chat: %w", err)
	}
	defer tx.Rollback()

	var chat models.Chat
	err = tx.GetContext(ctx, &chat,
		`INSERT INTO chats (id, is_group, title, description, created_by)
         VALUES ($1, $2, $3, $4, $5) RETURNING `+chatColumns,
		chatID, isGroup, title, description, creatorID)
	if isUniqueViolation(err) {
		return models.Chat{}, ErrChatExists
	}
	if err != nil {
		return models.Chat{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, $3)`,
		chat.ID, creatorID, models.RoleOwner); err != nil {
		return models.Chat{}, err
	}
	for _, memberID := range memberIDs {
		if memberID == creatorID {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, $3)
             ON CONFLICT (chat_id, user_id) DO NOTHING`,
			chat.ID, memberID, models.RoleMember); err != nil {
			return models.Chat{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChatDetails fetches a chat with its member list.
func (r *ChatRepo) GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatDetails{}, err
	}

	var members []models.MemberInfo
	err = r.db.SelectContext(ctx, &members,
		`SELECT u.id, u.name, u.phone_number, u.profile_picture, u.is_active, u.last_seen_at, cm.role
         FROM chat_members cm
         JOIN users u ON u.id = cm.user_id
         WHERE cm.chat_id=$1`, chatID)
	if err != nil {
		return models.ChatDetails{}, err
	}
	return models.ChatDetails{Chat: chat, Members: members}, nil
}

// IsMember checks whether a user belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID string, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// MemberIDs returns the user ids of all chat members.
func (r *ChatRepo) MemberIDs(ctx context.Context, chatID string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_members WHERE chat_id=$1`, chatID)
	return ids, err
}

// MemberChatIDs returns the ids of all chats the user belongs to.
func (r *ChatRepo) MemberChatIDs(ctx context.Context, userID int64) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM chat_members WHERE user_id=$1`, userID)
	return ids, err
}

// ListUserChats returns every chat the user belongs to with the full member
// list and last message, ordered by most recent activity.
func (r *ChatRepo) ListUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT c.id, c.is_group, c.title, c.description, c.created_by, c.created_at, c.properties
         FROM chats c
         JOIN chat_members cm ON cm.chat_id = c.id
         WHERE cm.user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []models.ChatSummary{}, nil
	}

	chatIDs := make([]string, 0, len(chats))
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
	}

	membersByChat, err := r.membersByChat(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	lastByChat, err := r.lastMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{Chat: chat, Members: membersByChat[chat.ID]}
		if last, ok := lastByChat[chat.ID]; ok {
			msg := last
			summary.LastMessage = &msg
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

func lastActivity(summary models.ChatSummary) time.Time {
	if summary.LastMessage != nil && summary.LastMessage.CreatedAt.After(summary.CreatedAt) {
		return summary.LastMessage.CreatedAt
	}
	return summary.CreatedAt
}

type memberRow struct {
	ChatID string `db:"chat_id"`
	models.MemberInfo
}

func (r *ChatRepo) membersByChat(ctx context.Context, chatIDs []string) (map[string][]models.MemberInfo, error) {
	query, args, err := sqlx.In(
		`SELECT cm.chat_id, u.id, u.name, u.phone_number, u.profile_picture, u.is_active, u.last_seen_at, cm.role
         FROM chat_members cm
         JOIN users u ON u.id = cm.user_id
         WHERE cm.chat_id IN (?)`, chatIDs)
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byChat := make(map[string][]models.MemberInfo, len(chatIDs))
	for _, row := range rows {
		byChat[row.ChatID] = append(byChat[row.ChatID], row.MemberInfo)
	}
	return byChat, nil
}

func (r *ChatRepo) lastMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	query, args, err := sqlx.In(
		`SELECT DISTINCT ON (chat_id) `+messageColumns+`
         FROM messages
         WHERE chat_id IN (?)
         ORDER BY chat_id, created_at DESC`, chatIDs)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byChat := make(map[string]models.Message, len(msgs))
	for _, msg := range msgs {
		byChat[msg.ChatID] = msg
	}
	return byChat, nil
}

// UnreadCount counts messages addressed to the user that its receipt row has
// not yet marked read.
func (r *ChatRepo) UnreadCount(ctx context.Context, chatID string, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*)
         FROM messages m
         LEFT JOIN message_receipts r ON m.id = r.message_id AND r.recipient_user_id = $2
         WHERE m.chat_id = $1
           AND r.read_at IS NULL
           AND m.sender_user_id <> $2`, chatID, userID)
	return count, err
}
