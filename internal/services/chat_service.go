package services

import (
	"context"

	"github.com/google/uuid"

	"messenger/internal/models"
	"messenger/internal/repositories"
)

// ChatService owns chat lifecycle and membership queries.
type ChatService interface {
	CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error)
	GetUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	GetChatUnreadCount(ctx context.Context, chatID string, userID int64) (int, error)
	GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error)
	IsMember(ctx context.Context, chatID string, userID int64) (bool, error)
}

// ChatSvc implements ChatService over the chat repository.
type ChatSvc struct {
	chats repositories.ChatRepository
}

// NewChatService constructs a ChatSvc.
func NewChatService(chats repositories.ChatRepository) *ChatSvc {
	return &ChatSvc{chats: chats}
}

// CreateChat creates the chat with its initial membership. An empty chat id
// gets a generated UUID; a supplied one lets clients name the chat before the
// first message.
func (s *ChatSvc) CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error) {
	if chatID == "" {
		chatID = uuid.NewString()
	}
	return s.chats.CreateChat(ctx, creatorID, chatID, isGroup, title, description, memberIDs)
}

// GetUserChats lists the user's chats ordered by last activity.
func (s *ChatSvc) GetUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	return s.chats.ListUserChats(ctx, userID)
}

// GetChatUnreadCount counts messages the user has not read in the chat.
func (s *ChatSvc) GetChatUnreadCount(ctx context.Context, chatID string, userID int64) (int, error) {
	return s.chats.UnreadCount(ctx, chatID, userID)
}

// GetChatDetails fetches a chat with its member list.
func (s *ChatSvc) GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error) {
	return s.chats.GetChatDetails(ctx, chatID)
}

// IsMember reports chat membership.
func (s *ChatSvc) IsMember(ctx context.Context, chatID string, userID int64) (bool, error) {
	return s.chats.IsMember(ctx, chatID, userID)
}
