package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/services"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, phone, name, passwordHash string, profilePicture *string) (models.User, error) {
	args := m.Called(ctx, phone, name, passwordHash, profilePicture)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	args := m.Called(ctx, phone)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, userID int64, update repositories.ProfileUpdate) (models.User, error) {
	args := m.Called(ctx, userID, update)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SearchByPhone(ctx context.Context, phone string) ([]models.PublicUser, error) {
	args := m.Called(ctx, phone)
	var users []models.PublicUser
	if val := args.Get(0); val != nil {
		users = val.([]models.PublicUser)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SearchByName(ctx context.Context, name string) ([]models.PublicUser, error) {
	args := m.Called(ctx, name)
	var users []models.PublicUser
	if val := args.Get(0); val != nil {
		users = val.([]models.PublicUser)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, userID int64, active bool) error {
	args := m.Called(ctx, userID, active)
	return args.Error(0)
}

func (m *UserRepositoryMock) IsActive(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) MarkPendingDelivered(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error) {
	args := m.Called(ctx, creatorID, chatID, isGroup, title, description, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error) {
	args := m.Called(ctx, chatID)
	var details models.ChatDetails
	if val := args.Get(0); val != nil {
		details = val.(models.ChatDetails)
	}
	return details, args.Error(1)
}

func (m *ChatRepositoryMock) IsMember(ctx context.Context, chatID string, userID int64) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) MemberIDs(ctx context.Context, chatID string) ([]int64, error) {
	args := m.Called(ctx, chatID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) MemberChatIDs(ctx context.Context, userID int64) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) ListUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) UnreadCount(ctx context.Context, chatID string, userID int64) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in repositories.CreateMessageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error) {
	args := m.Called(ctx, chatID, requesterID, limit, beforeSeq)
	var list []models.ChatMessage
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatMessage)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ReceiptsForMessages(ctx context.Context, messageIDs []int64) ([]models.Receipt, error) {
	args := m.Called(ctx, messageIDs)
	var receipts []models.Receipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.Receipt)
	}
	return receipts, args.Error(1)
}

func (m *MessageRepositoryMock) GetMeta(ctx context.Context, messageID int64) (models.MessageMeta, error) {
	args := m.Called(ctx, messageID)
	var meta models.MessageMeta
	if val := args.Get(0); val != nil {
		meta = val.(models.MessageMeta)
	}
	return meta, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, userID int64) (int64, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error) {
	args := m.Called(ctx, chatID, uptoSeq, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteBySender(ctx context.Context, messageID, senderID int64) (int64, error) {
	args := m.Called(ctx, messageID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) EnsureChatForSend(ctx context.Context, chatID string, senderID int64, metadata json.RawMessage) (string, bool, error) {
	args := m.Called(ctx, chatID, senderID, metadata)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, in services.SendMessageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) GetChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error) {
	args := m.Called(ctx, chatID, requesterID, limit, beforeSeq)
	var list []models.ChatMessage
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatMessage)
	}
	return list, args.Error(1)
}

func (m *MessageServiceMock) MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, messageID, userID int64) (int64, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageServiceMock) MarkChatReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error) {
	args := m.Called(ctx, chatID, uptoSeq, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, messageID, requesterID int64) (services.DeleteResult, error) {
	args := m.Called(ctx, messageID, requesterID)
	var res services.DeleteResult
	if val := args.Get(0); val != nil {
		res = val.(services.DeleteResult)
	}
	return res, args.Error(1)
}

func (m *MessageServiceMock) GetMessageMeta(ctx context.Context, messageID int64) (models.MessageMeta, error) {
	args := m.Called(ctx, messageID)
	var meta models.MessageMeta
	if val := args.Get(0); val != nil {
		meta = val.(models.MessageMeta)
	}
	return meta, args.Error(1)
}

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CreateChat(ctx context.Context, creatorID int64, chatID string, isGroup bool, title, description *string, memberIDs []int64) (models.Chat, error) {
	args := m.Called(ctx, creatorID, chatID, isGroup, title, description, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) GetUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) GetChatUnreadCount(ctx context.Context, chatID string, userID int64) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatServiceMock) GetChatDetails(ctx context.Context, chatID string) (models.ChatDetails, error) {
	args := m.Called(ctx, chatID)
	var details models.ChatDetails
	if val := args.Get(0); val != nil {
		details = val.(models.ChatDetails)
	}
	return details, args.Error(1)
}

func (m *ChatServiceMock) IsMember(ctx context.Context, chatID string, userID int64) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

type TrackerMock struct {
	mock.Mock
}

func (m *TrackerMock) SetOnline(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *TrackerMock) SetOffline(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *TrackerMock) IsOnline(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
