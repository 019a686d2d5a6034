package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger/internal/mocks"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/services"
)

func newMessageSvc() (*services.MessageSvc, *mocks.ChatRepositoryMock, *mocks.MessageRepositoryMock, *mocks.UserRepositoryMock, *mocks.TrackerMock) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	tracker := new(mocks.TrackerMock)
	svc := services.NewMessageService(chats, messages, users, tracker, 50, 200)
	return svc, chats, messages, users, tracker
}

func TestEnsureChatForSendExistingChat(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	chats.On("GetChat", mock.Anything, "chat-1").Return(models.Chat{ID: "chat-1"}, nil).Once()

	chatID, created, err := svc.EnsureChatForSend(context.Background(), "chat-1", 1, nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "chat-1", chatID)
	chats.AssertExpectations(t)
}

func TestEnsureChatForSendCreatesDirectChat(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	chats.On("GetChat", mock.Anything, "chat-new").Return(nil, repositories.ErrChatNotFound).Once()
	chats.On("CreateChat", mock.Anything, int64(1), "chat-new", false, mock.Anything, (*string)(nil), []int64{1, 2}).
		Return(models.Chat{ID: "chat-new"}, nil).Once()

	chatID, created, err := svc.EnsureChatForSend(context.Background(), "chat-new", 1, []byte(`{"to":2,"name":"bob"}`))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "chat-new", chatID)
	chats.AssertExpectations(t)
}

func TestEnsureChatForSendMissingPeer(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	chats.On("GetChat", mock.Anything, "chat-new").Return(nil, repositories.ErrChatNotFound).Once()

	_, _, err := svc.EnsureChatForSend(context.Background(), "chat-new", 1, []byte(`{}`))
	require.ErrorIs(t, err, services.ErrMissingPeer)
}

func TestEnsureChatForSendGeneratesID(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	var generatedID string
	chats.On("CreateChat", mock.Anything, int64(1), mock.MatchedBy(func(id string) bool {
		generatedID = id
		return id != ""
	}), false, mock.Anything, (*string)(nil), []int64{1, 2}).
		Return(models.Chat{}, nil).Once()

	chatID, created, err := svc.EnsureChatForSend(context.Background(), "", 1, []byte(`{"to":2}`))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, generatedID, chatID)
}

func TestEnsureChatForSendLosesCreateRace(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	chats.On("GetChat", mock.Anything, "chat-r").Return(nil, repositories.ErrChatNotFound).Once()
	chats.On("CreateChat", mock.Anything, int64(1), "chat-r", false, mock.Anything, (*string)(nil), []int64{1, 2}).
		Return(nil, repositories.ErrChatExists).Once()

	chatID, created, err := svc.EnsureChatForSend(context.Background(), "chat-r", 1, []byte(`{"to":2}`))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "chat-r", chatID)
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	svc, chats, _, _, _ := newMessageSvc()

	chats.On("IsMember", mock.Anything, "chat-1", int64(9)).Return(false, nil).Once()

	_, err := svc.SendMessage(context.Background(), services.SendMessageInput{ChatID: "chat-1", SenderUserID: 9})
	require.ErrorIs(t, err, services.ErrNotMember)
}

func TestSendMessageAdvisoryStatus(t *testing.T) {
	body := "hi"
	stored := models.Message{ID: 1, ChatID: "chat-1", SenderUserID: 1, Seq: 1, Body: &body}

	t.Run("peer online via cache", func(t *testing.T) {
		svc, chats, messages, _, tracker := newMessageSvc()
		chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(true, nil)
		messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil)
		tracker.On("IsOnline", mock.Anything, int64(2)).Return(true, nil)

		msg, err := svc.SendMessage(context.Background(), services.SendMessageInput{
			ChatID: "chat-1", SenderUserID: 1, Body: &body, Metadata: []byte(`{"to":2}`),
		})
		require.NoError(t, err)
		require.Equal(t, models.StatusDelivered, msg.Status)
	})

	t.Run("peer offline everywhere", func(t *testing.T) {
		svc, chats, messages, users, tracker := newMessageSvc()
		chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(true, nil)
		messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil)
		tracker.On("IsOnline", mock.Anything, int64(2)).Return(false, nil)
		users.On("IsActive", mock.Anything, int64(2)).Return(false, nil)

		msg, err := svc.SendMessage(context.Background(), services.SendMessageInput{
			ChatID: "chat-1", SenderUserID: 1, Body: &body, Metadata: []byte(`{"to":2}`),
		})
		require.NoError(t, err)
		require.Equal(t, models.StatusSending, msg.Status)
	})

	t.Run("no peer metadata", func(t *testing.T) {
		svc, chats, messages, _, _ := newMessageSvc()
		chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(true, nil)
		messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil)

		msg, err := svc.SendMessage(context.Background(), services.SendMessageInput{
			ChatID: "chat-1", SenderUserID: 1, Body: &body,
		})
		require.NoError(t, err)
		require.Equal(t, models.StatusSending, msg.Status)
	})
}

func TestGetChatMessagesLimitClamping(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		effective int
	}{
		{"zero falls back to default", 0, 50},
		{"negative falls back to default", -3, 50},
		{"oversized is capped", 1000, 200},
		{"in range passes through", 25, 25},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, chats, messages, _, _ := newMessageSvc()
			chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(true, nil)
			messages.On("ListChatMessages", mock.Anything, "chat-1", int64(1), tc.effective, int64(0)).
				Return([]models.ChatMessage{}, nil).Once()

			_, err := svc.GetChatMessages(context.Background(), "chat-1", 1, tc.requested, 0)
			require.NoError(t, err)
			messages.AssertExpectations(t)
		})
	}
}

func TestGetChatMessagesStatusPerspectives(t *testing.T) {
	svc, chats, messages, _, _ := newMessageSvc()

	now := time.Now()
	own := models.ChatMessage{Message: models.Message{ID: 1, ChatID: "chat-1", SenderUserID: 1, Seq: 1}}
	theirsRead := models.ChatMessage{
		Message:       models.Message{ID: 2, ChatID: "chat-1", SenderUserID: 2, Seq: 2},
		MyDeliveredAt: &now,
		MyReadAt:      &now,
	}
	theirsFresh := models.ChatMessage{Message: models.Message{ID: 3, ChatID: "chat-1", SenderUserID: 2, Seq: 3}}

	chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(true, nil)
	messages.On("ListChatMessages", mock.Anything, "chat-1", int64(1), 50, int64(0)).
		Return([]models.ChatMessage{own, theirsRead, theirsFresh}, nil).Once()
	messages.On("ReceiptsForMessages", mock.Anything, []int64{1}).
		Return([]models.Receipt{
			{MessageID: 1, RecipientUserID: 2, DeliveredAt: &now},
			{MessageID: 1, RecipientUserID: 3, DeliveredAt: &now},
		}, nil).Once()

	got, err := svc.GetChatMessages(context.Background(), "chat-1", 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Own message: aggregate across all recipients plus the full map.
	require.Equal(t, models.StatusDelivered, got[0].Status)
	require.Equal(t, map[int64]string{2: models.StatusDelivered, 3: models.StatusDelivered}, got[0].Receipts)

	// Someone else's messages: status from the requester's own receipt row.
	require.Equal(t, models.StatusRead, got[1].Status)
	require.Equal(t, models.StatusSending, got[2].Status)
}

func TestMarkReceiptBySenderIsNoop(t *testing.T) {
	svc, _, messages, _, _ := newMessageSvc()

	messages.On("GetMeta", mock.Anything, int64(10)).
		Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 1}, nil).Twice()

	delivered, err := svc.MarkDelivered(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Zero(t, delivered)

	read, err := svc.MarkRead(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Zero(t, read)

	messages.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
	messages.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReceiptByRecipient(t *testing.T) {
	svc, _, messages, _, _ := newMessageSvc()

	messages.On("GetMeta", mock.Anything, int64(10)).
		Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 1}, nil).Once()
	messages.On("MarkRead", mock.Anything, int64(10), int64(2)).Return(int64(1), nil).Once()

	updated, err := svc.MarkRead(context.Background(), 10, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)
	messages.AssertExpectations(t)
}

func TestDeleteMessageOutcomes(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc, _, messages, _, _ := newMessageSvc()
		messages.On("GetMeta", mock.Anything, int64(404)).Return(nil, repositories.ErrMessageNotFound).Once()

		result, err := svc.DeleteMessage(context.Background(), 404, 1)
		require.NoError(t, err)
		require.Equal(t, services.DeleteNotFound, result.Outcome)
	})

	t.Run("not owner", func(t *testing.T) {
		svc, _, messages, _, _ := newMessageSvc()
		messages.On("GetMeta", mock.Anything, int64(10)).
			Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 2}, nil).Once()

		result, err := svc.DeleteMessage(context.Background(), 10, 1)
		require.NoError(t, err)
		require.Equal(t, services.DeleteNotOwner, result.Outcome)
		messages.AssertNotCalled(t, "DeleteBySender", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("deleted", func(t *testing.T) {
		svc, _, messages, _, _ := newMessageSvc()
		messages.On("GetMeta", mock.Anything, int64(10)).
			Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 1, Seq: 4}, nil).Once()
		messages.On("DeleteBySender", mock.Anything, int64(10), int64(1)).Return(int64(1), nil).Once()

		result, err := svc.DeleteMessage(context.Background(), 10, 1)
		require.NoError(t, err)
		require.Equal(t, services.DeleteDone, result.Outcome)
		require.Equal(t, "chat-1", result.Message.ChatID)
	})
}
