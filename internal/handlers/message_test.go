package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger/internal/mocks"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/services"
	"messenger/internal/ws"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.POST("/messages", handler.SendMessage)
	r.GET("/messages/:chatId", handler.GetChatMessages)
	r.POST("/messages/:messageId/delivered", handler.MarkDelivered)
	r.POST("/messages/:messageId/read", handler.MarkRead)
	r.POST("/messages/read-up-to/:chatId", handler.MarkReadUpTo)
	r.DELETE("/messages/:messageId", handler.DeleteMessage)
	return r
}

func TestSendMessageSuccess(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	chats := new(mocks.ChatRepositoryMock)
	handler := NewMessageHandler(messages, chats, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	body := "hi"
	messages.On("EnsureChatForSend", mock.Anything, "chat-1", int64(1), mock.Anything).
		Return("chat-1", false, nil).Once()
	messages.On("SendMessage", mock.Anything, mock.MatchedBy(func(in services.SendMessageInput) bool {
		return in.ChatID == "chat-1" && in.SenderUserID == 1 && in.Body != nil && *in.Body == "hi"
	})).Return(models.Message{ID: 10, ChatID: "chat-1", SenderUserID: 1, Seq: 3, Body: &body}, nil).Once()

	payload := bytes.NewBufferString(`{"chat_id":"chat-1","message_type":"text","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"seq":3`)
	messages.AssertExpectations(t)
}

func TestSendMessageMissingPeer(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	messages.On("EnsureChatForSend", mock.Anything, "", int64(1), mock.Anything).
		Return("", false, services.ErrMissingPeer).Once()

	payload := bytes.NewBufferString(`{"body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no peer")
}

func TestSendMessageNotMember(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	messages.On("EnsureChatForSend", mock.Anything, "chat-9", int64(1), mock.Anything).
		Return("chat-9", false, nil).Once()
	messages.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, services.ErrNotMember).Once()

	payload := bytes.NewBufferString(`{"chat_id":"chat-9","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetChatMessagesPassesPaging(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	messages.On("GetChatMessages", mock.Anything, "chat-1", int64(1), 25, int64(90)).
		Return([]models.ChatMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/chat-1?limit=25&beforeSeq=90", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messages.AssertExpectations(t)
}

func TestMarkReadUnknownMessage(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	messages.On("GetMessageMeta", mock.Anything, int64(404)).
		Return(nil, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/404/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkReadUpdates(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	messages.On("GetMessageMeta", mock.Anything, int64(10)).
		Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 2, Seq: 4}, nil).Once()
	messages.On("MarkRead", mock.Anything, int64(10), int64(1)).Return(int64(1), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/10/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"updated":1`)
}

func TestMarkReadUpToRequiresMembership(t *testing.T) {
	messages := new(mocks.MessageServiceMock)
	chats := new(mocks.ChatRepositoryMock)
	handler := NewMessageHandler(messages, chats, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	chats.On("IsMember", mock.Anything, "chat-1", int64(1)).Return(false, nil).Once()

	payload := bytes.NewBufferString(`{"uptoSeq":7}`)
	req := httptest.NewRequest(http.MethodPost, "/messages/read-up-to/chat-1", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteMessageOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.DeleteOutcome
		status  int
	}{
		{"deleted", services.DeleteDone, http.StatusOK},
		{"not found", services.DeleteNotFound, http.StatusNotFound},
		{"not owner", services.DeleteNotOwner, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messages := new(mocks.MessageServiceMock)
			handler := NewMessageHandler(messages, new(mocks.ChatRepositoryMock), ws.NewHub(), nil)
			router := setupMessageRouter(handler)

			messages.On("DeleteMessage", mock.Anything, int64(10), int64(1)).
				Return(services.DeleteResult{Outcome: tc.outcome, Message: models.MessageMeta{ID: 10, ChatID: "chat-1"}}, nil).Once()

			req := httptest.NewRequest(http.MethodDelete, "/messages/10", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
		})
	}
}
