package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger/internal/auth"
	"messenger/internal/mocks"
	"messenger/internal/models"
	"messenger/internal/presence"
	"messenger/internal/services"
)

type gatewayFixture struct {
	users    *mocks.UserRepositoryMock
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageServiceMock
	tokens   *auth.TokenManager
	srv      *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		users:    new(mocks.UserRepositoryMock),
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageServiceMock),
		tokens:   auth.NewTokenManager("test-secret", time.Hour),
	}

	gateway := NewGateway(NewHub(), f.tokens, f.users, f.chats, f.messages, presence.NoopTracker{})

	router := gin.New()
	router.GET("/ws", gateway.Handle)
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, user models.User) *websocket.Conn {
	t.Helper()

	token, err := f.tokens.Issue(user)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func expectConnectCalls(f *gatewayFixture, userID int64, chatIDs []string) {
	f.users.On("SetPresence", mock.Anything, userID, true).Return(nil)
	f.users.On("MarkPendingDelivered", mock.Anything, userID).Return(int64(0), nil)
	f.users.On("SetPresence", mock.Anything, userID, false).Return(nil).Maybe()
	f.chats.On("MemberChatIDs", mock.Anything, userID).Return(chatIDs, nil)
}

func readEventOfType(t *testing.T, client *websocket.Conn, want string) models.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.SetReadDeadline(deadline)
		var event models.Event
		require.NoError(t, client.ReadJSON(&event))
		if event.Event == want {
			return event
		}
	}
	t.Fatalf("did not receive %q event in time", want)
	return models.Event{}
}

func decodeAck(t *testing.T, event models.Event) models.Ack {
	t.Helper()
	raw, err := json.Marshal(event.Data)
	require.NoError(t, err)
	var ack models.Ack
	require.NoError(t, json.Unmarshal(raw, &ack))
	return ack
}

func TestGatewayRejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewaySendMessageAck(t *testing.T) {
	f := newGatewayFixture(t)
	user := models.User{ID: 1, Name: "alice"}
	expectConnectCalls(f, 1, []string{"chat-1"})

	body := "hi"
	sent := models.Message{ID: 10, ChatID: "chat-1", SenderUserID: 1, Seq: 4, Body: &body}
	f.messages.On("EnsureChatForSend", mock.Anything, "chat-1", int64(1), mock.Anything).Return("chat-1", false, nil)
	f.messages.On("SendMessage", mock.Anything, mock.MatchedBy(func(in services.SendMessageInput) bool {
		return in.ChatID == "chat-1" && in.SenderUserID == 1 && in.Body != nil && *in.Body == "hi"
	})).Return(sent, nil)

	client := f.dial(t, user)

	frame := models.ClientFrame{ID: "req-1", Event: "message:send"}
	frame.Data, _ = json.Marshal(sendPayload{ChatID: "chat-1", MessageType: "text", Body: &body})
	require.NoError(t, client.WriteJSON(frame))

	ack := decodeAck(t, readEventOfType(t, client, models.EventAck))
	require.Equal(t, "req-1", ack.ID)
	require.True(t, ack.OK)
	require.NotNil(t, ack.Message)
	require.Equal(t, int64(4), ack.Message.Seq)

	// The sender sits in the chat room, so the broadcast echoes back too.
	event := readEventOfType(t, client, models.EventMessageNew)
	raw, _ := json.Marshal(event.Data)
	var got models.Message
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, int64(10), got.ID)
}

func TestGatewaySendMessageNotMember(t *testing.T) {
	f := newGatewayFixture(t)
	user := models.User{ID: 2, Name: "bob"}
	expectConnectCalls(f, 2, nil)

	f.messages.On("EnsureChatForSend", mock.Anything, "chat-9", int64(2), mock.Anything).Return("chat-9", false, nil)
	f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(nil, services.ErrNotMember)

	client := f.dial(t, user)

	frame := models.ClientFrame{ID: "req-2", Event: "message:send"}
	frame.Data, _ = json.Marshal(sendPayload{ChatID: "chat-9"})
	require.NoError(t, client.WriteJSON(frame))

	ack := decodeAck(t, readEventOfType(t, client, models.EventAck))
	require.Equal(t, "req-2", ack.ID)
	require.False(t, ack.OK)
	require.Contains(t, ack.Error, "not a member")
}

func TestGatewayReadReceiptNotifiesSender(t *testing.T) {
	f := newGatewayFixture(t)
	expectConnectCalls(f, 1, nil)
	expectConnectCalls(f, 2, nil)

	f.messages.On("GetMessageMeta", mock.Anything, int64(10)).Return(models.MessageMeta{ID: 10, ChatID: "chat-1", SenderUserID: 1, Seq: 4}, nil)
	f.messages.On("MarkRead", mock.Anything, int64(10), int64(2)).Return(int64(1), nil)

	sender := f.dial(t, models.User{ID: 1, Name: "alice"})
	reader := f.dial(t, models.User{ID: 2, Name: "bob"})

	frame := models.ClientFrame{ID: "req-3", Event: "receipt:read"}
	frame.Data, _ = json.Marshal(receiptPayload{MessageID: 10})
	require.NoError(t, reader.WriteJSON(frame))

	ack := decodeAck(t, readEventOfType(t, reader, models.EventAck))
	require.True(t, ack.OK)
	require.NotNil(t, ack.Updated)
	require.Equal(t, int64(1), *ack.Updated)

	// The receipt lands in the sender's private room only.
	event := readEventOfType(t, sender, models.EventRead)
	raw, _ := json.Marshal(event.Data)
	var got models.ReceiptEvent
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, int64(10), got.MessageID)
	require.Equal(t, int64(2), got.ByUserID)
}

func TestGatewayJoinDeniedForNonMember(t *testing.T) {
	f := newGatewayFixture(t)
	expectConnectCalls(f, 5, nil)
	f.chats.On("IsMember", mock.Anything, "chat-secret", int64(5)).Return(false, nil)

	client := f.dial(t, models.User{ID: 5, Name: "mallory"})

	frame := models.ClientFrame{ID: "req-4", Event: "chat:join"}
	frame.Data, _ = json.Marshal(chatRoomPayload{ChatID: "chat-secret"})
	require.NoError(t, client.WriteJSON(frame))

	ack := decodeAck(t, readEventOfType(t, client, models.EventAck))
	require.False(t, ack.OK)
	require.Contains(t, ack.Error, "not a member")
}

func TestGatewayPresenceBroadcast(t *testing.T) {
	f := newGatewayFixture(t)
	expectConnectCalls(f, 1, nil)
	expectConnectCalls(f, 2, nil)

	watcher := f.dial(t, models.User{ID: 1, Name: "alice"})
	_ = f.dial(t, models.User{ID: 2, Name: "bob"})

	// The watcher sees its own online event first; wait for the second user's.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no presence event for user 2")
		event := readEventOfType(t, watcher, models.EventOnline)
		raw, _ := json.Marshal(event.Data)
		var got models.PresenceEvent
		require.NoError(t, json.Unmarshal(raw, &got))
		if got.UserID == 2 {
			return
		}
	}
}
