package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger/internal/models"
	"messenger/internal/observability"
	"messenger/internal/presence"
	"messenger/internal/repositories"
	"messenger/internal/services"
)

// TokenVerifier validates a bearer token and yields the user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Gateway owns the single websocket endpoint. It authenticates the handshake,
// flips presence on first/last connection, joins the member's chat rooms and
// dispatches client frames to the services.
type Gateway struct {
	hub      *Hub
	verifier TokenVerifier
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages services.MessageService
	presence presence.Tracker
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, verifier TokenVerifier, users repositories.UserRepository, chats repositories.ChatRepository, messages services.MessageService, tracker presence.Tracker) *Gateway {
	return &Gateway{hub: hub, verifier: verifier, users: users, chats: chats, messages: messages, presence: tracker}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sendPayload struct {
	ChatID             string          `json:"chatId"`
	MessageType        string          `json:"messageType"`
	Body               *string         `json:"body"`
	MediaID            *string         `json:"mediaId"`
	QuotedMessageID    *int64          `json:"quotedMessageId"`
	EditOf             *int64          `json:"editOf"`
	EphemeralExpiresAt *time.Time      `json:"ephemeralExpiresAt"`
	Metadata           json.RawMessage `json:"metadata"`
}

type receiptPayload struct {
	MessageID int64 `json:"messageId"`
}

type readUpToPayload struct {
	ChatID  string `json:"chatId"`
	UptoSeq int64  `json:"uptoSeq"`
}

type typingPayload struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

type chatRoomPayload struct {
	ChatID string `json:"chatId"`
}

// Handle upgrades the connection and runs the read loop.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn := NewConn(wsConn, info)
	count := g.hub.Register(conn)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishGatewayEvent(ctx, gatewayEvent(info, "ws_connect", 0, ""),
		observability.TraceHeaders(info.RequestID, info.TraceID))

	if count == 1 {
		g.markOnline(ctx, userID)
	}
	g.joinMemberRooms(ctx, conn)

	go g.readPump(conn)
}

func (g *Gateway) validateToken(header string) (int64, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return g.verifier.Verify(parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}

// markOnline flips the user online and flushes receipts that were pending
// while they were away. Each failure is logged and ignored; presence is
// best-effort next to the message path.
func (g *Gateway) markOnline(ctx context.Context, userID int64) {
	if err := g.users.SetPresence(ctx, userID, true); err != nil {
		log.Printf("set presence online for user %d: %v", userID, err)
	}
	if err := g.presence.SetOnline(ctx, userID); err != nil {
		log.Printf("presence cache online for user %d: %v", userID, err)
	}
	if n, err := g.users.MarkPendingDelivered(ctx, userID); err != nil {
		log.Printf("mark pending delivered for user %d: %v", userID, err)
	} else if n > 0 {
		observability.AddReceiptsUpdated("delivered", n)
	}
	g.hub.BroadcastAll(models.Event{Event: models.EventOnline, Data: models.PresenceEvent{UserID: userID}})
}

func (g *Gateway) markOffline(ctx context.Context, userID int64) {
	if err := g.users.SetPresence(ctx, userID, false); err != nil {
		log.Printf("set presence offline for user %d: %v", userID, err)
	}
	if err := g.presence.SetOffline(ctx, userID); err != nil {
		log.Printf("presence cache offline for user %d: %v", userID, err)
	}
	g.hub.BroadcastAll(models.Event{Event: models.EventOffline, Data: models.PresenceEvent{UserID: userID}})
}

func (g *Gateway) joinMemberRooms(ctx context.Context, conn *Conn) {
	chatIDs, err := g.chats.MemberChatIDs(ctx, conn.UserID())
	if err != nil {
		log.Printf("list chat rooms for user %d: %v", conn.UserID(), err)
		return
	}
	for _, chatID := range chatIDs {
		g.hub.JoinChat(chatID, conn)
	}
}

func (g *Gateway) readPump(conn *Conn) {
	info := conn.Info()
	var closeReason string
	defer func() {
		remaining := g.hub.Unregister(conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishGatewayEvent(context.Background(),
			gatewayEvent(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			observability.TraceHeaders(info.RequestID, info.TraceID))
		if remaining == 0 {
			g.markOffline(context.Background(), info.UserID)
		}
		conn.Close()
	}()

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				_ = observability.PublishGatewayEvent(context.Background(),
					gatewayEvent(info, "ws_error", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
					observability.TraceHeaders(info.RequestID, info.TraceID))
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("websocket bad frame from user %d: %v", info.UserID, err)
			continue
		}
		g.dispatch(conn, frame)
	}
}

func (g *Gateway) dispatch(conn *Conn, frame models.ClientFrame) {
	ctx := context.Background()
	observability.IncWSEvent(frame.Event)

	switch frame.Event {
	case "message:send":
		g.handleSend(ctx, conn, frame)
	case "receipt:delivered":
		g.handleReceipt(ctx, conn, frame, "delivered")
	case "receipt:read":
		g.handleReceipt(ctx, conn, frame, "read")
	case "chat:readUpTo":
		g.handleReadUpTo(ctx, conn, frame)
	case "typing":
		g.handleTyping(conn, frame)
	case "chat:join":
		g.handleJoin(ctx, conn, frame)
	case "chat:leave":
		g.handleLeave(conn, frame)
	default:
		g.ackError(conn, frame, fmt.Sprintf("unknown event %q", frame.Event))
	}
}

func (g *Gateway) handleSend(ctx context.Context, conn *Conn, frame models.ClientFrame) {
	var p sendPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		g.ackError(conn, frame, "malformed payload")
		return
	}

	userID := conn.UserID()
	chatID, created, err := g.messages.EnsureChatForSend(ctx, p.ChatID, userID, p.Metadata)
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}

	msg, err := g.messages.SendMessage(ctx, services.SendMessageInput{
		ChatID:             chatID,
		SenderUserID:       userID,
		MessageType:        p.MessageType,
		Body:               p.Body,
		MediaID:            p.MediaID,
		QuotedMessageID:    p.QuotedMessageID,
		EditOf:             p.EditOf,
		EphemeralExpiresAt: p.EphemeralExpiresAt,
		Metadata:           p.Metadata,
	})
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}

	observability.IncMessageSent()
	g.ack(conn, frame, models.Ack{ID: frame.ID, OK: true, Message: &msg})

	g.hub.JoinChat(chatID, conn)
	event := models.Event{Event: models.EventMessageNew, Data: msg}
	if created {
		// Fresh chat: nobody has joined its room yet, so deliver through
		// the members' private rooms instead.
		g.fanOutToMembers(ctx, chatID, event)
		return
	}
	g.hub.BroadcastToChat(chatID, event)
}

func (g *Gateway) fanOutToMembers(ctx context.Context, chatID string, event models.Event) {
	memberIDs, err := g.chats.MemberIDs(ctx, chatID)
	if err != nil {
		log.Printf("fan out to chat %s members: %v", chatID, err)
		return
	}
	for _, memberID := range memberIDs {
		g.hub.SendToUser(memberID, event)
	}
}

func (g *Gateway) handleReceipt(ctx context.Context, conn *Conn, frame models.ClientFrame, kind string) {
	var p receiptPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		g.ackError(conn, frame, "malformed payload")
		return
	}

	meta, err := g.messages.GetMessageMeta(ctx, p.MessageID)
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}

	userID := conn.UserID()
	var updated int64
	if kind == "delivered" {
		updated, err = g.messages.MarkDelivered(ctx, p.MessageID, userID)
	} else {
		updated, err = g.messages.MarkRead(ctx, p.MessageID, userID)
	}
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}

	observability.AddReceiptsUpdated(kind, updated)
	if updated > 0 {
		eventName := models.EventDelivered
		if kind == "read" {
			eventName = models.EventRead
		}
		g.hub.SendToUser(meta.SenderUserID, models.Event{Event: eventName, Data: models.ReceiptEvent{
			MessageID: p.MessageID,
			ByUserID:  userID,
			At:        time.Now().UTC(),
		}})
	}
	g.ack(conn, frame, models.Ack{ID: frame.ID, OK: true, Updated: &updated})
}

func (g *Gateway) handleReadUpTo(ctx context.Context, conn *Conn, frame models.ClientFrame) {
	var p readUpToPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		g.ackError(conn, frame, "malformed payload")
		return
	}

	userID := conn.UserID()
	member, err := g.chats.IsMember(ctx, p.ChatID, userID)
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}
	if !member {
		g.ackError(conn, frame, "not a member of this chat")
		return
	}

	updated, err := g.messages.MarkChatReadUpTo(ctx, p.ChatID, p.UptoSeq, userID)
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}

	observability.AddReceiptsUpdated("read", updated)
	if updated > 0 {
		g.hub.BroadcastToChat(p.ChatID, models.Event{Event: models.EventReadUpTo, Data: models.ReadUpToEvent{
			ChatID:   p.ChatID,
			ByUserID: userID,
			UptoSeq:  p.UptoSeq,
		}})
	}
	g.ack(conn, frame, models.Ack{ID: frame.ID, OK: true, Updated: &updated})
}

func (g *Gateway) handleTyping(conn *Conn, frame models.ClientFrame) {
	var p typingPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	g.hub.BroadcastToChatExcept(p.ChatID, conn, models.Event{Event: models.EventTyping, Data: models.TypingEvent{
		ChatID:   p.ChatID,
		UserID:   conn.UserID(),
		IsTyping: p.IsTyping,
	}})
}

func (g *Gateway) handleJoin(ctx context.Context, conn *Conn, frame models.ClientFrame) {
	var p chatRoomPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		g.ackError(conn, frame, "malformed payload")
		return
	}

	member, err := g.chats.IsMember(ctx, p.ChatID, conn.UserID())
	if err != nil {
		g.ackError(conn, frame, err.Error())
		return
	}
	if !member {
		g.ackError(conn, frame, "not a member of this chat")
		return
	}
	g.hub.JoinChat(p.ChatID, conn)
	g.ack(conn, frame, models.Ack{ID: frame.ID, OK: true})
}

func (g *Gateway) handleLeave(conn *Conn, frame models.ClientFrame) {
	var p chatRoomPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	g.hub.LeaveChat(p.ChatID, conn)
}

// ack replies to a request frame. Frames without an id expect no reply.
func (g *Gateway) ack(conn *Conn, frame models.ClientFrame, ack models.Ack) {
	if frame.ID == "" {
		return
	}
	if err := conn.WriteEvent(models.Event{Event: models.EventAck, Data: ack}); err != nil {
		log.Printf("websocket ack write error: %v", err)
	}
}

func (g *Gateway) ackError(conn *Conn, frame models.ClientFrame, msg string) {
	g.ack(conn, frame, models.Ack{ID: frame.ID, OK: false, Error: msg})
}

func gatewayEvent(info ConnInfo, name string, durationMS int64, reason string) observability.GatewayEvent {
	return observability.GatewayEvent{
		Name:       name,
		ConnID:     info.ConnID,
		UserID:     info.UserID,
		DeviceID:   info.DeviceID,
		IP:         info.IP,
		DurationMS: durationMS,
		Reason:     reason,
		At:         time.Now(),
	}
}
