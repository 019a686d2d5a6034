package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messenger/internal/middleware"
	"messenger/internal/models"
	"messenger/internal/observability"
	"messenger/internal/repositories"
	"messenger/internal/services"
	"messenger/internal/telemetry"
	"messenger/internal/ws"
)

// MessageHandler serves the HTTP message endpoints. Mutations mirror the
// websocket frames so offline-first clients can fall back to plain requests.
type MessageHandler struct {
	messages services.MessageService
	chats    repositories.ChatRepository
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages services.MessageService, chats repositories.ChatRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, chats: chats, hub: hub, audit: audit}
}

// SendMessage stores a message, creating the direct chat first when needed,
// and broadcasts it to the chat room.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ChatID             string          `json:"chat_id"`
		MessageType        string          `json:"message_type"`
		Body               *string         `json:"body"`
		MediaID            *string         `json:"media_id"`
		QuotedMessageID    *int64          `json:"quoted_message_id"`
		EditOf             *int64          `json:"edit_of"`
		EphemeralExpiresAt *time.Time      `json:"ephemeral_expires_at"`
		Metadata           json.RawMessage `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	chatID, created, err := h.messages.EnsureChatForSend(c.Request.Context(), req.ChatID, userID, req.Metadata)
	if err != nil {
		if errors.Is(err, services.ErrMissingPeer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat does not exist and no peer was given"})
			return
		}
		h.emitAudit(c, "ERROR", "chat resolution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve chat"})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), services.SendMessageInput{
		ChatID:             chatID,
		SenderUserID:       userID,
		MessageType:        req.MessageType,
		Body:               req.Body,
		MediaID:            req.MediaID,
		QuotedMessageID:    req.QuotedMessageID,
		EditOf:             req.EditOf,
		EphemeralExpiresAt: req.EphemeralExpiresAt,
		Metadata:           req.Metadata,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
			return
		}
		h.emitAudit(c, "ERROR", "message store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageSent()
	event := models.Event{Event: models.EventMessageNew, Data: msg}
	if created {
		h.fanOutToMembers(c, chatID, event)
	} else {
		h.hub.BroadcastToChat(chatID, event)
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) fanOutToMembers(c *gin.Context, chatID string, event models.Event) {
	memberIDs, err := h.chats.MemberIDs(c.Request.Context(), chatID)
	if err != nil {
		log.Printf("fan out to chat %s members: %v", chatID, err)
		return
	}
	for _, memberID := range memberIDs {
		h.hub.SendToUser(memberID, event)
	}
}

// GetChatMessages returns a page of chat history from the caller's perspective.
func (h *MessageHandler) GetChatMessages(c *gin.Context) {
	chatID := c.Param("chatId")
	userID := middleware.UserID(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	beforeSeq, _ := strconv.ParseInt(c.DefaultQuery("beforeSeq", "0"), 10, 64)

	msgs, err := h.messages.GetChatMessages(c.Request.Context(), chatID, userID, limit, beforeSeq)
	if err != nil {
		if errors.Is(err, services.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkDelivered records a delivery receipt and notifies the sender.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	h.markReceipt(c, "delivered")
}

// MarkRead records a read receipt and notifies the sender.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.markReceipt(c, "read")
}

func (h *MessageHandler) markReceipt(c *gin.Context, kind string) {
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	meta, err := h.messages.GetMessageMeta(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	userID := middleware.UserID(c)
	var updated int64
	if kind == "delivered" {
		updated, err = h.messages.MarkDelivered(c.Request.Context(), messageID, userID)
	} else {
		updated, err = h.messages.MarkRead(c.Request.Context(), messageID, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update receipt"})
		return
	}

	observability.AddReceiptsUpdated(kind, updated)
	if updated > 0 {
		eventName := models.EventDelivered
		if kind == "read" {
			eventName = models.EventRead
		}
		h.hub.SendToUser(meta.SenderUserID, models.Event{Event: eventName, Data: models.ReceiptEvent{
			MessageID: messageID,
			ByUserID:  userID,
			At:        time.Now().UTC(),
		}})
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// MarkReadUpTo records read receipts for every message at or below a sequence
// number and announces the watermark to the chat room.
func (h *MessageHandler) MarkReadUpTo(c *gin.Context) {
	chatID := c.Param("chatId")
	userID := middleware.UserID(c)

	var req struct {
		UptoSeq int64 `json:"uptoSeq" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.chats.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	updated, err := h.messages.MarkChatReadUpTo(c.Request.Context(), chatID, req.UptoSeq, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update receipts"})
		return
	}

	observability.AddReceiptsUpdated("read", updated)
	if updated > 0 {
		h.hub.BroadcastToChat(chatID, models.Event{Event: models.EventReadUpTo, Data: models.ReadUpToEvent{
			ChatID:   chatID,
			ByUserID: userID,
			UptoSeq:  req.UptoSeq,
		}})
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// DeleteMessage hard-deletes the caller's own message and announces it to the
// chat room. Someone else's message is refused, not silently ignored.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := middleware.UserID(c)
	result, err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}

	switch result.Outcome {
	case services.DeleteNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case services.DeleteNotOwner:
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
	default:
		h.emitAudit(c, "INFO", "message deleted")
		h.hub.BroadcastToChat(result.Message.ChatID, models.Event{Event: models.EventMessageDel, Data: models.MessageDeletedEvent{
			ChatID:    result.Message.ChatID,
			MessageID: messageID,
		}})
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
