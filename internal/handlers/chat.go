package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger/internal/middleware"
	"messenger/internal/repositories"
	"messenger/internal/services"
	"messenger/internal/telemetry"
)

// ChatHandler serves chat CRUD and listing endpoints.
type ChatHandler struct {
	chats services.ChatService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats services.ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, audit: audit}
}

// CreateChat creates a chat with the caller as owner.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		ChatID      string  `json:"chat_id"`
		IsGroup     bool    `json:"is_group"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		MemberIDs   []int64 `json:"member_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid chat payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	chat, err := h.chats.CreateChat(c.Request.Context(), userID, req.ChatID, req.IsGroup, req.Title, req.Description, req.MemberIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrChatExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "chat already exists"})
			return
		}
		h.emitAudit(c, "ERROR", "chat creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.emitAudit(c, "INFO", "chat created")
	c.JSON(http.StatusCreated, chat)
}

// ListUserChats returns the caller's chats ordered by last activity.
func (h *ChatHandler) ListUserChats(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if userID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot list another user's chats"})
		return
	}

	chats, err := h.chats.GetUserChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetUnreadCount returns how many messages in a chat lack the user's read receipt.
func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if userID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot read another user's counters"})
		return
	}
	chatID := c.Param("chatId")

	count, err := h.chats.GetChatUnreadCount(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "unread": count})
}

// GetChat returns a chat with its member list. Members only.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID := c.Param("chatId")
	userID := middleware.UserID(c)

	member, err := h.chats.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	details, err := h.chats.GetChatDetails(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
