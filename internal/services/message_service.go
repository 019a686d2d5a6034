package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"messenger/internal/models"
	"messenger/internal/presence"
	"messenger/internal/repositories"
)

var (
	ErrNotMember   = errors.New("sender is not a member of this chat")
	ErrMissingPeer = errors.New("missing peer user id for new chat creation")
)

// SendMessageInput carries everything needed to send a message.
type SendMessageInput struct {
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

// DeleteOutcome discriminates the three results of a delete request.
type DeleteOutcome string

const (
	DeleteDone     DeleteOutcome = "deleted"
	DeleteNotFound DeleteOutcome = "not_found"
	DeleteNotOwner DeleteOutcome = "not_owner"
)

// DeleteResult reports what happened; Message is set only when deleted.
type DeleteResult struct {
	Outcome DeleteOutcome
	Message models.MessageMeta
}

// MessageService mediates all message mutation: sequencing, receipts,
// membership enforcement.
type MessageService interface {
	EnsureChatForSend(ctx context.Context, chatID string, senderID int64, metadata json.RawMessage) (string, bool, error)
	SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error)
	GetChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error)
	MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error)
	MarkRead(ctx context.Context, messageID, userID int64) (int64, error)
	MarkChatReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error)
	DeleteMessage(ctx context.Context, messageID, requesterID int64) (DeleteResult, error)
	GetMessageMeta(ctx context.Context, messageID int64) (models.MessageMeta, error)
}

// MessageSvc implements MessageService over the repositories.
type MessageSvc struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	presence presence.Tracker

	defaultPageSize int
	maxPageSize     int
}

// NewMessageService constructs a MessageSvc.
func NewMessageService(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository, tracker presence.Tracker, defaultPageSize, maxPageSize int) *MessageSvc {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	if maxPageSize <= 0 {
		maxPageSize = 200
	}
	return &MessageSvc{
		chats:           chats,
		messages:        messages,
		users:           users,
		presence:        tracker,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// sendMetadata is the client-supplied metadata envelope consulted when the
// target chat does not exist yet.
type sendMetadata struct {
	To   int64  `json:"to"`
	Name string `json:"name"`
}

// EnsureChatForSend resolves the chat a message is addressed to. If the id is
// unknown, a direct chat with the peer named in metadata.to is created first;
// sending and creating stay two separate steps with the resolution made
// explicit here instead of hidden inside SendMessage.
func (s *MessageSvc) EnsureChatForSend(ctx context.Context, chatID string, senderID int64, metadata json.RawMessage) (string, bool, error) {
	if chatID != "" {
		if _, err := s.chats.GetChat(ctx, chatID); err == nil {
			return chatID, false, nil
		} else if !errors.Is(err, repositories.ErrChatNotFound) {
			return "", false, err
		}
	}

	var meta sendMetadata
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return "", false, err
		}
	}
	if meta.To == 0 {
		return "", false, ErrMissingPeer
	}

	if chatID == "" {
		chatID = uuid.NewString()
	}
	title := meta.Name
	if title == "" {
		title = "New Chat"
	}

	_, err := s.chats.CreateChat(ctx, senderID, chatID, false, &title, nil, []int64{senderID, meta.To})
	if errors.Is(err, repositories.ErrChatExists) {
		// Lost a race with another device creating the same chat id.
		return chatID, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return chatID, true, nil
}

// SendMessage verifies membership, stores the message with its receipts and
// computes the advisory initial status. Broadcasting is the caller's job.
func (s *MessageSvc) SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	if in.MessageType == "" {
		in.MessageType = "text"
	}

	member, err := s.chats.IsMember(ctx, in.ChatID, in.SenderUserID)
	if err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, ErrNotMember
	}

	msg, err := s.messages.CreateMessage(ctx, repositories.CreateMessageInput{
		ChatID:             in.ChatID,
		SenderUserID:       in.SenderUserID,
		MessageType:        in.MessageType,
		Body:               in.Body,
		MediaID:            in.MediaID,
		QuotedMessageID:    in.QuotedMessageID,
		EditOf:             in.EditOf,
		EphemeralExpiresAt: in.EphemeralExpiresAt,
		Metadata:           in.Metadata,
	})
	if err != nil {
		return models.Message{}, err
	}

	msg.Status = s.initialStatus(ctx, in.Metadata)
	return msg, nil
}

// initialStatus is advisory and only meaningful for direct chats: delivered
// when the peer is online right now, sending otherwise. Never persisted.
func (s *MessageSvc) initialStatus(ctx context.Context, metadata json.RawMessage) string {
	var meta sendMetadata
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &meta)
	}
	if meta.To == 0 {
		return models.StatusSending
	}
	if online, err := s.presence.IsOnline(ctx, meta.To); err == nil && online {
		return models.StatusDelivered
	}
	if active, err := s.users.IsActive(ctx, meta.To); err == nil && active {
		return models.StatusDelivered
	}
	return models.StatusSending
}

// GetChatMessages returns a page of messages in ascending seq order with
// per-message status from the requester's perspective. For the requester's
// own messages the full per-recipient receipt map is attached and the scalar
// status is the all-recipients aggregate.
func (s *MessageSvc) GetChatMessages(ctx context.Context, chatID string, requesterID int64, limit int, beforeSeq int64) ([]models.ChatMessage, error) {
	member, err := s.chats.IsMember(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	msgs, err := s.messages.ListChatMessages(ctx, chatID, requesterID, limit, beforeSeq)
	if err != nil {
		return nil, err
	}

	var ownIDs []int64
	for i := range msgs {
		if msgs[i].SenderUserID == requesterID {
			ownIDs = append(ownIDs, msgs[i].ID)
		}
	}
	receiptsByMsg := map[int64][]models.Receipt{}
	if len(ownIDs) > 0 {
		receipts, err := s.messages.ReceiptsForMessages(ctx, ownIDs)
		if err != nil {
			return nil, err
		}
		for _, receipt := range receipts {
			receiptsByMsg[receipt.MessageID] = append(receiptsByMsg[receipt.MessageID], receipt)
		}
	}

	for i := range msgs {
		msg := &msgs[i]
		if msg.SenderUserID != requesterID {
			msg.Status = models.Receipt{DeliveredAt: msg.MyDeliveredAt, ReadAt: msg.MyReadAt}.State()
			continue
		}
		receipts := receiptsByMsg[msg.ID]
		msg.Receipts = make(map[int64]string, len(receipts))
		for _, receipt := range receipts {
			msg.Receipts[receipt.RecipientUserID] = receipt.State()
		}
		msg.Status = aggregateStatus(receipts)
	}
	return msgs, nil
}

// aggregateStatus collapses per-recipient states into one value for the
// sender's view: read when every recipient read it, delivered when every
// recipient received it, sending otherwise.
func aggregateStatus(receipts []models.Receipt) string {
	if len(receipts) == 0 {
		return models.StatusSending
	}
	allRead, allDelivered := true, true
	for _, receipt := range receipts {
		if receipt.ReadAt == nil {
			allRead = false
		}
		if receipt.DeliveredAt == nil {
			allDelivered = false
		}
	}
	switch {
	case allRead:
		return models.StatusRead
	case allDelivered:
		return models.StatusDelivered
	default:
		return models.StatusSending
	}
}

// MarkDelivered records a delivery confirmation. A sender confirming its own
// message is a no-op: senders have no receipt row against themselves.
func (s *MessageSvc) MarkDelivered(ctx context.Context, messageID, userID int64) (int64, error) {
	meta, err := s.messages.GetMeta(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if meta.SenderUserID == userID {
		return 0, nil
	}
	return s.messages.MarkDelivered(ctx, messageID, userID)
}

// MarkRead records a read confirmation; read implies delivered.
func (s *MessageSvc) MarkRead(ctx context.Context, messageID, userID int64) (int64, error) {
	meta, err := s.messages.GetMeta(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if meta.SenderUserID == userID {
		return 0, nil
	}
	return s.messages.MarkRead(ctx, messageID, userID)
}

// MarkChatReadUpTo is the batch catch-up path used when a user opens a chat.
func (s *MessageSvc) MarkChatReadUpTo(ctx context.Context, chatID string, uptoSeq, userID int64) (int64, error) {
	return s.messages.MarkReadUpTo(ctx, chatID, uptoSeq, userID)
}

// DeleteMessage hard-deletes a message when the requester is its sender and
// reports not-found and not-owner as distinct outcomes.
func (s *MessageSvc) DeleteMessage(ctx context.Context, messageID, requesterID int64) (DeleteResult, error) {
	meta, err := s.messages.GetMeta(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return DeleteResult{Outcome: DeleteNotFound}, nil
	}
	if err != nil {
		return DeleteResult{}, err
	}
	if meta.SenderUserID != requesterID {
		return DeleteResult{Outcome: DeleteNotOwner}, nil
	}

	affected, err := s.messages.DeleteBySender(ctx, messageID, requesterID)
	if err != nil {
		return DeleteResult{}, err
	}
	if affected == 0 {
		return DeleteResult{Outcome: DeleteNotFound}, nil
	}
	return DeleteResult{Outcome: DeleteDone, Message: meta}, nil
}

// GetMessageMeta exposes message identity for receipt routing.
func (s *MessageSvc) GetMessageMeta(ctx context.Context, messageID int64) (models.MessageMeta, error) {
	return s.messages.GetMeta(ctx, messageID)
}
