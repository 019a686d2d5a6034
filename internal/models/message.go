package models

import (
	"encoding/json"
	"time"
)

// Delivery status values as seen from a single recipient's perspective.
const (
	StatusSending   = "sending"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message represents a chat message. seq is unique and contiguous per chat;
// it is assigned inside the send transaction under a lock on the chat row.
type Message struct {
	ID                 int64           `db:"id" json:"id"`
	ChatID             string          `db:"chat_id" json:"chat_id"`
	SenderUserID       int64           `db:"sender_user_id" json:"sender_user_id"`
	MessageType        string          `db:"message_type" json:"message_type"`
	Body               *string         `db:"body" json:"body,omitempty"`
	MediaID            *string         `db:"media_id" json:"media_id,omitempty"`
	QuotedMessageID    *int64          `db:"quoted_message_id" json:"quoted_message_id,omitempty"`
	EditOf             *int64          `db:"edit_of" json:"edit_of,omitempty"`
	EphemeralExpiresAt *time.Time      `db:"ephemeral_expires_at" json:"ephemeral_expires_at,omitempty"`
	Seq                int64           `db:"seq" json:"seq"`
	Metadata           json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	ServerReceivedAt   time.Time       `db:"server_received_at" json:"server_received_at"`

	// Status is advisory and never persisted: for a freshly sent direct
	// message it reflects the peer's presence, for fetched messages it is
	// derived from the requester's own receipt row.
	Status string `db:"-" json:"status,omitempty"`
}

// MessageMeta is the minimal identity of a message, used for receipt routing
// and ownership checks.
type MessageMeta struct {
	ID           int64  `db:"id" json:"id"`
	ChatID       string `db:"chat_id" json:"chat_id"`
	SenderUserID int64  `db:"sender_user_id" json:"sender_user_id"`
	Seq          int64  `db:"seq" json:"seq"`
}

// Receipt is one (message, recipient) delivery-state row. Timestamps are
// write-once: once set they are never overwritten.
type Receipt struct {
	MessageID       int64      `db:"message_id" json:"message_id"`
	RecipientUserID int64      `db:"recipient_user_id" json:"recipient_user_id"`
	DeliveredAt     *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt          *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// State derives the recipient-perspective status from the receipt timestamps.
func (r Receipt) State() string {
	switch {
	case r.ReadAt != nil:
		return StatusRead
	case r.DeliveredAt != nil:
		return StatusDelivered
	default:
		return StatusSending
	}
}

// ChatMessage is a fetched message enriched with sender info, the requester's
// own receipt timestamps and, for group chats, the full per-recipient map.
type ChatMessage struct {
	Message
	SenderName    string           `db:"sender_name" json:"sender_name"`
	SenderAvatar  *string          `db:"sender_avatar" json:"sender_avatar,omitempty"`
	MyDeliveredAt *time.Time       `db:"my_delivered_at" json:"my_delivered_at,omitempty"`
	MyReadAt      *time.Time       `db:"my_read_at" json:"my_read_at,omitempty"`
	Receipts      map[int64]string `db:"-" json:"receipts,omitempty"`
}
