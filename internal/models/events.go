package models

import (
	"encoding/json"
	"time"
)

// Server-to-client event names.
const (
	EventAck        = "ack"
	EventMessageNew = "message:new"
	EventMessageDel = "message:deleted"
	EventDelivered  = "receipt:delivered"
	EventRead       = "receipt:read"
	EventReadUpTo   = "chat:readUpTo"
	EventTyping     = "typing"
	EventOnline     = "user:online"
	EventOffline    = "user:offline"
)

// ClientFrame is the request half of the socket protocol. Frames carrying an
// id expect an ack event with the same id; frames without one are fire-and-forget.
type ClientFrame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is broadcasted through websockets.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Ack is the response payload for request frames.
type Ack struct {
	ID      string   `json:"id"`
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Message *Message `json:"message,omitempty"`
	Updated *int64   `json:"updated,omitempty"`
}

// ReceiptEvent notifies a message's sender that a recipient confirmed
// delivery or read.
type ReceiptEvent struct {
	MessageID int64     `json:"messageId"`
	ByUserID  int64     `json:"byUserId"`
	At        time.Time `json:"at"`
}

// ReadUpToEvent informs a chat room that a member read up to a sequence number.
type ReadUpToEvent struct {
	ChatID   string `json:"chatId"`
	ByUserID int64  `json:"byUserId"`
	UptoSeq  int64  `json:"uptoSeq"`
}

// TypingEvent is an ephemeral typing signal; never persisted.
type TypingEvent struct {
	ChatID   string `json:"chatId"`
	UserID   int64  `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEvent announces a user going online or offline.
type PresenceEvent struct {
	UserID int64 `json:"userId"`
}

// MessageDeletedEvent announces a hard delete to the chat room.
type MessageDeletedEvent struct {
	ChatID    string `json:"chatId"`
	MessageID int64  `json:"messageId"`
}
