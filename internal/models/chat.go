package models

import (
	"encoding/json"
	"time"
)

// Member roles. Assigned at creation; there is no promotion or removal path.
const (
	RoleMember = 0
	RoleOwner  = 2
)

// Chat represents a direct or group conversation. IDs are client-suppliable
// UUID strings so a client can name a chat before its first message.
type Chat struct {
	ID          string          `db:"id" json:"id"`
	IsGroup     bool            `db:"is_group" json:"is_group"`
	Title       *string         `db:"title" json:"title,omitempty"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedBy   int64           `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	Properties  json.RawMessage `db:"properties" json:"properties,omitempty"`
}

// ChatMember is a user's membership row in a chat.
type ChatMember struct {
	ChatID string `db:"chat_id" json:"chat_id"`
	UserID int64  `db:"user_id" json:"user_id"`
	Role   int    `db:"role" json:"role"`
}

// MemberInfo embeds user profile data alongside the membership role.
type MemberInfo struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	ProfilePicture *string    `db:"profile_picture" json:"profile_picture,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastSeenAt     *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
	Role           int        `db:"role" json:"role"`
}

// ChatDetails is a chat with its full member list.
type ChatDetails struct {
	Chat
	Members []MemberInfo `json:"members"`
}

// ChatSummary is one entry of a user's chat list: the chat, its members and
// the most recent message.
type ChatSummary struct {
	Chat
	Members     []MemberInfo `json:"members"`
	LastMessage *Message     `json:"last_message,omitempty"`
}
