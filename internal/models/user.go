package models

import "time"

// User represents a registered account.
type User struct {
	ID             int64      `db:"id" json:"id"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	Name           string     `db:"name" json:"name"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	About          *string    `db:"about" json:"about,omitempty"`
	ProfilePicture *string    `db:"profile_picture" json:"profile_picture,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastSeenAt     *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// PublicUser is the profile shape exposed to other users.
type PublicUser struct {
	ID             int64      `db:"id" json:"id"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	Name           string     `db:"name" json:"name"`
	About          *string    `db:"about" json:"about,omitempty"`
	ProfilePicture *string    `db:"profile_picture" json:"profile_picture,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastSeenAt     *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// Public strips credentials from a User.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		PhoneNumber:    u.PhoneNumber,
		Name:           u.Name,
		About:          u.About,
		ProfilePicture: u.ProfilePicture,
		IsActive:       u.IsActive,
		LastSeenAt:     u.LastSeenAt,
	}
}
