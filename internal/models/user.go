package models

import "time"

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           int        `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	AvatarURL    string     `db:"avatar_url" json:"avatar_url,omitempty"`
	IsOnline     bool       `db:"is_online" json:"is_online"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Presence is the online/offline view of a user, served from the cache when
// available and from the users table otherwise.
type Presence struct {
	UserID   int        `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
