package models

import "time"

// Message is a persisted chat message. SenderUsername and SenderAvatar are
// populated by joins so relayed copies arrive with the sender resolved.
type Message struct {
	ID             int        `db:"id" json:"id"`
	ChatID         int        `db:"chat_id" json:"chat_id"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	SenderUsername string     `db:"sender_username" json:"sender_username,omitempty"`
	SenderAvatar   string     `db:"sender_avatar" json:"sender_avatar,omitempty"`
	Content        string     `db:"content" json:"content"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
