package models

import "time"

// Chat is a conversation. Direct chats have exactly two participants, group
// chats at least three; both bounds are enforced at persistence time.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	Name          string    `db:"name" json:"name,omitempty"`
	AdminID       *int      `db:"admin_id" json:"admin_id,omitempty"`
	LastMessageID *int      `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	Participants []User   `json:"participants,omitempty"`
	LastMessage  *Message `json:"last_message,omitempty"`
}

// HasParticipant reports whether the user appears in the loaded participant list.
func (c Chat) HasParticipant(userID int) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
