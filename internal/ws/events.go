package ws

import (
	"encoding/json"
	"time"
)

// Server -> client events.
const (
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventMessageReceive = "message:receive"
	EventMessageRead    = "message:read"
	EventTypingDisplay  = "typing:display"
	EventTypingHide     = "typing:hide"
)

// Client -> server events.
const (
	EventChatJoin    = "chat:join"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PresencePayload accompanies user:online / user:offline.
type PresencePayload struct {
	UserID int `json:"userId"`
}

// ReadPayload accompanies message:read.
type ReadPayload struct {
	MessageID int       `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

// TypingPayload accompanies typing:display.
type TypingPayload struct {
	Username string `json:"username"`
}

// SendPayload is the client's message:send data. Message carries the already
// persisted record verbatim; the relay does not inspect it.
type SendPayload struct {
	ChatID  int             `json:"chatId"`
	Message json.RawMessage `json:"message"`
}

// TypingStartPayload is the client's typing:start data.
type TypingStartPayload struct {
	ChatID   int    `json:"chatId"`
	Username string `json:"username"`
}
