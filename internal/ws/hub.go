package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// ChatRoom names the broadcast room for a conversation.
func ChatRoom(chatID int) string { return fmt.Sprintf("chat:%d", chatID) }

// UserRoom names a user's personal room, joined at handshake.
func UserRoom(userID int) string { return fmt.Sprintf("user:%d", userID) }

// Hub owns all transient connection state: the identity registry, the per-user
// session sets that back presence counting, and room membership. Two pieces of
// per-identity state are kept deliberately separate: the registry is
// last-connect-wins and only addresses a user directly, while the session set
// decides online/offline.
type Hub struct {
	mu       sync.RWMutex
	registry map[int]*Client
	sessions map[int]map[*Client]bool
	rooms    map[string]map[*Client]bool
	joined   map[*Client]map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		registry: make(map[int]*Client),
		sessions: make(map[int]map[*Client]bool),
		rooms:    make(map[string]map[*Client]bool),
		joined:   make(map[*Client]map[string]bool),
	}
}

// Register admits an authenticated connection. It reports whether this is the
// identity's first live connection (the Offline -> Online edge).
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[c.UserID]; !ok {
		h.sessions[c.UserID] = make(map[*Client]bool)
	}
	h.sessions[c.UserID][c] = true
	h.registry[c.UserID] = c
	return len(h.sessions[c.UserID]) == 1
}

// Unregister removes a connection and reports whether the identity has no live
// connections left (the Online -> Offline edge). The registry entry is cleared
// only when it still points at this exact connection, so a stale disconnect
// from a superseded connection never clears a newer one.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.sessions[c.UserID]
	if !ok || !set[c] {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.UserID)
	}
	if h.registry[c.UserID] == c {
		delete(h.registry, c.UserID)
	}
	return len(set) == 0
}

// Lookup returns the most recently registered connection for the identity.
func (h *Hub) Lookup(userID int) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.registry[userID]
	return c, ok
}

// SessionCount returns the number of live connections for the identity.
func (h *Hub) SessionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Join adds the connection to a room. Idempotent.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]bool)
	}
	h.joined[c][room] = true
}

// Leave removes the connection from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// LeaveAll removes the connection from every room it has joined. Invoked at
// disconnect, before any presence broadcast, so no event is delivered to a
// dead handle.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.joined[c] {
		h.leaveLocked(c, room)
	}
	delete(h.joined, c)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
	}
}

// RoomSize returns the current membership count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers an event to every member of the room except exclude.
// Delivery is best-effort: a recipient whose transport fails is closed and
// evicted, never retried.
func (h *Hub) Broadcast(room, event string, payload any, exclude *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(members, event, payload)
}

// BroadcastAll delivers an event to every live connection except exclude.
// Used for global presence changes.
func (h *Hub) BroadcastAll(event string, payload any, exclude *Client) {
	h.mu.RLock()
	var members []*Client
	for _, set := range h.sessions {
		for c := range set {
			if c != exclude {
				members = append(members, c)
			}
		}
	}
	h.mu.RUnlock()

	h.deliver(members, event, payload)
}

// SendTo addresses the identity's registered connection directly, outside of
// any room. Reports whether a connection was found.
func (h *Hub) SendTo(userID int, event string, payload any) bool {
	c, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	if err := c.send(event, payload); err != nil {
		h.evict(c, err)
		return false
	}
	return true
}

// BroadcastMessage relays a persisted message to its conversation room. The
// sender's own connections receive it too; their client reconciles by id.
func (h *Hub) BroadcastMessage(chatID int, msg models.Message) {
	h.Broadcast(ChatRoom(chatID), EventMessageReceive, msg, nil)
}

// RelayMessage is the socket-side fan-out path for an already persisted
// message, excluding the sending connection.
func (h *Hub) RelayMessage(chatID int, message json.RawMessage, from *Client) {
	h.Broadcast(ChatRoom(chatID), EventMessageReceive, message, from)
}

// BroadcastMessageRead relays a read-state transition to the conversation room.
func (h *Hub) BroadcastMessageRead(chatID, messageID int, readAt time.Time) {
	h.Broadcast(ChatRoom(chatID), EventMessageRead, ReadPayload{MessageID: messageID, ReadAt: readAt}, nil)
}

// BroadcastTyping shows a typing indicator to the room, excluding the typist.
func (h *Hub) BroadcastTyping(chatID int, username string, from *Client) {
	h.Broadcast(ChatRoom(chatID), EventTypingDisplay, TypingPayload{Username: username}, from)
}

// BroadcastTypingStopped hides the typing indicator, excluding the typist.
func (h *Hub) BroadcastTypingStopped(chatID int, from *Client) {
	h.Broadcast(ChatRoom(chatID), EventTypingHide, nil, from)
}

func (h *Hub) deliver(members []*Client, event string, payload any) {
	for _, c := range members {
		if err := c.send(event, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			h.evict(c, err)
		}
	}
}

// evict closes a connection whose transport failed and drops its room
// memberships. Unregistration and the presence transition stay with the read
// loop's cleanup path, which the close wakes up; running them here as well
// would fire the offline transition twice.
func (h *Hub) evict(c *Client, err error) {
	c.close()
	h.LeaveAll(c)
	h.publishWSError(c, err)
}

func (h *Hub) publishWSError(c *Client, err error) {
	observability.IncWSEvent("ws_error")
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     c.ConnID,
			"duration_ms": time.Since(c.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   c.UserID,
			"device_id": c.DeviceID,
			"ip":        c.IP,
		},
	}
	headers := observability.BuildHeaders(c.RequestID, c.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.realtime", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
}
