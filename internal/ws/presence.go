package ws

import (
	"context"
	"log"
	"time"

	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
)

// PresenceCoordinator drives the per-identity Offline <-> Online transitions.
// The durable flag flips only on the first connection and the last disconnect;
// the hub's session sets supply the count. Persist happens before broadcast.
type PresenceCoordinator struct {
	hub   *Hub
	users repositories.UserRepository
	cache *presence.Cache
}

// NewPresenceCoordinator constructs a PresenceCoordinator. cache may be nil.
func NewPresenceCoordinator(hub *Hub, users repositories.UserRepository, cache *presence.Cache) *PresenceCoordinator {
	return &PresenceCoordinator{hub: hub, users: users, cache: cache}
}

// Connected registers the handle and joins its personal room. On the
// identity's first live connection it persists is_online=true and broadcasts
// user:online to everyone else.
func (p *PresenceCoordinator) Connected(ctx context.Context, c *Client) {
	first := p.hub.Register(c)
	p.hub.Join(c, UserRoom(c.UserID))
	if !first {
		return
	}

	now := time.Now().UTC()
	if err := p.users.SetOnline(ctx, c.UserID, true, now); err != nil {
		log.Printf("presence: persist online user=%d: %v", c.UserID, err)
		return
	}
	if err := p.cache.Set(ctx, c.UserID, true, now); err != nil {
		log.Printf("presence: cache online user=%d: %v", c.UserID, err)
	}
	observability.IncOnlineUsers()
	p.hub.BroadcastAll(EventUserOnline, PresencePayload{UserID: c.UserID}, c)
}

// Disconnected removes the handle from every room and the registry, then, if
// this was the identity's last connection, persists is_online=false and
// broadcasts user:offline. Cleanup precedes the broadcast so nothing is
// delivered to the dead handle. A disconnect while another connection for the
// same identity is live changes nothing durable.
func (p *PresenceCoordinator) Disconnected(ctx context.Context, c *Client) {
	p.hub.LeaveAll(c)
	last := p.hub.Unregister(c)
	if !last {
		return
	}

	now := time.Now().UTC()
	if err := p.users.SetOnline(ctx, c.UserID, false, now); err != nil {
		log.Printf("presence: persist offline user=%d: %v", c.UserID, err)
		return
	}
	if err := p.cache.Set(ctx, c.UserID, false, now); err != nil {
		log.Printf("presence: cache offline user=%d: %v", c.UserID, err)
	}
	observability.DecOnlineUsers()
	p.hub.BroadcastAll(EventUserOffline, PresencePayload{UserID: c.UserID}, c)
}
