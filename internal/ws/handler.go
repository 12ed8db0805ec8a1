package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// TokenVerifier validates an access credential and returns the identity.
type TokenVerifier interface {
	VerifyAccess(token string) (int, error)
}

// Handler authenticates and upgrades websocket connections and runs their
// event loops.
type Handler struct {
	hub      *Hub
	presence *PresenceCoordinator
	chats    repositories.ChatRepository
	tokens   TokenVerifier
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, presence *PresenceCoordinator, chats repositories.ChatRepository, tokens TokenVerifier) *Handler {
	return &Handler{hub: hub, presence: presence, chats: chats, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle verifies the credential and admits the connection. Verification
// failure rejects the handshake before any registry mutation.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.tokens.VerifyAccess(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(userID, conn)
	client.DeviceID = observability.DeviceIDFromRequest(c.Request)
	client.IP = observability.IPFromRequest(c.Request)
	client.RequestID = observability.RequestIDFromRequest(c.Request)
	client.TraceID = span.SpanContext().TraceID().String()

	h.presence.Connected(ctx, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, client, "ws_connect", "")

	go h.readLoop(conn, client)
}

// bearerToken pulls the credential from the Authorization header or, for
// browser clients that cannot set headers on websocket dials, the token query
// parameter.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func (h *Handler) readLoop(conn *websocket.Conn, client *Client) {
	var closeReason string
	defer func() {
		// Registry and room cleanup must complete before any further
		// presence broadcast can be observed.
		h.presence.Disconnected(context.Background(), client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(context.Background(), client, "ws_disconnect", closeReason)
		client.close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("websocket bad frame from user=%d: %v", client.UserID, err)
			continue
		}
		h.dispatch(client, frame)
	}
}

func (h *Handler) dispatch(client *Client, frame Frame) {
	switch frame.Event {
	case EventChatJoin:
		var chatID int
		if err := json.Unmarshal(frame.Data, &chatID); err != nil {
			return
		}
		member, err := h.chats.IsParticipant(context.Background(), chatID, client.UserID)
		if err != nil || !member {
			return
		}
		h.hub.Join(client, ChatRoom(chatID))
		observability.IncWSEvent("chat_join")

	case EventMessageSend:
		var payload SendPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		h.hub.RelayMessage(payload.ChatID, payload.Message, client)
		observability.IncWSEvent("message_send")

	case EventTypingStart:
		var payload TypingStartPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		h.hub.BroadcastTyping(payload.ChatID, payload.Username, client)

	case EventTypingStop:
		var chatID int
		if err := json.Unmarshal(frame.Data, &chatID); err != nil {
			return
		}
		h.hub.BroadcastTypingStopped(chatID, client)
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, client *Client, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     client.ConnID,
			"duration_ms": time.Since(client.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   client.UserID,
			"device_id": client.DeviceID,
			"ip":        client.IP,
		},
	}
	headers := observability.BuildHeaders(client.RequestID, client.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.realtime", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
