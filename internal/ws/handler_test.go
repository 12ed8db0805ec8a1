package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
)

type stubVerifier struct {
	ids map[string]int
}

func (s stubVerifier) VerifyAccess(token string) (int, error) {
	if id, ok := s.ids[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

func newTestHandler(t *testing.T, ids map[string]int) (*Handler, *Hub, *mocks.ChatRepositoryMock, *mocks.UserRepositoryMock) {
	t.Helper()
	hub := NewHub()
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	coordinator := NewPresenceCoordinator(hub, users, nil)
	return NewHandler(hub, coordinator, chats, stubVerifier{ids: ids}), hub, chats, users
}

func TestHandleRejectsMissingCredentialBeforeUpgrade(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, hub, _, _ := newTestHandler(t, map[string]int{"good": 1})

	router := gin.New()
	router.GET("/ws", handler.Handle)

	for _, target := range []string{"/ws", "/ws?token=bad"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.Equal(t, 0, hub.SessionCount(1), "rejected handshake must not touch the registry")
}

func TestHandleAcceptsHeaderCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, hub, _, users := newTestHandler(t, map[string]int{"good": 1})
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil)
	users.On("SetOnline", mock.Anything, 1, false, mock.Anything).Return(nil)

	server := httptest.NewServer(newWSRouter(handler))
	defer server.Close()

	header := http.Header{"Authorization": []string{"Bearer good"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.SessionCount(1) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func newWSRouter(handler *Handler) http.Handler {
	router := gin.New()
	router.GET("/ws", handler.Handle)
	return router
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server)+"?token="+token, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: payload}))
}

func TestSocketSessionEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, hub, chats, users := newTestHandler(t, map[string]int{"alice": 1, "bob": 2})
	users.On("SetOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	chats.On("IsParticipant", mock.Anything, 10, 1).Return(true, nil)
	chats.On("IsParticipant", mock.Anything, 10, 2).Return(true, nil)

	server := httptest.NewServer(newWSRouter(handler))
	defer server.Close()

	bob := dial(t, server, "bob")
	defer bob.Close()
	require.Eventually(t, func() bool { return hub.SessionCount(2) == 1 }, 2*time.Second, 10*time.Millisecond)

	alice := dial(t, server, "alice")
	defer alice.Close()

	// Bob, already connected, observes Alice's arrival.
	frame := readFrame(t, bob)
	require.Equal(t, EventUserOnline, frame.Event)
	var online PresencePayload
	require.NoError(t, json.Unmarshal(frame.Data, &online))
	require.Equal(t, 1, online.UserID)

	writeFrame(t, alice, EventChatJoin, 10)
	writeFrame(t, bob, EventChatJoin, 10)
	require.Eventually(t, func() bool { return hub.RoomSize(ChatRoom(10)) == 2 }, 2*time.Second, 10*time.Millisecond)

	// A membership check failure keeps the connection out of the room.
	chats.On("IsParticipant", mock.Anything, 99, 1).Return(false, nil)
	writeFrame(t, alice, EventChatJoin, 99)

	writeFrame(t, alice, EventTypingStart, TypingStartPayload{ChatID: 10, Username: "alice"})
	frame = readFrame(t, bob)
	require.Equal(t, EventTypingDisplay, frame.Event)

	writeFrame(t, alice, EventMessageSend, SendPayload{ChatID: 10, Message: json.RawMessage(`{"id":1,"content":"hi bob"}`)})
	frame = readFrame(t, bob)
	require.Equal(t, EventMessageReceive, frame.Event)
	require.JSONEq(t, `{"id":1,"content":"hi bob"}`, string(frame.Data))

	require.Equal(t, 0, hub.RoomSize(ChatRoom(99)))

	// Closing Alice's only connection flips her offline for everyone else.
	require.NoError(t, alice.Close())
	frame = readFrame(t, bob)
	require.Equal(t, EventUserOffline, frame.Event)
	var offline PresencePayload
	require.NoError(t, json.Unmarshal(frame.Data, &offline))
	require.Equal(t, 1, offline.UserID)

	require.Eventually(t, func() bool { return hub.SessionCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}
