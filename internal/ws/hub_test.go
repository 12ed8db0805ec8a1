package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger-service/internal/models"
)

type fakeConn struct {
	mu         sync.Mutex
	frames     []Frame
	closed     bool
	failWrites bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write failed")
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		names = append(names, fr.Event)
	}
	return names
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegisterReportsPresenceEdges(t *testing.T) {
	hub := NewHub()
	first := NewClient(1, &fakeConn{})
	second := NewClient(1, &fakeConn{})

	require.True(t, hub.Register(first), "first connection should be the online edge")
	require.False(t, hub.Register(second), "second connection must not re-report online")
	require.Equal(t, 2, hub.SessionCount(1))

	require.False(t, hub.Unregister(first), "a connection remains, not the offline edge")
	require.True(t, hub.Unregister(second), "last connection gone should be the offline edge")
	require.Equal(t, 0, hub.SessionCount(1))
}

func TestUnregisterStaleHandleKeepsNewerRegistryEntry(t *testing.T) {
	hub := NewHub()
	older := NewClient(7, &fakeConn{})
	newer := NewClient(7, &fakeConn{})

	hub.Register(older)
	hub.Register(newer)

	hub.Unregister(older)

	got, ok := hub.Lookup(7)
	require.True(t, ok)
	require.Same(t, newer, got, "stale disconnect must not clear the newer connection")
}

func TestJoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	client := NewClient(1, &fakeConn{})
	hub.Register(client)

	hub.Join(client, ChatRoom(5))
	hub.Join(client, ChatRoom(5))

	require.Equal(t, 1, hub.RoomSize(ChatRoom(5)))
}

func TestLeaveAllEmptiesEveryRoom(t *testing.T) {
	hub := NewHub()
	client := NewClient(1, &fakeConn{})
	hub.Register(client)
	hub.Join(client, ChatRoom(1))
	hub.Join(client, ChatRoom(2))
	hub.Join(client, UserRoom(1))

	hub.LeaveAll(client)

	require.Equal(t, 0, hub.RoomSize(ChatRoom(1)))
	require.Equal(t, 0, hub.RoomSize(ChatRoom(2)))
	require.Equal(t, 0, hub.RoomSize(UserRoom(1)))
}

func TestBroadcastMessageReachesAllRoomMembers(t *testing.T) {
	hub := NewHub()
	connA, connB, connC := &fakeConn{}, &fakeConn{}, &fakeConn{}
	a, b, outsider := NewClient(1, connA), NewClient(2, connB), NewClient(3, connC)
	for _, c := range []*Client{a, b, outsider} {
		hub.Register(c)
	}
	hub.Join(a, ChatRoom(9))
	hub.Join(b, ChatRoom(9))

	hub.BroadcastMessage(9, models.Message{ID: 42, ChatID: 9, SenderID: 1, SenderUsername: "alice", Content: "hi"})

	require.Equal(t, []string{EventMessageReceive}, connA.events(), "sender's connection is not excluded on the persisted path")
	require.Equal(t, []string{EventMessageReceive}, connB.events())
	require.Empty(t, connC.events(), "non-members receive nothing")

	var msg models.Message
	require.NoError(t, json.Unmarshal(connB.frames[0].Data, &msg))
	require.Equal(t, 42, msg.ID)
	require.Equal(t, "alice", msg.SenderUsername)
}

func TestTypingExcludesSender(t *testing.T) {
	hub := NewHub()
	connA, connB := &fakeConn{}, &fakeConn{}
	a, b := NewClient(1, connA), NewClient(2, connB)
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, ChatRoom(3))
	hub.Join(b, ChatRoom(3))

	hub.BroadcastTyping(3, "alice", a)
	hub.BroadcastTypingStopped(3, a)

	require.Empty(t, connA.events())
	require.Equal(t, []string{EventTypingDisplay, EventTypingHide}, connB.events())

	var typing TypingPayload
	require.NoError(t, json.Unmarshal(connB.frames[0].Data, &typing))
	require.Equal(t, "alice", typing.Username)
}

func TestBroadcastMessageReadCarriesReadAt(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	client := NewClient(2, conn)
	hub.Register(client)
	hub.Join(client, ChatRoom(4))

	readAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.BroadcastMessageRead(4, 17, readAt)

	require.Equal(t, []string{EventMessageRead}, conn.events())
	var payload ReadPayload
	require.NoError(t, json.Unmarshal(conn.frames[0].Data, &payload))
	require.Equal(t, 17, payload.MessageID)
	require.True(t, payload.ReadAt.Equal(readAt))
}

func TestBroadcastEvictsFailedConnection(t *testing.T) {
	hub := NewHub()
	healthy, broken := &fakeConn{}, &fakeConn{failWrites: true}
	a, b := NewClient(1, healthy), NewClient(2, broken)
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, ChatRoom(1))
	hub.Join(b, ChatRoom(1))

	hub.BroadcastMessage(1, models.Message{ID: 1, ChatID: 1})

	require.Equal(t, []string{EventMessageReceive}, healthy.events())
	require.True(t, broken.isClosed())
	require.Equal(t, 1, hub.RoomSize(ChatRoom(1)), "failed connection leaves the room")
	require.Equal(t, 1, hub.SessionCount(2), "presence bookkeeping is left to the read loop")
}

func TestSendToAddressesLatestConnection(t *testing.T) {
	hub := NewHub()
	oldConn, newConn := &fakeConn{}, &fakeConn{}
	hub.Register(NewClient(5, oldConn))
	hub.Register(NewClient(5, newConn))

	require.True(t, hub.SendTo(5, EventMessageRead, ReadPayload{MessageID: 1}))
	require.Empty(t, oldConn.events())
	require.Equal(t, []string{EventMessageRead}, newConn.events())

	require.False(t, hub.SendTo(99, EventMessageRead, nil))
}

func TestRelayMessageExcludesOriginConnection(t *testing.T) {
	hub := NewHub()
	connA, connB := &fakeConn{}, &fakeConn{}
	a, b := NewClient(1, connA), NewClient(2, connB)
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, ChatRoom(2))
	hub.Join(b, ChatRoom(2))

	raw := json.RawMessage(`{"id":7,"content":"hello"}`)
	hub.RelayMessage(2, raw, a)

	require.Empty(t, connA.events())
	require.Equal(t, []string{EventMessageReceive}, connB.events())
}
