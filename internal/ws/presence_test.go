package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
)

func newTestCoordinator(t *testing.T) (*PresenceCoordinator, *Hub, *mocks.UserRepositoryMock) {
	t.Helper()
	hub := NewHub()
	users := new(mocks.UserRepositoryMock)
	return NewPresenceCoordinator(hub, users, nil), hub, users
}

func countEvents(conn *fakeConn, event string) int {
	n := 0
	for _, name := range conn.events() {
		if name == event {
			n++
		}
	}
	return n
}

func TestConnectedPersistsThenBroadcastsOnline(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()

	observerConn := &fakeConn{}
	observer := NewClient(2, observerConn)
	hub.Register(observer)

	selfConn := &fakeConn{}
	client := NewClient(1, selfConn)
	coordinator.Connected(context.Background(), client)

	require.Equal(t, 1, countEvents(observerConn, EventUserOnline))
	require.Zero(t, countEvents(selfConn, EventUserOnline), "the connecting user is not notified about itself")
	require.Equal(t, 1, hub.RoomSize(UserRoom(1)), "handshake joins the personal room")
	users.AssertExpectations(t)
}

func TestConnectedSkipsBroadcastWhenPersistFails(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(errors.New("db down")).Once()

	observerConn := &fakeConn{}
	hub.Register(NewClient(2, observerConn))

	coordinator.Connected(context.Background(), NewClient(1, &fakeConn{}))

	require.Zero(t, countEvents(observerConn, EventUserOnline), "no broadcast without durable state")
	users.AssertExpectations(t)
}

func TestSecondConnectionDoesNotRepeatOnlineTransition(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()

	observerConn := &fakeConn{}
	hub.Register(NewClient(2, observerConn))

	coordinator.Connected(context.Background(), NewClient(1, &fakeConn{}))
	coordinator.Connected(context.Background(), NewClient(1, &fakeConn{}))

	require.Equal(t, 1, countEvents(observerConn, EventUserOnline))
	users.AssertNumberOfCalls(t, "SetOnline", 1)
}

func TestDisconnectLastConnectionBroadcastsOfflineOnce(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()
	users.On("SetOnline", mock.Anything, 1, false, mock.Anything).Return(nil).Once()

	observerConn := &fakeConn{}
	hub.Register(NewClient(2, observerConn))

	client := NewClient(1, &fakeConn{})
	coordinator.Connected(context.Background(), client)
	coordinator.Disconnected(context.Background(), client)

	require.Equal(t, 1, countEvents(observerConn, EventUserOffline))
	require.Equal(t, 0, hub.SessionCount(1))
	require.Equal(t, 0, hub.RoomSize(UserRoom(1)))
	users.AssertExpectations(t)
}

func TestDisconnectWithRemainingConnectionStaysOnline(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()

	observerConn := &fakeConn{}
	hub.Register(NewClient(2, observerConn))

	phone := NewClient(1, &fakeConn{})
	laptop := NewClient(1, &fakeConn{})
	coordinator.Connected(context.Background(), phone)
	coordinator.Connected(context.Background(), laptop)

	coordinator.Disconnected(context.Background(), phone)

	require.Zero(t, countEvents(observerConn, EventUserOffline), "user is still reachable via the other connection")
	require.Equal(t, 1, hub.SessionCount(1))
	users.AssertNumberOfCalls(t, "SetOnline", 1)
}

func TestDisconnectCleansRoomsBeforeOfflineBroadcast(t *testing.T) {
	coordinator, hub, users := newTestCoordinator(t)
	users.On("SetOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	selfConn := &fakeConn{}
	client := NewClient(1, selfConn)
	coordinator.Connected(context.Background(), client)
	hub.Join(client, ChatRoom(3))

	coordinator.Disconnected(context.Background(), client)

	require.Equal(t, 0, hub.RoomSize(ChatRoom(3)))
	require.Zero(t, countEvents(selfConn, EventUserOffline), "the departed handle receives nothing")
}
