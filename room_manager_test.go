package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchmakingFillsLowestWaitingRoom(t *testing.T) {
	srv := testServer(1)

	r1, s1 := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, r1)
	assert.Equal(t, 1, r1.ID)
	assert.Equal(t, 1, s1)
	r1.ConnectPlayer(s1, &fakeConn{})

	r2, s2 := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, r2)
	assert.Equal(t, r1.ID, r2.ID, "second joiner pairs into the waiting room")
	assert.Equal(t, 2, s2)
	r2.ConnectPlayer(s2, &fakeConn{})

	r3, s3 := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, r3)
	assert.Equal(t, 2, r3.ID)
	assert.Equal(t, 1, s3)
}

func TestCreateRoomReusesEmptyIDs(t *testing.T) {
	srv := testServer(1)

	a := srv.rooms.CreateRoom()
	require.NotNil(t, a)
	a.ConnectPlayer(1, &fakeConn{})
	b := srv.rooms.CreateRoom()
	require.NotNil(t, b)
	assert.Equal(t, 2, b.ID)

	// Room 2 stays empty, so the next allocation lands there again.
	c := srv.rooms.CreateRoom()
	require.NotNil(t, c)
	assert.Equal(t, 2, c.ID)
}

func TestCreateRoomCapsAtMaxRooms(t *testing.T) {
	srv := testServer(1)
	for i := 0; i < MaxRooms; i++ {
		room := srv.rooms.CreateRoom()
		require.NotNil(t, room)
		room.ConnectPlayer(1, &fakeConn{})
	}
	assert.Nil(t, srv.rooms.CreateRoom())
	full, slot := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, full, "occupied rooms still have a second slot free")
	assert.Equal(t, 2, slot)
}

func TestCleanupEmptyRooms(t *testing.T) {
	srv := testServer(1)
	kept := srv.rooms.CreateRoom()
	kept.ConnectPlayer(1, &fakeConn{})
	srv.rooms.CreateRoom()

	srv.rooms.CleanupEmptyRooms()

	assert.NotNil(t, srv.rooms.Room(kept.ID))
	assert.Nil(t, srv.rooms.Room(2))
}

func TestClearAllRoomsPoolsObservers(t *testing.T) {
	srv := testServer(1)
	room := srv.rooms.CreateRoom()
	obs := &fakeConn{}
	room.ConnectObserver(obs)

	srv.rooms.ClearAllRooms()

	assert.Nil(t, srv.rooms.Room(room.ID))
	srv.rooms.mu.Lock()
	pooled := len(srv.rooms.lobbyObservers)
	srv.rooms.mu.Unlock()
	assert.Equal(t, 1, pooled)
}

func TestBroadcastRoomListSeatsLobbyObservers(t *testing.T) {
	srv := testServer(1)
	obs := &fakeConn{}
	srv.rooms.AddLobbyObserver(obs)

	room := srv.rooms.CreateRoom()
	room.mu.Lock()
	room.game.Running = true
	room.mu.Unlock()

	srv.rooms.BroadcastRoomList()

	room.mu.Lock()
	seated := len(room.observers)
	room.mu.Unlock()
	assert.Equal(t, 1, seated)

	var got bool
	for _, m := range obs.sent() {
		if rl, ok := m.(RoomListMessage); ok {
			got = true
			require.Len(t, rl.Rooms, 1)
			assert.Equal(t, room.ID, rl.Rooms[0].RoomID)
		}
	}
	assert.True(t, got, "observer should receive a room_list")
}

func TestStatusReflectsConfigurationAndRooms(t *testing.T) {
	srv := testServer(3)
	room := srv.rooms.CreateRoom()
	room.ConnectPlayer(1, &fakeConn{})

	status := srv.rooms.Status()

	assert.Equal(t, ServerVersion, status.Version)
	assert.Equal(t, 3, status.Arenas)
	assert.Equal(t, 6, status.MaxPlayers)
	assert.Equal(t, 1, status.TotalPlayers)
	assert.Equal(t, 5, status.OpenSlots)
	assert.Equal(t, "waiting_for_players", status.CompetitionState)
	assert.Equal(t, []string{"apple"}, status.Fruits)
	require.Len(t, status.Rooms, 1)
	assert.Equal(t, []int{1}, status.Rooms[0].Players)
	assert.True(t, status.Rooms[0].WaitingForPlayer)
}

func TestTotalCountsSpanRooms(t *testing.T) {
	srv := testServer(2)
	a := srv.rooms.CreateRoom()
	a.ConnectPlayer(1, &fakeConn{})
	a.ConnectPlayer(2, &fakeConn{})
	b := srv.rooms.CreateRoom()
	b.ConnectPlayer(1, &fakeConn{})

	assert.Equal(t, 3, srv.rooms.TotalPlayers())
	assert.Equal(t, 0, srv.rooms.TotalReady())

	a.HandleMessage(1, ClientMessage{Action: ActionReady, Name: "Alice"})
	assert.Equal(t, 1, srv.rooms.TotalReady())
}
