package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyInWaitingLobbyDoesNotStartGame(t *testing.T) {
	srv := testServer(2) // four players required
	room, slot := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, room)
	require.Equal(t, 1, slot)
	c1, c2 := &fakeConn{}, &fakeConn{}
	room.ConnectPlayer(1, c1)
	room.ConnectPlayer(2, c2)

	room.HandleMessage(1, ClientMessage{Action: ActionReady, Name: "Alice"})
	room.HandleMessage(2, ClientMessage{Action: ActionReady, Name: "Bob"})

	room.mu.Lock()
	running := room.game.Running
	room.mu.Unlock()
	assert.False(t, running)
	assert.Equal(t, StateWaitingForPlayers, srv.comp.State())
	assert.GreaterOrEqual(t, c1.countType(MsgWaiting), 1)
}

func TestLastReadyRoomStartsWholeCompetition(t *testing.T) {
	shortPauses(t)
	srv := testServer(1) // one arena, two players
	room, _ := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, room)
	c1, c2 := &fakeConn{}, &fakeConn{}
	room.SetPlayerUID(1, "player_1_1_aaaa")
	room.SetPlayerUID(2, "player_1_2_bbbb")
	room.ConnectPlayer(1, c1)
	room.ConnectPlayer(2, c2)

	room.HandleMessage(1, ClientMessage{Action: ActionReady, Name: "Alice"})
	room.HandleMessage(2, ClientMessage{Action: ActionReady, Name: "Bob"})

	assert.Equal(t, StateInProgress, srv.comp.State())
	require.Eventually(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return room.game.Running
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, c1.countType(MsgStart), 1)
}

func TestMoveQueuesOnlyWhileRunning(t *testing.T) {
	srv := testServer(1)
	room, _ := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, room)
	room.ConnectPlayer(1, &fakeConn{})

	room.HandleMessage(1, ClientMessage{Action: ActionMove, Direction: "up"})
	room.mu.Lock()
	queued := len(room.game.Snakes[1].queue)
	room.mu.Unlock()
	assert.Zero(t, queued, "moves before the game starts are dropped")

	room.mu.Lock()
	room.game.Running = true
	room.mu.Unlock()
	room.HandleMessage(1, ClientMessage{Action: ActionMove, Direction: "up"})
	room.HandleMessage(1, ClientMessage{Action: ActionMove, Direction: "sideways"})
	room.mu.Lock()
	queued = len(room.game.Snakes[1].queue)
	room.mu.Unlock()
	assert.Equal(t, 1, queued)
}

func TestForfeitAwardsFullPoints(t *testing.T) {
	shortPauses(t)
	srv := testServer(1)
	c1, c2 := &fakeConn{}, &fakeConn{}
	p1 := srv.comp.Register("Alice", c1)
	p2 := srv.comp.Register("Bob", c2)
	require.Equal(t, StateInProgress, srv.comp.State())

	room, slot1 := srv.comp.PlayerRoom(p1.UID)
	require.NotNil(t, room)

	room.DisconnectPlayer(slot1)

	var mc MatchCompleteMessage
	found := false
	for _, m := range c2.sent() {
		if msg, ok := m.(MatchCompleteMessage); ok {
			mc, found = msg, true
		}
	}
	require.True(t, found, "remaining player should get match_complete")
	assert.True(t, mc.Forfeit)
	assert.Equal(t, "Bob", mc.Winner.Name)
	assert.Equal(t, 5, mc.FinalScore[mc.Winner.PlayerID])

	// The forfeit is reported off the disconnect path; with one arena it
	// decides the whole competition.
	require.Eventually(t, func() bool {
		return srv.comp.State() == StateComplete
	}, time.Second, 5*time.Millisecond)
	status := srv.comp.Status()
	require.NotNil(t, status.Champion)
	assert.Equal(t, p2.Name, *status.Champion)
}

func TestDisconnectWithoutGameIsNotForfeit(t *testing.T) {
	srv := testServer(1)
	room, _ := srv.rooms.FindOrCreateRoom()
	require.NotNil(t, room)
	c1, c2 := &fakeConn{}, &fakeConn{}
	room.ConnectPlayer(1, c1)
	room.ConnectPlayer(2, c2)

	room.DisconnectPlayer(1)

	assert.Zero(t, c2.countType(MsgMatchComplete))
	assert.Equal(t, 1, room.PlayerCount())
	room.mu.Lock()
	wins := room.wins[2]
	room.mu.Unlock()
	assert.Zero(t, wins)
}

func TestMatchCompleteReportedOnce(t *testing.T) {
	shortPauses(t)
	srv := testServer(1)
	c1, c2 := &fakeConn{}, &fakeConn{}
	p1 := srv.comp.Register("Alice", c1)
	p2 := srv.comp.Register("Bob", c2)
	require.NotNil(t, p1)
	require.NotNil(t, p2)

	room, slot1 := srv.comp.PlayerRoom(p1.UID)
	require.NotNil(t, room)
	room.mu.Lock()
	room.wins[slot1] = srv.Config().PointsToWin
	room.mu.Unlock()

	room.handleMatchComplete(slot1)
	room.handleMatchComplete(slot1)

	assert.Equal(t, 1, c2.countType(MsgMatchComplete))
	assert.Equal(t, StateComplete, srv.comp.State())
}

func TestBroadcastPrunesDeadObservers(t *testing.T) {
	srv := testServer(1)
	room := srv.rooms.CreateRoom()
	require.NotNil(t, room)
	good, dead := &fakeConn{}, &fakeConn{}
	room.ConnectObserver(good)
	room.ConnectObserver(dead)
	dead.setFail()

	room.broadcastState()

	room.mu.Lock()
	n := len(room.observers)
	room.mu.Unlock()
	assert.Equal(t, 1, n)
	assert.NotEmpty(t, good.sent())
}

func TestObserverJoinGetsSnapshot(t *testing.T) {
	srv := testServer(1)
	room := srv.rooms.CreateRoom()
	require.NotNil(t, room)
	obs := &fakeConn{}

	room.ConnectObserver(obs)

	msgs := obs.sent()
	require.Len(t, msgs, 1)
	oj, ok := msgs[0].(ObserverJoinedMessage)
	require.True(t, ok)
	assert.Equal(t, MsgObserverJoined, oj.Type)
	assert.Equal(t, room.ID, oj.RoomID)
	assert.Len(t, oj.Game.Snakes, 2)
}

func TestSummaryCarriesNamesAndWins(t *testing.T) {
	srv := testServer(1)
	room := srv.rooms.CreateRoom()
	require.NotNil(t, room)
	room.mu.Lock()
	room.names[1] = "Alice"
	room.wins[1] = 3
	room.mu.Unlock()

	sum := room.Summary()
	assert.Equal(t, room.ID, sum.RoomID)
	assert.Equal(t, "Alice", sum.Names[1])
	assert.Equal(t, 3, sum.Wins[1])
	assert.False(t, sum.MatchComplete)
}
