package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	expmaps "golang.org/x/exp/maps"
)

// Pause lengths between games and the ready-poll cadence. Package vars so
// tests can shrink them.
var (
	interGamePause    = 3 * time.Second
	readyPollInterval = 100 * time.Millisecond
)

// Tick-task states. A room runs at most one tick loop at any time; the
// transitions are guarded by compare-and-swap.
const (
	taskIdle int32 = iota
	taskRunning
	taskDone
)

// Room hosts one match: a game, one connection per player slot, and any
// number of observers. All state behind mu; sends happen outside it.
type Room struct {
	ID  int
	srv *Server

	mu            sync.Mutex
	game          *Game
	conns         map[int]Sender
	observers     []Sender
	ready         map[int]bool
	wins          map[int]int
	names         map[int]string
	playerUIDs    map[int]string
	matchReported bool
	matchComplete bool
	cancel        context.CancelFunc

	task atomic.Int32
}

// NewRoom creates an idle room.
func NewRoom(id int, srv *Server) *Room {
	return &Room{
		ID:         id,
		srv:        srv,
		game:       NewGame(srv.Config()),
		conns:      make(map[int]Sender),
		ready:      make(map[int]bool),
		wins:       map[int]int{1: 0, 2: 0},
		names:      map[int]string{1: "Player 1", 2: "Player 2"},
		playerUIDs: make(map[int]string),
	}
}

// IsEmpty reports whether no player is connected.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) == 0
}

// IsWaitingForPlayer reports whether the room has exactly one player and
// no running game.
func (r *Room) IsWaitingForPlayer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) == 1 && !r.game.Running
}

// IsActive reports whether a game is running or the room's match already
// finished this round.
func (r *Room) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game.Running || r.matchComplete
}

// AvailableSlot returns the lowest free player slot, or 0 when full.
func (r *Room) AvailableSlot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableSlotLocked()
}

func (r *Room) availableSlotLocked() int {
	if _, ok := r.conns[1]; !ok {
		return 1
	}
	if _, ok := r.conns[2]; !ok {
		return 2
	}
	return 0
}

// ReadyCount returns how many slots have signaled ready.
func (r *Room) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready)
}

// PlayerCount returns the number of connected players.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// SetPlayerUID binds a competition uid to a slot.
func (r *Room) SetPlayerUID(slot int, uid string) {
	r.mu.Lock()
	r.playerUIDs[slot] = uid
	r.mu.Unlock()
}

// Summary builds the room's row for room_list frames.
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{
		RoomID:        r.ID,
		Names:         maps.Clone(r.names),
		Wins:          maps.Clone(r.wins),
		MatchComplete: r.matchComplete,
	}
}

// ConnectPlayer attaches a casual player to a slot and pushes the current
// state to everyone in the room.
func (r *Room) ConnectPlayer(slot int, conn Sender) {
	r.mu.Lock()
	r.conns[slot] = conn
	n := len(r.conns)
	r.mu.Unlock()
	log.Info("player connected", "room", r.ID, "player", slot, "players", n)
	r.broadcastState()
}

// ConnectObserver attaches a read-only subscriber and sends it a full
// snapshot.
func (r *Room) ConnectObserver(conn Sender) {
	r.mu.Lock()
	r.observers = append(r.observers, conn)
	n := len(r.observers)
	msg := ObserverJoinedMessage{
		Type:   MsgObserverJoined,
		RoomID: r.ID,
		Game:   r.game.Snapshot(),
		Wins:   maps.Clone(r.wins),
		Names:  maps.Clone(r.names),
	}
	r.mu.Unlock()
	log.Info("observer connected", "room", r.ID, "observers", n)
	_ = conn.Send(msg)
}

// DisconnectObserver detaches an observer.
func (r *Room) DisconnectObserver(conn Sender) {
	r.mu.Lock()
	r.removeObserverLocked(conn)
	n := len(r.observers)
	r.mu.Unlock()
	log.Info("observer disconnected", "room", r.ID, "observers", n)
}

func (r *Room) removeObserverLocked(conn Sender) {
	for i, o := range r.observers {
		if o == conn {
			r.observers = slices.Delete(r.observers, i, i+1)
			return
		}
	}
}

// ConnectCompetitionPlayer seats a bracket player in their assigned slot.
// Competition players are implicitly ready; the game starts once both
// seats are taken.
func (r *Room) ConnectCompetitionPlayer(slot int, p *PlayerInfo) {
	cfg := r.srv.Config()
	r.mu.Lock()
	r.conns[slot] = p.Conn
	r.names[slot] = p.Name
	r.ready[slot] = true
	opponent := "Opponent"
	if name, ok := r.names[3-slot]; ok && 3-slot != slot {
		opponent = name
	}
	readyCount := len(r.ready)
	running := r.game.Running
	r.mu.Unlock()

	err := p.Conn.Send(MatchAssignedMessage{
		Type:        MsgMatchAssigned,
		RoomID:      r.ID,
		PlayerID:    slot,
		Opponent:    opponent,
		PointsToWin: cfg.PointsToWin,
	})
	if err != nil {
		log.Error("match assignment failed", "room", r.ID, "player", p.Name, "err", err)
	}
	log.Info("arena seat filled", "room", r.ID, "player", p.Name, "slot", slot, "ready", readyCount)

	if readyCount >= 2 && !running {
		r.StartGame()
	}
}

// ReadyUp records a ready signal from a competition player and starts the
// next game when both are ready.
func (r *Room) ReadyUp(slot int) {
	r.mu.Lock()
	r.ready[slot] = true
	readyCount := len(r.ready)
	running := r.game.Running
	r.mu.Unlock()
	if readyCount >= 2 && !running {
		r.StartGame()
	}
}

// HandleMessage dispatches a player frame. Unknown actions are ignored.
func (r *Room) HandleMessage(slot int, msg ClientMessage) {
	switch msg.Action {
	case ActionMove:
		dir, ok := ParseDirection(msg.Direction)
		if !ok {
			return
		}
		r.mu.Lock()
		if r.game.Running {
			if s, exists := r.game.Snakes[slot]; exists {
				s.QueueDirection(dir)
			}
		}
		r.mu.Unlock()

	case ActionReady:
		r.handleReady(slot, msg.Name)
	}
}

func (r *Room) handleReady(slot int, name string) {
	if name == "" {
		name = fmt.Sprintf("Player %d", slot)
	}
	r.mu.Lock()
	r.names[slot] = name
	r.ready[slot] = true
	readyCount := len(r.ready)
	running := r.game.Running
	conn := r.conns[slot]
	allConns := expmaps.Values(r.conns)
	r.mu.Unlock()

	log.Info("player ready", "room", r.ID, "player", name, "ready", readyCount)

	taskActive := r.task.Load() == taskRunning
	if readyCount >= 2 && !running && !taskActive {
		if r.srv.comp.State() == StateInProgress {
			r.StartGame()
			return
		}
		// Waiting lobby: games only start when the whole competition
		// fills, so count ready players across every room.
		cfg := r.srv.Config()
		totalReady := r.srv.rooms.TotalReady()
		if totalReady >= cfg.RequiredPlayers() {
			r.srv.comp.StartFromRooms()
			return
		}
		msg := WaitingMessage{
			Type:    MsgWaiting,
			Message: fmt.Sprintf("Waiting for competition to start (%d/%d players)", totalReady, cfg.RequiredPlayers()),
		}
		for _, c := range allConns {
			_ = c.Send(msg)
		}
		return
	}
	if readyCount < 2 && conn != nil {
		_ = conn.Send(WaitingMessage{Type: MsgWaiting, Message: "Waiting for Player 2..."})
	}
}

// DisconnectPlayer detaches a slot. While the competition is in progress
// (or a game was running) a still-connected opponent wins by forfeit.
// This holds during the pre-game pause too, so an opponent that
// crashes between games still forfeits.
func (r *Room) DisconnectPlayer(slot int) {
	cfg := r.srv.Config()
	compActive := r.srv.comp.State() == StateInProgress

	r.mu.Lock()
	wasRunning := r.game.Running
	opp := 3 - slot
	_, oppConnected := r.conns[opp]
	delete(r.conns, slot)
	delete(r.ready, slot)

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
		log.Info("game stopped, player disconnected", "room", r.ID, "player", slot)
	}

	forfeit := (wasRunning || compActive) && oppConnected && !r.matchReported
	var (
		msg          MatchCompleteMessage
		winnerUID    string
		p1UID, p2UID string
		w1, w2       int
	)
	if forfeit {
		r.matchReported = true
		r.matchComplete = true
		r.wins[opp] = cfg.PointsToWin
		msg = MatchCompleteMessage{
			Type:        MsgMatchComplete,
			Winner:      MatchWinner{PlayerID: opp, Name: r.names[opp]},
			FinalScore:  maps.Clone(r.wins),
			RoomID:      r.ID,
			PointsToWin: cfg.PointsToWin,
			Forfeit:     true,
		}
		winnerUID = r.playerUIDs[opp]
		p1UID, p2UID = r.playerUIDs[1], r.playerUIDs[2]
		w1, w2 = r.wins[1], r.wins[2]
	}

	// Keep a finished match's final score; otherwise reset for reuse.
	if !r.matchComplete {
		r.game = NewGame(cfg)
		r.wins = map[int]int{1: 0, 2: 0}
		r.names = map[int]string{1: "Player 1", 2: "Player 2"}
	}
	remaining := len(r.conns)
	r.mu.Unlock()

	if forfeit {
		log.Info("match won by forfeit", "room", r.ID, "winner", msg.Winner.Name)
		r.broadcast(msg)
		if winnerUID != "" && p1UID != "" && p2UID != "" {
			// Reported on a fresh goroutine: a failed send while the
			// bracket lock is held funnels through here, and reporting
			// inline would re-enter that lock.
			go r.srv.comp.ReportMatchComplete(winnerUID, p1UID, p2UID, w1, w2)
		}
	}
	log.Info("player disconnected", "room", r.ID, "player", slot, "players", remaining)
}

// CancelTask stops the tick loop, if any. Used by the room manager when
// tearing rooms down between rounds.
func (r *Room) CancelTask() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

// DrainObservers detaches and returns all observers so they can be moved
// to the lobby pool between rounds.
func (r *Room) DrainObservers() []Sender {
	r.mu.Lock()
	obs := r.observers
	r.observers = nil
	r.mu.Unlock()
	return obs
}

// StartGame begins a fresh game and its tick loop. Duplicate starts are
// rejected: one tick loop per room, never after the match completed.
func (r *Room) StartGame() {
	cfg := r.srv.Config()
	r.mu.Lock()
	if r.game.Running || r.matchComplete || r.matchWinnerLocked(cfg.PointsToWin) != 0 {
		r.mu.Unlock()
		log.Warn("start rejected", "room", r.ID)
		return
	}
	if !r.task.CompareAndSwap(taskIdle, taskRunning) {
		r.mu.Unlock()
		log.Warn("start rejected, tick loop already live", "room", r.ID)
		return
	}
	r.game = NewGame(cfg)
	r.game.Running = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	log.Info("game started", "room", r.ID)
	r.broadcast(StartMessage{Type: MsgStart, Mode: "two_player", RoomID: r.ID})
	go r.runLoop(ctx)

	r.srv.rooms.BroadcastRoomList()
	if r.srv.comp.State() == StateWaitingForPlayers {
		if r.srv.rooms.TotalReady() >= cfg.RequiredPlayers() {
			r.srv.comp.StartFromRooms()
		}
	}
}

// runLoop drives the match: tick the game, broadcast state, and between
// games pause and wait for fresh ready signals. It exits when the match
// completes or the context is cancelled.
func (r *Room) runLoop(ctx context.Context) {
	cfg := r.srv.Config()
	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.task.Store(taskIdle)
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		r.game.Step()
		stateMsg := StateMessage{
			Type:   MsgState,
			Game:   r.game.Snapshot(),
			Wins:   maps.Clone(r.wins),
			Names:  maps.Clone(r.names),
			RoomID: r.ID,
		}
		finished := !r.game.Running
		var winner, matchWinner int
		var overMsg GameOverMessage
		if finished {
			winner = r.game.Winner
			if winner != 0 {
				r.wins[winner]++
			}
			matchWinner = r.matchWinnerLocked(cfg.PointsToWin)
			var winnerPtr *int
			if winner != 0 {
				w := winner
				winnerPtr = &w
			}
			overMsg = GameOverMessage{
				Type:        MsgGameOver,
				Winner:      winnerPtr,
				Wins:        maps.Clone(r.wins),
				Names:       maps.Clone(r.names),
				RoomID:      r.ID,
				PointsToWin: cfg.PointsToWin,
			}
		}
		r.mu.Unlock()

		r.broadcast(stateMsg)
		if !finished {
			continue
		}

		if winner != 0 {
			log.Info("game over", "room", r.ID, "winner", overMsg.Names[winner])
		} else {
			log.Info("game over, draw", "room", r.ID)
		}
		r.broadcast(overMsg)

		if matchWinner != 0 {
			// Drop the task handle before reporting so the round
			// teardown cannot cancel this call chain.
			r.mu.Lock()
			r.cancel = nil
			r.mu.Unlock()
			r.task.Store(taskDone)
			r.handleMatchComplete(matchWinner)
			r.srv.rooms.BroadcastRoomList()
			return
		}

		// Same match, next game: require a fresh ready from both players.
		r.mu.Lock()
		r.ready = make(map[int]bool)
		r.mu.Unlock()
		if !sleepCtx(ctx, interGamePause) {
			r.task.Store(taskIdle)
			return
		}
		log.Info("waiting for players to ready up", "room", r.ID)
		if !r.waitForReady(ctx) {
			r.task.Store(taskIdle)
			return
		}

		r.mu.Lock()
		if r.matchComplete || r.matchWinnerLocked(cfg.PointsToWin) != 0 {
			r.mu.Unlock()
			r.task.Store(taskIdle)
			return
		}
		r.game = NewGame(cfg)
		r.game.Running = true
		nextMsg := StartMessage{
			Type:        MsgStart,
			Mode:        "competition",
			RoomID:      r.ID,
			Wins:        maps.Clone(r.wins),
			PointsToWin: cfg.PointsToWin,
		}
		score := fmt.Sprintf("%d-%d", r.wins[1], r.wins[2])
		r.mu.Unlock()

		r.broadcast(nextMsg)
		log.Info("next game started", "room", r.ID, "score", score)
	}
}

// waitForReady blocks until both players signal ready. Returns false if
// the loop should stop instead: cancellation, a disconnect, or the match
// completing while waiting.
func (r *Room) waitForReady(ctx context.Context) bool {
	for {
		r.mu.Lock()
		readyCount := len(r.ready)
		connCount := len(r.conns)
		complete := r.matchComplete
		r.mu.Unlock()

		if complete || connCount < 2 {
			return false
		}
		if readyCount >= 2 {
			return true
		}
		if !sleepCtx(ctx, readyPollInterval) {
			return false
		}
	}
}

func (r *Room) matchWinnerLocked(pointsToWin int) int {
	for slot, wins := range r.wins {
		if wins >= pointsToWin {
			return slot
		}
	}
	return 0
}

// handleMatchComplete reports a finished match exactly once.
func (r *Room) handleMatchComplete(winnerSlot int) {
	r.mu.Lock()
	if r.matchReported {
		r.mu.Unlock()
		log.Warn("match already reported", "room", r.ID)
		return
	}
	r.matchReported = true
	r.matchComplete = true
	winnerUID := r.playerUIDs[winnerSlot]
	p1UID, p2UID := r.playerUIDs[1], r.playerUIDs[2]
	w1, w2 := r.wins[1], r.wins[2]
	msg := MatchCompleteMessage{
		Type:         MsgMatchComplete,
		Winner:       MatchWinner{PlayerID: winnerSlot, Name: r.names[winnerSlot]},
		FinalScore:   maps.Clone(r.wins),
		RoomID:       r.ID,
		CurrentRound: r.srv.comp.Round(),
		TotalRounds:  r.srv.comp.TotalRounds(),
	}
	r.mu.Unlock()

	// Remaining count excludes this match, which has not been recorded yet.
	remaining := r.srv.comp.RemainingMatches() - 1
	msg.RemainingMatches = &remaining

	log.Info("match complete", "room", r.ID, "winner", msg.Winner.Name, "score", fmt.Sprintf("%d-%d", w1, w2))
	r.broadcast(msg)

	if winnerUID == "" || p1UID == "" || p2UID == "" {
		log.Error("match finished without competition uids", "room", r.ID)
		return
	}
	r.srv.comp.ReportMatchComplete(winnerUID, p1UID, p2UID, w1, w2)
}

// broadcastState fans the current snapshot out to players and observers.
func (r *Room) broadcastState() {
	r.mu.Lock()
	msg := StateMessage{
		Type:   MsgState,
		Game:   r.game.Snapshot(),
		Wins:   maps.Clone(r.wins),
		Names:  maps.Clone(r.names),
		RoomID: r.ID,
	}
	r.mu.Unlock()
	r.broadcast(msg)
}

// broadcast sends msg to every player and observer. Observers that fail
// are pruned; players that fail are disconnected (with forfeit handling)
// unless the match already completed.
func (r *Room) broadcast(msg any) {
	r.mu.Lock()
	players := maps.Clone(r.conns)
	obs := slices.Clone(r.observers)
	r.mu.Unlock()

	var failed []int
	for slot, c := range players {
		if err := c.Send(msg); err != nil {
			log.Warn("send to player failed", "room", r.ID, "player", slot, "err", err)
			failed = append(failed, slot)
		}
	}
	for _, o := range obs {
		if o.Send(msg) != nil {
			r.mu.Lock()
			r.removeObserverLocked(o)
			r.mu.Unlock()
		}
	}

	for _, slot := range failed {
		r.mu.Lock()
		complete := r.matchComplete
		r.mu.Unlock()
		if !complete {
			r.DisconnectPlayer(slot)
		}
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
