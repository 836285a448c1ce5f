package main

import (
	"math/bits"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// CompetitionState is the bracket lifecycle stage.
type CompetitionState int32

const (
	StateWaitingForPlayers CompetitionState = iota
	StateInProgress
	StateComplete
	StateResetting
)

func (s CompetitionState) String() string {
	switch s {
	case StateWaitingForPlayers:
		return "waiting_for_players"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	case StateResetting:
		return "resetting"
	}
	return "unknown"
}

// Pauses around round transitions. Package vars so tests can shrink them.
var (
	interRoundPause = 5 * time.Second
	botSpawnDelay   = time.Second
)

// PlayerInfo tracks one registrant across the whole competition. The uid
// is stable; the (room, slot) assignment changes between rounds and is
// held by arena id, resolved through the room manager on use.
type PlayerInfo struct {
	UID   string
	Name  string
	Conn  Sender
	IsBot bool

	MatchWins      int
	GamePoints     int
	OpponentPoints int
	Eliminated     bool
	RoomID         int
	PlayerID       int
	LastMatchFinish time.Time
}

// MatchResult records one decided match. A Bye is a self-pairing with
// zero points.
type MatchResult struct {
	P1UID     string
	P2UID     string
	WinnerUID string
	P1Points  int
	P2Points  int
}

type pairing struct {
	P1, P2 string
}

// ChampionshipRecord is one completed competition.
type ChampionshipRecord struct {
	Champion  string `json:"champion"`
	Players   int    `json:"players"`
	Timestamp string `json:"timestamp"`
}

// Championship history survives competition resets for the lifetime of
// the process.
var (
	historyMu           sync.Mutex
	championshipHistory []ChampionshipRecord
)

func recordChampionship(rec ChampionshipRecord) {
	historyMu.Lock()
	championshipHistory = append(championshipHistory, rec)
	historyMu.Unlock()
}

// ChampionshipHistory returns a copy of all recorded championships.
func ChampionshipHistory() []ChampionshipRecord {
	historyMu.Lock()
	defer historyMu.Unlock()
	out := make([]ChampionshipRecord, len(championshipHistory))
	copy(out, championshipHistory)
	return out
}

// Competition runs the single-elimination bracket: registration, round
// pairing with Bye handling, match recording, and the reset cycle.
// All mutating operations hold mu; state, round and the bye name are
// mirrored into lock-free fields for hot-path reads.
type Competition struct {
	srv *Server

	mu       sync.Mutex
	players  map[string]*PlayerInfo
	rounds   [][]pairing
	results  [][]MatchResult
	champion string
	byeUID   string
	resetAt  time.Time
	nextUID  int

	stateVal atomic.Int32
	roundVal atomic.Int32
	byeName  atomic.Pointer[string]
}

// NewCompetition creates a competition in the waiting state.
func NewCompetition(srv *Server) *Competition {
	c := &Competition{
		srv:     srv,
		players: make(map[string]*PlayerInfo),
		nextUID: 1,
	}
	c.stateVal.Store(int32(StateWaitingForPlayers))
	return c
}

// State returns the current lifecycle stage without locking.
func (c *Competition) State() CompetitionState {
	return CompetitionState(c.stateVal.Load())
}

// Round returns the current round number (0 before the first round).
func (c *Competition) Round() int {
	return int(c.roundVal.Load())
}

// TotalRounds is the bracket depth for the configured player count.
func (c *Competition) TotalRounds() int {
	arenas := c.srv.Config().Arenas
	if arenas < 1 {
		return 1
	}
	// ceil(log2(2*arenas)), minimum one round.
	n := 2 * arenas
	r := bits.Len(uint(n - 1))
	if r < 1 {
		r = 1
	}
	return r
}

// ByePlayerName returns the current Bye holder's name, or nil.
func (c *Competition) ByePlayerName() *string {
	return c.byeName.Load()
}

func (c *Competition) setStateLocked(s CompetitionState) {
	c.stateVal.Store(int32(s))
}

func (c *Competition) setByeLocked(uid, name string) {
	c.byeUID = uid
	if uid == "" {
		c.byeName.Store(nil)
		return
	}
	c.byeName.Store(&name)
}

// StartWaiting resets the competition to a fresh lobby. Championship
// history is preserved; everything else is cleared. Configured bots are
// respawned shortly after so a new bracket can fill itself.
func (c *Competition) StartWaiting() {
	c.srv.rooms.ClearAllRooms()

	c.mu.Lock()
	c.setStateLocked(StateWaitingForPlayers)
	c.players = make(map[string]*PlayerInfo)
	c.roundVal.Store(0)
	c.rounds = nil
	c.results = nil
	c.champion = ""
	c.setByeLocked("", "")
	c.resetAt = time.Time{}
	c.nextUID = 1
	c.mu.Unlock()

	cfg := c.srv.Config()
	log.Info("competition waiting for players", "required", cfg.RequiredPlayers())

	if cfg.Bots > 0 {
		count := cfg.Bots
		time.AfterFunc(botSpawnDelay, func() {
			SpawnBots(c.srv, count)
		})
	}
}

// Register adds a player to the lobby. Returns nil when the competition
// is in progress or already full. Registration of the final player
// starts the competition.
func (c *Competition) Register(name string, conn Sender) *PlayerInfo {
	cfg := c.srv.Config()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateWaitingForPlayers {
		return nil
	}
	if len(c.players) >= cfg.RequiredPlayers() {
		return nil
	}

	uid := c.generateUIDLocked()
	p := &PlayerInfo{
		UID:   uid,
		Name:  name,
		Conn:  conn,
		IsBot: strings.HasPrefix(name, "CopperBot"),
	}
	c.players[uid] = p
	log.Info("player registered", "name", name, "uid", uid,
		"players", len(c.players), "required", cfg.RequiredPlayers())

	c.broadcastLobbyStatusLocked()
	if len(c.players) >= cfg.RequiredPlayers() {
		c.startLocked()
	}
	return p
}

func (c *Competition) generateUIDLocked() string {
	uid := "P" + strconv.Itoa(c.nextUID)
	c.nextUID++
	return uid
}

// Unregister removes a player. In the lobby they simply leave; mid
// competition they are eliminated, and a Bye holder's departure can be
// the event that completes the round.
func (c *Competition) Unregister(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.players[uid]
	if !ok {
		return
	}
	switch c.State() {
	case StateWaitingForPlayers:
		delete(c.players, uid)
		log.Info("player left lobby", "name", p.Name, "uid", uid, "players", len(c.players))
		c.broadcastLobbyStatusLocked()
	case StateInProgress:
		p.Eliminated = true
		log.Info("player disconnected mid-competition", "name", p.Name, "uid", uid)
		if c.byeUID == uid {
			log.Info("bye player disconnected, dropping bye", "name", p.Name)
			c.setByeLocked("", "")
			round := c.Round()
			if round > 0 {
				c.dropByeEntriesLocked(round, uid)
				if len(c.rounds[round-1]) > 0 && len(c.results[round-1]) >= len(c.rounds[round-1]) {
					c.advanceLocked()
				}
			}
		}
	}
}

// dropByeEntriesLocked removes a departed Bye holder's self-pairing and
// its pre-recorded result, so they cannot win a round they left.
func (c *Competition) dropByeEntriesLocked(round int, uid string) {
	pairings := c.rounds[round-1][:0]
	for _, pair := range c.rounds[round-1] {
		if pair.P1 == uid && pair.P2 == uid {
			continue
		}
		pairings = append(pairings, pair)
	}
	c.rounds[round-1] = pairings

	results := c.results[round-1][:0]
	for _, r := range c.results[round-1] {
		if r.P1UID == uid && r.P2UID == uid {
			continue
		}
		results = append(results, r)
	}
	c.results[round-1] = results
}

// startLocked transitions to round 1 with a random pairing of the lobby.
func (c *Competition) startLocked() {
	c.setStateLocked(StateInProgress)
	c.roundVal.Store(1)

	uids := make([]string, 0, len(c.players))
	for uid := range c.players {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	rand.Shuffle(len(uids), func(i, j int) { uids[i], uids[j] = uids[j], uids[i] })

	pairings := make([]pairing, 0, len(uids)/2)
	for i := 0; i+1 < len(uids); i += 2 {
		pairings = append(pairings, pairing{P1: uids[i], P2: uids[i+1]})
	}
	c.rounds = append(c.rounds, pairings)
	c.results = append(c.results, nil)

	log.Info("competition started", "matches", len(pairings))
	for i, pair := range pairings {
		log.Info("round one pairing", "arena", i+1,
			"player1", c.players[pair.P1].Name, "player2", c.players[pair.P2].Name)
	}

	c.broadcastCompetitionStatusLocked()
	c.createRoundMatchesLocked()
}

// StartFromRooms starts the competition from the waiting lobby's rooms:
// pairings come from current room occupancy and the seated players are
// registered in place.
func (c *Competition) StartFromRooms() {
	c.mu.Lock()
	if c.State() == StateInProgress {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateInProgress)
	c.roundVal.Store(1)

	var pairings []pairing
	for _, room := range c.srv.rooms.OccupiedRooms() {
		room.mu.Lock()
		if len(room.conns) != 2 || room.playerUIDs[1] == "" || room.playerUIDs[2] == "" {
			room.mu.Unlock()
			continue
		}
		p1UID, p2UID := room.playerUIDs[1], room.playerUIDs[2]
		pairings = append(pairings, pairing{P1: p1UID, P2: p2UID})
		room.wins = map[int]int{1: 0, 2: 0}
		room.matchComplete = false
		room.matchReported = false
		c.players[p1UID] = &PlayerInfo{
			UID: p1UID, Name: room.names[1], Conn: room.conns[1],
			RoomID: room.ID, PlayerID: 1,
		}
		c.players[p2UID] = &PlayerInfo{
			UID: p2UID, Name: room.names[2], Conn: room.conns[2],
			RoomID: room.ID, PlayerID: 2,
		}
		room.mu.Unlock()
	}
	c.rounds = append(c.rounds, pairings)
	c.results = append(c.results, nil)
	c.mu.Unlock()

	log.Info("competition started from waiting rooms", "matches", len(pairings))
	for _, room := range c.srv.rooms.OccupiedRooms() {
		if room.ReadyCount() >= 2 {
			room.StartGame()
		}
	}
}

// createRoundMatchesLocked builds an arena per pairing and seats both
// players.
func (c *Competition) createRoundMatchesLocked() {
	round := c.Round()
	arenaID := 0
	for _, pair := range c.rounds[round-1] {
		if pair.P1 == pair.P2 {
			continue // bye, already decided
		}
		arenaID++
		p1, p2 := c.players[pair.P1], c.players[pair.P2]
		if p1 == nil || p2 == nil {
			log.Error("pairing references unknown player", "round", round, "arena", arenaID)
			continue
		}
		room := c.srv.rooms.CreateCompetitionRoom(arenaID, pair.P1, pair.P2)
		p1.RoomID, p1.PlayerID = arenaID, 1
		p2.RoomID, p2.PlayerID = arenaID, 2
		room.ConnectCompetitionPlayer(1, p1)
		room.ConnectCompetitionPlayer(2, p2)
	}
	c.srv.rooms.BroadcastRoomList()
}

// ReportMatchComplete records a decided match, updates both players'
// standings, and advances the round when it was the last open pairing.
// Reporting is idempotent at the room level; a malformed report aborts
// without touching the bracket.
func (c *Competition) ReportMatchComplete(winnerUID, p1UID, p2UID string, p1Points, p2Points int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round := c.Round()
	if c.State() != StateInProgress || round == 0 {
		log.Warn("match reported outside an active round", "winner", winnerUID)
		return
	}
	winner, ok := c.players[winnerUID]
	if !ok {
		log.Error("winner uid not in competition", "uid", winnerUID)
		return
	}
	loserUID := p2UID
	winnerPoints, loserPoints := p1Points, p2Points
	if winnerUID == p2UID {
		loserUID = p1UID
		winnerPoints, loserPoints = p2Points, p1Points
	}
	loser, ok := c.players[loserUID]
	if !ok {
		log.Error("loser uid not in competition", "uid", loserUID)
		return
	}

	c.results[round-1] = append(c.results[round-1], MatchResult{
		P1UID: p1UID, P2UID: p2UID, WinnerUID: winnerUID,
		P1Points: p1Points, P2Points: p2Points,
	})

	winner.MatchWins++
	winner.GamePoints += winnerPoints
	winner.OpponentPoints += loserPoints
	winner.LastMatchFinish = time.Now()
	loser.GamePoints += loserPoints
	loser.OpponentPoints += winnerPoints
	loser.Eliminated = true
	loser.RoomID = 0
	loser.PlayerID = 0

	log.Info("match recorded", "winner", winner.Name, "loser", loser.Name,
		"score", strconv.Itoa(p1Points)+"-"+strconv.Itoa(p2Points))
	log.Info("round progress", "round", round,
		"complete", len(c.results[round-1]), "total", len(c.rounds[round-1]))

	if len(c.results[round-1]) >= len(c.rounds[round-1]) {
		c.advanceLocked()
	}
}

// advanceLocked closes the current round: either crowns a champion or
// selects a Bye, pairs the winners, and schedules the next round's rooms.
func (c *Competition) advanceLocked() {
	cfg := c.srv.Config()
	round := c.Round()
	var winners []string
	for _, r := range c.results[round-1] {
		winners = append(winners, r.WinnerUID)
	}
	log.Info("round complete", "round", round, "winners", len(winners))

	c.srv.rooms.ClearAllRooms()
	c.setByeLocked("", "")

	if len(winners) == 1 {
		c.champion = winners[0]
		c.setStateLocked(StateComplete)
		c.resetAt = time.Now()
		champ := c.players[c.champion]
		log.Info("competition complete", "champion", champ.Name)
		recordChampionship(ChampionshipRecord{
			Champion:  champ.Name,
			Players:   len(c.players),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		c.broadcastCompetitionCompleteLocked()
		time.AfterFunc(time.Duration(cfg.ResetDelay)*time.Second, c.StartWaiting)
		log.Info("competition resetting", "seconds", cfg.ResetDelay)
		return
	}

	// With an odd winner count the highest scorer sits the round out and
	// auto-advances. Ties break by earliest finish, then randomly.
	var bye *PlayerInfo
	if len(winners)%2 == 1 {
		cands := make([]*PlayerInfo, 0, len(winners))
		for _, uid := range winners {
			cands = append(cands, c.players[uid])
		}
		tiebreak := make(map[string]float64, len(cands))
		for _, p := range cands {
			tiebreak[p.UID] = randFloat64()
		}
		sort.Slice(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if a.GamePoints != b.GamePoints {
				return a.GamePoints > b.GamePoints
			}
			if !a.LastMatchFinish.Equal(b.LastMatchFinish) {
				return a.LastMatchFinish.Before(b.LastMatchFinish)
			}
			return tiebreak[a.UID] < tiebreak[b.UID]
		})
		bye = cands[0]
		kept := winners[:0]
		for _, uid := range winners {
			if uid != bye.UID {
				kept = append(kept, uid)
			}
		}
		winners = kept
		c.setByeLocked(bye.UID, bye.Name)
		log.Info("bye awarded to highest scorer", "name", bye.Name, "points", bye.GamePoints)
	}

	next := round + 1
	c.roundVal.Store(int32(next))
	rand.Shuffle(len(winners), func(i, j int) { winners[i], winners[j] = winners[j], winners[i] })
	pairings := make([]pairing, 0, len(winners)/2+1)
	for i := 0; i+1 < len(winners); i += 2 {
		pairings = append(pairings, pairing{P1: winners[i], P2: winners[i+1]})
	}
	// A Bye is a self-pairing with its result pre-recorded, so the
	// round's match and result counts stay aligned.
	if bye != nil {
		pairings = append(pairings, pairing{P1: bye.UID, P2: bye.UID})
	}
	c.rounds = append(c.rounds, pairings)
	c.results = append(c.results, nil)
	log.Info("round starting", "round", next, "matches", len(pairings))

	if bye != nil {
		c.results[next-1] = append(c.results[next-1], MatchResult{
			P1UID: bye.UID, P2UID: bye.UID, WinnerUID: bye.UID,
		})
		bye.LastMatchFinish = time.Now()
		log.Info("bye auto-advance recorded", "name", bye.Name)
	}

	c.broadcastCompetitionStatusLocked()

	// Pause so observers can read the results, then build the rooms,
	// unless the bracket moved on (forfeits can finish a round early).
	time.AfterFunc(interRoundPause, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.State() != StateInProgress || c.Round() != next {
			return
		}
		c.createRoundMatchesLocked()
	})
}

// RemainingMatches counts undecided pairings in the current round.
func (c *Competition) RemainingMatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	round := c.Round()
	if len(c.rounds) == 0 || round == 0 {
		return 0
	}
	return len(c.rounds[round-1]) - len(c.results[round-1])
}

// PlayerRoom resolves a competition player's current arena and slot.
func (c *Competition) PlayerRoom(uid string) (*Room, int) {
	c.mu.Lock()
	p, ok := c.players[uid]
	if !ok || p.RoomID == 0 {
		c.mu.Unlock()
		return nil, 0
	}
	roomID, playerID := p.RoomID, p.PlayerID
	c.mu.Unlock()
	return c.srv.rooms.Room(roomID), playerID
}

// PlayerCount returns the number of registrants.
func (c *Competition) PlayerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.players)
}

// Status builds the competition summary for HTTP and registered frames.
func (c *Competition) Status() CompetitionStatus {
	cfg := c.srv.Config()
	c.mu.Lock()
	defer c.mu.Unlock()

	round := c.Round()
	if round == 0 {
		round = 1
	}
	var champion *string
	if c.champion != "" {
		if p, ok := c.players[c.champion]; ok {
			name := p.Name
			champion = &name
		}
	}
	resetIn := 0
	if c.State() == StateComplete && !c.resetAt.IsZero() {
		resetIn = cfg.ResetDelay - int(time.Since(c.resetAt).Seconds())
		if resetIn < 0 {
			resetIn = 0
		}
	}
	return CompetitionStatus{
		State:       c.State().String(),
		Round:       round,
		TotalRounds: c.TotalRounds(),
		Players:     len(c.players),
		Required:    cfg.RequiredPlayers(),
		Champion:    champion,
		PointsToWin: cfg.PointsToWin,
		ByePlayer:   c.byeName.Load(),
		ResetIn:     resetIn,
	}
}

func (c *Competition) broadcastLobbyStatusLocked() {
	cfg := c.srv.Config()
	briefs := make([]PlayerBrief, 0, len(c.players))
	for _, p := range c.sortedPlayersLocked() {
		briefs = append(briefs, PlayerBrief{UID: p.UID, Name: p.Name})
	}
	msg := LobbyStatusMessage{
		Type:     MsgLobbyStatus,
		Players:  briefs,
		Required: cfg.RequiredPlayers(),
		Current:  len(c.players),
	}
	for _, p := range c.players {
		_ = p.Conn.Send(msg)
	}
}

func (c *Competition) broadcastCompetitionStatusLocked() {
	round := c.Round()
	var pairings []PairingInfo
	if round > 0 && len(c.rounds) >= round {
		arena := 0
		for _, pair := range c.rounds[round-1] {
			if pair.P1 == pair.P2 {
				continue
			}
			arena++
			pairings = append(pairings, PairingInfo{
				Arena:   arena,
				Player1: PlayerBrief{UID: pair.P1, Name: c.players[pair.P1].Name},
				Player2: PlayerBrief{UID: pair.P2, Name: c.players[pair.P2].Name},
			})
		}
	}
	msg := CompetitionStatusMessage{
		Type:        MsgCompetitionStatus,
		State:       c.State().String(),
		Round:       round,
		TotalRounds: c.TotalRounds(),
		Pairings:    pairings,
	}
	for _, p := range c.players {
		_ = p.Conn.Send(msg)
	}
}

func (c *Competition) broadcastCompetitionCompleteLocked() {
	cfg := c.srv.Config()
	champ := c.players[c.champion]
	msg := CompetitionCompleteMessage{
		Type:     MsgCompetitionComplete,
		Champion: PlayerBrief{UID: champ.UID, Name: champ.Name},
		ResetIn:  cfg.ResetDelay,
	}
	for _, p := range c.players {
		_ = p.Conn.Send(msg)
	}
}

// sortedPlayersLocked returns players in uid registration order.
func (c *Competition) sortedPlayersLocked() []*PlayerInfo {
	out := make([]*PlayerInfo, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].UID) != len(out[j].UID) {
			return len(out[i].UID) < len(out[j].UID)
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// Swappable in tests for a deterministic Bye tiebreak.
var randFloat64 = rand.Float64
