package main

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// MaxRooms caps how many arenas exist at once.
const MaxRooms = 10

// RoomManager is the registry of rooms keyed by arena id. It owns
// matchmaking for casual joiners and the observer lobby pool.
type RoomManager struct {
	srv *Server

	mu             sync.Mutex // guards rooms and lobbyObservers
	matchmaking    sync.Mutex // serializes find-or-create
	rooms          map[int]*Room
	lobbyObservers []Sender
}

// NewRoomManager creates an empty registry.
func NewRoomManager(srv *Server) *RoomManager {
	return &RoomManager{
		srv:   srv,
		rooms: make(map[int]*Room),
	}
}

// Room returns the room with the given id, or nil.
func (m *RoomManager) Room(id int) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[id]
}

// roomsByID returns all rooms in ascending id order.
func (m *RoomManager) roomsByID() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rooms[id])
	}
	return out
}

// FindOrCreateRoom returns the lowest-id room waiting for a second
// player, or allocates a new room at the lowest free id. The returned
// slot is the one the joiner should take; a nil room means the server
// is full.
func (m *RoomManager) FindOrCreateRoom() (*Room, int) {
	m.matchmaking.Lock()
	defer m.matchmaking.Unlock()

	for _, room := range m.roomsByID() {
		if room.IsWaitingForPlayer() {
			slot := room.AvailableSlot()
			if slot == 0 {
				slot = 2
			}
			return room, slot
		}
	}
	if room := m.CreateRoom(); room != nil {
		return room, 1
	}
	return nil, 0
}

// FindWaitingRoom returns a room with one player and no running game.
func (m *RoomManager) FindWaitingRoom() *Room {
	for _, room := range m.roomsByID() {
		if room.IsWaitingForPlayer() {
			return room
		}
	}
	return nil
}

// FindActiveRoom returns any room with a running or just-finished match.
func (m *RoomManager) FindActiveRoom() *Room {
	for _, room := range m.roomsByID() {
		if room.IsActive() {
			return room
		}
	}
	return nil
}

// FindOccupiedRoom returns any room with at least one player.
func (m *RoomManager) FindOccupiedRoom() *Room {
	for _, room := range m.roomsByID() {
		if !room.IsEmpty() {
			return room
		}
	}
	return nil
}

// ActiveRooms returns all rooms with a running or finished match.
func (m *RoomManager) ActiveRooms() []*Room {
	var out []*Room
	for _, room := range m.roomsByID() {
		if room.IsActive() {
			out = append(out, room)
		}
	}
	return out
}

// OccupiedRooms returns all rooms with at least one player.
func (m *RoomManager) OccupiedRooms() []*Room {
	var out []*Room
	for _, room := range m.roomsByID() {
		if !room.IsEmpty() {
			out = append(out, room)
		}
	}
	return out
}

// CreateRoom allocates a room at the lowest free (or empty) id, or nil
// when all ids are taken by occupied rooms.
func (m *RoomManager) CreateRoom() *Room {
	m.mu.Lock()
	for id := 1; id <= MaxRooms; id++ {
		if existing, ok := m.rooms[id]; ok && !existing.IsEmpty() {
			continue
		}
		room := NewRoom(id, m.srv)
		m.rooms[id] = room
		active := 0
		for _, r := range m.rooms {
			if !r.IsEmpty() {
				active++
			}
		}
		m.mu.Unlock()
		log.Info("room created", "room", id, "active", active)
		return room
	}
	m.mu.Unlock()
	return nil
}

// CreateCompetitionRoom allocates the arena for one bracket pairing.
func (m *RoomManager) CreateCompetitionRoom(arenaID int, p1UID, p2UID string) *Room {
	room := NewRoom(arenaID, m.srv)
	room.playerUIDs = map[int]string{1: p1UID, 2: p2UID}
	m.mu.Lock()
	m.rooms[arenaID] = room
	m.mu.Unlock()
	log.Info("arena created for competition match", "room", arenaID)
	return room
}

// TotalPlayers counts connections across all rooms.
func (m *RoomManager) TotalPlayers() int {
	total := 0
	for _, room := range m.roomsByID() {
		total += room.PlayerCount()
	}
	return total
}

// TotalReady counts ready players across all rooms.
func (m *RoomManager) TotalReady() int {
	total := 0
	for _, room := range m.roomsByID() {
		total += room.ReadyCount()
	}
	return total
}

// AddLobbyObserver pools an observer until a room becomes active.
func (m *RoomManager) AddLobbyObserver(conn Sender) {
	m.mu.Lock()
	m.lobbyObservers = append(m.lobbyObservers, conn)
	m.mu.Unlock()
}

// CleanupEmptyRooms drops rooms with no players.
func (m *RoomManager) CleanupEmptyRooms() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		if room.IsEmpty() {
			delete(m.rooms, id)
			log.Info("room cleaned up", "room", id)
		}
	}
}

// ClearAllRooms tears every room down between rounds: observers are kept
// in the lobby pool for reseating, tick loops are cancelled, and the
// registry is emptied.
func (m *RoomManager) ClearAllRooms() {
	rooms := m.roomsByID()
	var drained []Sender
	for _, room := range rooms {
		drained = append(drained, room.DrainObservers()...)
		room.CancelTask()
	}

	m.mu.Lock()
	m.lobbyObservers = append(m.lobbyObservers, drained...)
	m.rooms = make(map[int]*Room)
	m.mu.Unlock()

	if len(drained) > 0 {
		log.Info("observers moved to lobby for next round", "count", len(drained))
	}
	log.Info("all rooms cleared for next round")
}

// BroadcastRoomList fans the current room list out to every observer and
// seats lobby observers into the first active room.
func (m *RoomManager) BroadcastRoomList() {
	active := m.ActiveRooms()
	summaries := make([]RoomSummary, 0, len(active))
	for _, room := range active {
		summaries = append(summaries, room.Summary())
	}
	round := m.srv.comp.Round()
	totalRounds := m.srv.comp.TotalRounds()
	byeName := m.srv.comp.ByePlayerName()

	for _, room := range m.roomsByID() {
		room.mu.Lock()
		obs := append([]Sender(nil), room.observers...)
		room.mu.Unlock()
		id := room.ID
		for _, o := range obs {
			_ = o.Send(RoomListMessage{
				Type:        MsgRoomList,
				Rooms:       summaries,
				CurrentRoom: &id,
				Round:       round,
				TotalRounds: totalRounds,
				ByePlayer:   byeName,
			})
		}
	}

	m.mu.Lock()
	lobby := m.lobbyObservers
	if len(active) > 0 {
		m.lobbyObservers = nil
	}
	m.mu.Unlock()

	if len(active) > 0 && len(lobby) > 0 {
		first := active[0]
		for _, o := range lobby {
			first.ConnectObserver(o)
			id := first.ID
			_ = o.Send(RoomListMessage{
				Type:        MsgRoomList,
				Rooms:       summaries,
				CurrentRoom: &id,
				Round:       round,
				TotalRounds: totalRounds,
				ByePlayer:   byeName,
			})
		}
		log.Info("lobby observers joined room", "room", first.ID, "count", len(lobby))
	} else if len(active) == 0 {
		for _, o := range lobby {
			_ = o.Send(RoomListMessage{
				Type:        MsgRoomList,
				Rooms:       []RoomSummary{},
				CurrentRoom: nil,
				Round:       round,
				TotalRounds: totalRounds,
				ByePlayer:   byeName,
			})
		}
	}
}

// Status builds the GET /status payload.
func (m *RoomManager) Status() StatusResponse {
	cfg := m.srv.Config()
	rooms := m.roomsByID()

	totalPlayers := 0
	details := make([]RoomDetail, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		slots := make([]int, 0, len(room.conns))
		for slot := range room.conns {
			slots = append(slots, slot)
		}
		sort.Ints(slots)
		ready := make([]int, 0, len(room.ready))
		for slot := range room.ready {
			ready = append(ready, slot)
		}
		sort.Ints(ready)
		detail := RoomDetail{
			RoomID:           room.ID,
			Players:          slots,
			Ready:            ready,
			Observers:        len(room.observers),
			GameRunning:      room.game.Running,
			WaitingForPlayer: len(room.conns) == 1 && !room.game.Running,
			MatchComplete:    room.matchComplete,
			Names:            make(map[int]string, len(room.names)),
			Wins:             make(map[int]int, len(room.wins)),
		}
		for k, v := range room.names {
			detail.Names[k] = v
		}
		for k, v := range room.wins {
			detail.Wins[k] = v
		}
		totalPlayers += len(room.conns)
		room.mu.Unlock()
		details = append(details, detail)
	}

	maxPlayers := cfg.RequiredPlayers()
	openSlots := 0
	if m.srv.comp.State() == StateWaitingForPlayers {
		openSlots = maxPlayers - totalPlayers
	}
	var activeFruits []string
	for _, typ := range FruitTypes {
		if cfg.Fruits[typ].Propensity > 0 {
			activeFruits = append(activeFruits, typ)
		}
	}

	return StatusResponse{
		Version:          ServerVersion,
		Arenas:           cfg.Arenas,
		MaxPlayers:       maxPlayers,
		TotalPlayers:     totalPlayers,
		OpenSlots:        openSlots,
		CompetitionState: m.srv.comp.State().String(),
		TotalRooms:       len(rooms),
		Speed:            cfg.Speed,
		GridWidth:        cfg.GridWidth,
		GridHeight:       cfg.GridHeight,
		PointsToWin:      cfg.PointsToWin,
		Bots:             cfg.Bots,
		Fruits:           activeFruits,
		Rooms:            details,
	}
}
