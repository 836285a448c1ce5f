package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// sendErrorAndClose pushes an error frame, then closes with a policy
// close code so clients can tell rejections apart.
func sendErrorAndClose(conn *Conn, code int, reason string) {
	_ = conn.Send(ErrorMessage{Type: MsgError, Message: reason})
	conn.CloseWithCode(code, reason)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) *Conn {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "path", r.URL.Path, "err", err)
		return nil
	}
	return NewConn(ws)
}

// handleJoin seats a casual player by matchmaking: lowest waiting room
// first, then a fresh one. Joins are only open while the competition is
// collecting players.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}
	defer conn.Close()

	cfg := s.Config()
	if st := s.comp.State(); st != StateWaitingForPlayers {
		sendErrorAndClose(conn, CloseCompetitionClosed,
			fmt.Sprintf("Competition is %s, joining is closed", st))
		return
	}
	if s.rooms.TotalPlayers() >= cfg.RequiredPlayers() {
		sendErrorAndClose(conn, CloseServerFull, "Server is full")
		return
	}
	room, slot := s.rooms.FindOrCreateRoom()
	if room == nil {
		sendErrorAndClose(conn, CloseServerFull, "No free rooms")
		return
	}

	uid := fmt.Sprintf("player_%d_%d_%s", room.ID, slot, uuid.NewString()[:8])
	room.SetPlayerUID(slot, uid)
	room.ConnectPlayer(slot, conn)
	_ = conn.Send(JoinedMessage{Type: MsgJoined, RoomID: room.ID, PlayerID: slot})

	s.playerReadLoop(conn, uid, room, slot)
}

// handleLegacy serves the fixed-slot endpoint /ws/{id}: player 1 opens a
// room, player 2 fills the first waiting one.
func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}
	defer conn.Close()

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || (id != 1 && id != 2) {
		sendErrorAndClose(conn, CloseInvalidPlayerID, "Player id must be 1 or 2")
		return
	}
	if st := s.comp.State(); st != StateWaitingForPlayers {
		sendErrorAndClose(conn, CloseCompetitionClosed,
			fmt.Sprintf("Competition is %s, joining is closed", st))
		return
	}

	var room *Room
	if id == 2 {
		room = s.rooms.FindWaitingRoom()
	}
	if room == nil {
		room = s.rooms.CreateRoom()
	}
	if room == nil {
		sendErrorAndClose(conn, CloseServerFull, "No free rooms")
		return
	}
	slot := id
	if room.AvailableSlot() != slot {
		slot = room.AvailableSlot()
	}
	if slot == 0 {
		sendErrorAndClose(conn, CloseServerFull, "Room is full")
		return
	}

	uid := fmt.Sprintf("player_%d_%d_%s", room.ID, slot, uuid.NewString()[:8])
	room.SetPlayerUID(slot, uid)
	room.ConnectPlayer(slot, conn)
	_ = conn.Send(JoinedMessage{Type: MsgJoined, RoomID: room.ID, PlayerID: slot})

	s.playerReadLoop(conn, uid, room, slot)
}

// playerReadLoop pumps a seated player's frames until the socket drops.
// Once the competition starts the player may be reseated between rounds,
// so each frame re-resolves the current room by uid.
func (s *Server) playerReadLoop(conn *Conn, uid string, room *Room, slot int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		cur, curSlot := room, slot
		if s.comp.State() == StateInProgress {
			if cr, cs := s.comp.PlayerRoom(uid); cr != nil {
				cur, curSlot = cr, cs
			}
		}
		cur.HandleMessage(curSlot, msg)
	}

	cur, curSlot := room, slot
	if cr, cs := s.comp.PlayerRoom(uid); cr != nil {
		cur, curSlot = cr, cs
	}
	cur.DisconnectPlayer(curSlot)
	s.comp.Unregister(uid)
	s.rooms.CleanupEmptyRooms()
}

// handleCompete registers a competition player. The first frame must
// carry the player's name; afterwards the connection only sends moves
// and ready signals, routed to whatever arena the bracket assigned.
func (s *Server) handleCompete(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}
	defer conn.Close()

	data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var hello NameMessage
	if json.Unmarshal(data, &hello) != nil || hello.Name == "" {
		sendErrorAndClose(conn, CloseNameExpected, "First frame must carry a name")
		return
	}

	p := s.comp.Register(hello.Name, conn)
	if p == nil {
		sendErrorAndClose(conn, CloseCompetitionClosed, "Competition is full or already running")
		return
	}
	_ = conn.Send(RegisteredMessage{
		Type:              MsgRegistered,
		UID:               p.UID,
		Name:              p.Name,
		CompetitionStatus: s.comp.Status(),
	})

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		room, slot := s.comp.PlayerRoom(p.UID)
		if room == nil {
			continue
		}
		switch msg.Action {
		case ActionReady:
			room.ReadyUp(slot)
		default:
			room.HandleMessage(slot, msg)
		}
	}

	if room, slot := s.comp.PlayerRoom(p.UID); room != nil {
		room.DisconnectPlayer(slot)
	}
	s.comp.Unregister(p.UID)
	s.rooms.CleanupEmptyRooms()
}

// handleObserve attaches a read-only spectator. Observers land in the
// first active room, or wait in the lobby pool until one exists. They
// may switch rooms or request the room list at any time.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}
	defer conn.Close()

	room := s.rooms.FindActiveRoom()
	if room == nil {
		room = s.rooms.FindOccupiedRoom()
	}
	if room == nil {
		_ = conn.Send(WaitingMessage{Type: MsgWaiting, Message: "No matches running yet"})
		s.rooms.AddLobbyObserver(conn)
		if s.comp.State() == StateWaitingForPlayers && s.comp.PlayerCount() == 0 {
			go SpawnBotPair(s)
		}
	} else {
		room.ConnectObserver(conn)
	}
	s.rooms.BroadcastRoomList()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch msg.Action {
		case ActionSwitchRoom:
			target := s.rooms.Room(msg.RoomID)
			if target == nil {
				_ = conn.Send(ErrorMessage{Type: MsgError, Message: fmt.Sprintf("Room %d not found", msg.RoomID)})
				continue
			}
			if room != nil {
				room.DisconnectObserver(conn)
			}
			target.ConnectObserver(conn)
			room = target
		case ActionGetRooms:
			s.rooms.BroadcastRoomList()
		}
	}

	if room != nil {
		room.DisconnectObserver(conn)
	}
}
