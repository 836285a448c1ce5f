package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Version          string       `json:"version"`
	Arenas           int          `json:"arenas"`
	MaxPlayers       int          `json:"max_players"`
	TotalPlayers     int          `json:"total_players"`
	OpenSlots        int          `json:"open_slots"`
	CompetitionState string       `json:"competition_state"`
	TotalRooms       int          `json:"total_rooms"`
	Speed            float64      `json:"speed"`
	GridWidth        int          `json:"grid_width"`
	GridHeight       int          `json:"grid_height"`
	PointsToWin      int          `json:"points_to_win"`
	Bots             int          `json:"bots"`
	Fruits           []string     `json:"fruits"`
	Rooms            []RoomDetail `json:"rooms"`
}

// RoomDetail is one room's row inside a StatusResponse.
type RoomDetail struct {
	RoomID           int            `json:"room_id"`
	Players          []int          `json:"players"`
	Ready            []int          `json:"ready"`
	Observers        int            `json:"observers"`
	GameRunning      bool           `json:"game_running"`
	WaitingForPlayer bool           `json:"waiting_for_player"`
	MatchComplete    bool           `json:"match_complete"`
	Names            map[int]string `json:"names"`
	Wins             map[int]int    `json:"wins"`
}

// RootResponse is the GET / liveness payload.
type RootResponse struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HistoryResponse is the GET /history payload.
type HistoryResponse struct {
	Championships []ChampionshipRecord `json:"championships"`
}

// ActiveRoomsResponse is the GET /rooms/active payload.
type ActiveRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// AddBotResponse is the POST /add_bot payload.
type AddBotResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Routes wires the HTTP API and the four websocket endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/competition", s.handleCompetition)
	r.Get("/history", s.handleHistory)
	r.Get("/rooms/active", s.handleActiveRooms)
	r.Post("/add_bot", s.handleAddBot)

	r.Get("/ws/join", s.handleJoin)
	r.Get("/ws/compete", s.handleCompete)
	r.Get("/ws/observe", s.handleObserve)
	r.Get("/ws/{id}", s.handleLegacy)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encoding failed", "err", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Name:    "CopperHead Server",
		Status:  "running",
		Version: ServerVersion,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms.Status())
}

func (s *Server) handleCompetition(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.comp.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HistoryResponse{Championships: ChampionshipHistory()})
}

func (s *Server) handleActiveRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.rooms.ActiveRooms()
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	writeJSON(w, http.StatusOK, ActiveRoomsResponse{Rooms: summaries})
}

// handleAddBot spawns one bot that registers itself over the competition
// websocket. Difficulty 1..10; out-of-range or absent picks randomly.
func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	if s.comp.State() != StateWaitingForPlayers {
		writeJSON(w, http.StatusConflict, AddBotResponse{
			Success: false,
			Message: "Competition is not accepting players",
		})
		return
	}
	difficulty, err := strconv.Atoi(r.URL.Query().Get("difficulty"))
	if err != nil || difficulty < 1 || difficulty > 10 {
		difficulty = 1 + randIntn(10)
	}
	bot := NewBot(s.BotURL(), difficulty)
	go bot.Run()
	writeJSON(w, http.StatusOK, AddBotResponse{
		Success: true,
		Message: "Bot " + bot.Name + " dispatched",
	})
}
