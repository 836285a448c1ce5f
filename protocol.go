package main

// Wire protocol: JSON text frames over WebSocket. Server frames carry a
// "type" field, client frames an "action" field. Maps keyed by player
// slot encode with string keys ("1", "2").
//
//   Client → Server:
//     {"action":"ready","name":"Ada","mode":"two_player"}
//     {"action":"move","direction":"up"}
//     {"action":"switch_room","room_id":2}   (observers)
//     {"action":"get_rooms"}                 (observers)
//   First frame on /ws/compete: {"name":"Ada"}

// Server → client message types.
const (
	MsgLobbyStatus         = "lobby_status"
	MsgCompetitionStatus   = "competition_status"
	MsgCompetitionComplete = "competition_complete"
	MsgJoined              = "joined"
	MsgMatchAssigned       = "match_assigned"
	MsgStart               = "start"
	MsgState               = "state"
	MsgGameOver            = "gameover"
	MsgMatchComplete       = "match_complete"
	MsgObserverJoined      = "observer_joined"
	MsgRoomList            = "room_list"
	MsgWaiting             = "waiting"
	MsgError               = "error"
	MsgRegistered          = "registered"
)

// Client → server actions.
const (
	ActionReady      = "ready"
	ActionMove       = "move"
	ActionSwitchRoom = "switch_room"
	ActionGetRooms   = "get_rooms"
)

// WebSocket close codes.
const (
	CloseInvalidPlayerID   = 4000
	CloseNameExpected      = 4001
	CloseServerFull        = 4002
	CloseCompetitionClosed = 4003
)

// ClientMessage is the envelope for all inbound player/observer frames.
// Unknown actions are ignored.
type ClientMessage struct {
	Action    string `json:"action"`
	Name      string `json:"name,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Direction string `json:"direction,omitempty"`
	RoomID    int    `json:"room_id,omitempty"`
}

// NameMessage is the required first frame on /ws/compete.
type NameMessage struct {
	Name string `json:"name"`
}

// GridInfo is the arena size inside a game snapshot.
type GridInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SnakeSnapshot is one snake inside a game snapshot. Buff is reserved
// wire vocabulary; the server always reports "default".
type SnakeSnapshot struct {
	PlayerID  int       `json:"player_id"`
	Body      []Cell    `json:"body"`
	Direction Direction `json:"direction"`
	Alive     bool      `json:"alive"`
	Buff      string    `json:"buff"`
}

// FoodSnapshot is one fruit inside a game snapshot. Lifetime is numeric
// only within the fruit warning window, otherwise null.
type FoodSnapshot struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Type     string `json:"type"`
	Lifetime *int   `json:"lifetime"`
}

// GameSnapshot is the per-tick game state sent inside "state" frames.
type GameSnapshot struct {
	Mode    string                `json:"mode"`
	Grid    GridInfo              `json:"grid"`
	Snakes  map[int]SnakeSnapshot `json:"snakes"`
	Foods   []FoodSnapshot        `json:"foods"`
	Running bool                  `json:"running"`
	Winner  *int                  `json:"winner"`
}

// PlayerBrief identifies a competition player on the wire.
type PlayerBrief struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// LobbyStatusMessage is broadcast while the competition fills up.
type LobbyStatusMessage struct {
	Type     string        `json:"type"`
	Players  []PlayerBrief `json:"players"`
	Required int           `json:"required"`
	Current  int           `json:"current"`
}

// PairingInfo is one arena assignment inside a competition status frame.
type PairingInfo struct {
	Arena   int         `json:"arena"`
	Player1 PlayerBrief `json:"player1"`
	Player2 PlayerBrief `json:"player2"`
}

// CompetitionStatusMessage announces the bracket for the current round.
type CompetitionStatusMessage struct {
	Type        string        `json:"type"`
	State       string        `json:"state"`
	Round       int           `json:"round"`
	TotalRounds int           `json:"total_rounds"`
	Pairings    []PairingInfo `json:"pairings"`
}

// CompetitionCompleteMessage announces the champion.
type CompetitionCompleteMessage struct {
	Type     string      `json:"type"`
	Champion PlayerBrief `json:"champion"`
	ResetIn  int         `json:"reset_in"`
}

// JoinedMessage confirms a casual player's room and slot.
type JoinedMessage struct {
	Type     string `json:"type"`
	RoomID   int    `json:"room_id"`
	PlayerID int    `json:"player_id"`
}

// MatchAssignedMessage tells a competition player where their next match
// runs.
type MatchAssignedMessage struct {
	Type        string `json:"type"`
	RoomID      int    `json:"room_id"`
	PlayerID    int    `json:"player_id"`
	Opponent    string `json:"opponent"`
	PointsToWin int    `json:"points_to_win"`
}

// StartMessage marks the start of a game. Wins and PointsToWin are only
// present for follow-up games within a match.
type StartMessage struct {
	Type        string      `json:"type"`
	Mode        string      `json:"mode"`
	RoomID      int         `json:"room_id"`
	Wins        map[int]int `json:"wins,omitempty"`
	PointsToWin int         `json:"points_to_win,omitempty"`
}

// StateMessage is the per-tick broadcast to a room's subscribers.
type StateMessage struct {
	Type   string         `json:"type"`
	Game   GameSnapshot   `json:"game"`
	Wins   map[int]int    `json:"wins"`
	Names  map[int]string `json:"names"`
	RoomID int            `json:"room_id"`
}

// GameOverMessage closes one game of a match. Winner is null on a draw.
type GameOverMessage struct {
	Type        string         `json:"type"`
	Winner      *int           `json:"winner"`
	Wins        map[int]int    `json:"wins"`
	Names       map[int]string `json:"names"`
	RoomID      int            `json:"room_id"`
	PointsToWin int            `json:"points_to_win"`
}

// MatchWinner identifies the victor of a match.
type MatchWinner struct {
	PlayerID int    `json:"player_id"`
	Name     string `json:"name"`
}

// MatchCompleteMessage closes a match. RemainingMatches and the round
// counters are carried on regular completions; forfeit completions carry
// PointsToWin instead.
type MatchCompleteMessage struct {
	Type             string      `json:"type"`
	Winner           MatchWinner `json:"winner"`
	FinalScore       map[int]int `json:"final_score"`
	RoomID           int         `json:"room_id"`
	PointsToWin      int         `json:"points_to_win,omitempty"`
	RemainingMatches *int        `json:"remaining_matches,omitempty"`
	CurrentRound     int         `json:"current_round,omitempty"`
	TotalRounds      int         `json:"total_rounds,omitempty"`
	Forfeit          bool        `json:"forfeit,omitempty"`
}

// ObserverJoinedMessage confirms an observer's room with a full snapshot.
type ObserverJoinedMessage struct {
	Type   string         `json:"type"`
	RoomID int            `json:"room_id"`
	Game   GameSnapshot   `json:"game"`
	Wins   map[int]int    `json:"wins"`
	Names  map[int]string `json:"names"`
}

// RoomSummary is one row of a room list.
type RoomSummary struct {
	RoomID        int            `json:"room_id"`
	Names         map[int]string `json:"names"`
	Wins          map[int]int    `json:"wins"`
	MatchComplete bool           `json:"match_complete,omitempty"`
}

// RoomListMessage is sent to observers after room lifecycle changes.
type RoomListMessage struct {
	Type        string        `json:"type"`
	Rooms       []RoomSummary `json:"rooms"`
	CurrentRoom *int          `json:"current_room"`
	Round       int           `json:"round"`
	TotalRounds int           `json:"total_rounds"`
	ByePlayer   *string       `json:"bye_player"`
}

// WaitingMessage tells a player why the game has not started yet.
type WaitingMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMessage reports a policy rejection before the connection closes.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RegisteredMessage confirms a competition registration.
type RegisteredMessage struct {
	Type              string            `json:"type"`
	UID               string            `json:"uid"`
	Name              string            `json:"name"`
	CompetitionStatus CompetitionStatus `json:"competition_status"`
}

// CompetitionStatus is the bracket summary served on GET /competition and
// embedded in "registered" frames.
type CompetitionStatus struct {
	State       string  `json:"state"`
	Round       int     `json:"round"`
	TotalRounds int     `json:"total_rounds"`
	Players     int     `json:"players"`
	Required    int     `json:"required"`
	Champion    *string `json:"champion"`
	PointsToWin int     `json:"points_to_win"`
	ByePlayer   *string `json:"bye_player"`
	ResetIn     int     `json:"reset_in"`
}
