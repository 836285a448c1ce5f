package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// How often an unseated bot polls for an open competition. Package var
// so tests can shrink it.
var botPollInterval = 5 * time.Second

// Bot is an in-process competition player. It registers over the same
// websocket endpoint as external clients, so it exercises the full
// protocol path rather than a shortcut into the room layer.
type Bot struct {
	Name       string
	baseURL    string
	difficulty int

	uid      string
	playerID int
	lastDir  Direction
}

// NewBot creates a bot. Difficulty 1..10 scales how often it plays the
// best available move instead of a random safe one.
func NewBot(baseURL string, difficulty int) *Bot {
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 10 {
		difficulty = 10
	}
	return &Bot{
		Name:       fmt.Sprintf("CopperBot L%d", difficulty),
		baseURL:    baseURL,
		difficulty: difficulty,
		lastDir:    DirRight,
	}
}

// SpawnBots launches n bots against the server's own address.
func SpawnBots(srv *Server, n int) {
	url := srv.BotURL()
	if url == "" {
		log.Warn("bot spawn skipped, no server url configured")
		return
	}
	for i := 0; i < n; i++ {
		bot := NewBot(url, 1+randIntn(10))
		go bot.Run()
	}
	log.Info("bots dispatched", "count", n)
}

// SpawnBotPair dials two bots at once, so an observer with nobody to
// watch gets a match.
func SpawnBotPair(srv *Server) {
	url := srv.BotURL()
	if url == "" {
		return
	}
	for i := 0; i < 2; i++ {
		bot := NewBot(url, 1+randIntn(10))
		go bot.Run()
	}
	log.Info("bot pair dispatched for observers")
}

// botFrame is the inbound envelope. Winner stays raw because gameover
// carries a number and match_complete an object.
type botFrame struct {
	Type     string          `json:"type"`
	RoomID   int             `json:"room_id"`
	PlayerID int             `json:"player_id"`
	Game     *GameSnapshot   `json:"game"`
	Winner   json.RawMessage `json:"winner"`
}

// Run drives the bot's whole life: wait for an open competition,
// register, then play until eliminated or the competition ends.
func (b *Bot) Run() {
	if !b.waitForOpenCompetition() {
		return
	}

	wsURL := strings.Replace(b.baseURL, "http", "ws", 1) + "/ws/compete"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error("bot dial failed", "bot", b.Name, "err", err)
		return
	}
	defer ws.Close()

	if err := ws.WriteJSON(NameMessage{Name: b.Name}); err != nil {
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame botFrame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		switch frame.Type {
		case MsgRegistered:
			var reg RegisteredMessage
			if json.Unmarshal(data, &reg) == nil {
				b.uid = reg.UID
			}
			log.Debug("bot registered", "bot", b.Name, "uid", b.uid)

		case MsgMatchAssigned:
			b.playerID = frame.PlayerID
			b.lastDir = DirRight
			if b.playerID == 2 {
				b.lastDir = DirLeft
			}
			log.Debug("bot seated", "bot", b.Name, "room", frame.RoomID, "slot", frame.PlayerID)

		case MsgState:
			if frame.Game == nil || !frame.Game.Running {
				continue
			}
			dir, ok := b.chooseMove(frame.Game)
			if !ok {
				continue
			}
			b.lastDir = dir
			_ = ws.WriteJSON(ClientMessage{Action: ActionMove, Direction: dir.String()})

		case MsgGameOver:
			_ = ws.WriteJSON(ClientMessage{Action: ActionReady, Name: b.Name})

		case MsgMatchComplete:
			var mc MatchCompleteMessage
			if json.Unmarshal(data, &mc) == nil && mc.Winner.PlayerID != b.playerID {
				log.Debug("bot eliminated", "bot", b.Name)
				return
			}

		case MsgCompetitionComplete, MsgError:
			return
		}
	}
}

func (b *Bot) waitForOpenCompetition() bool {
	client := &http.Client{Timeout: 3 * time.Second}
	for attempts := 0; attempts < 120; attempts++ {
		resp, err := client.Get(b.baseURL + "/competition")
		if err == nil {
			var status CompetitionStatus
			decodeErr := json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if decodeErr == nil && status.State == StateWaitingForPlayers.String() {
				return true
			}
		}
		time.Sleep(botPollInterval)
	}
	log.Warn("bot gave up waiting for a competition", "bot", b.Name)
	return false
}

// chooseMove picks a direction: usually the safe move that closes on
// food, sometimes a random safe one. Higher difficulty means fewer
// random picks.
func (b *Bot) chooseMove(g *GameSnapshot) (Direction, bool) {
	me, ok := g.Snakes[b.playerID]
	if !ok || !me.Alive || len(me.Body) == 0 {
		return 0, false
	}
	head := me.Body[0]

	occupied := make(map[Cell]bool)
	for _, s := range g.Snakes {
		if !s.Alive {
			continue
		}
		for i, c := range s.Body {
			// A tail cell vacates on the same tick, so it is fair game.
			if s.PlayerID == me.PlayerID && i == len(s.Body)-1 {
				continue
			}
			occupied[c] = true
		}
	}

	cur := me.Direction
	var safe []Direction
	for _, dir := range []Direction{DirUp, DirDown, DirLeft, DirRight} {
		if dir == cur.Opposite() {
			continue
		}
		dx, dy := dir.Vec()
		next := Cell{X: head.X + dx, Y: head.Y + dy}
		if next.X < 0 || next.X >= g.Grid.Width || next.Y < 0 || next.Y >= g.Grid.Height {
			continue
		}
		if occupied[next] {
			continue
		}
		safe = append(safe, dir)
	}
	if len(safe) == 0 {
		return 0, false
	}

	if randIntn(10) >= b.difficulty {
		return safe[randIntn(len(safe))], true
	}

	best := safe[0]
	bestDist := 1 << 30
	for _, dir := range safe {
		dx, dy := dir.Vec()
		next := Cell{X: head.X + dx, Y: head.Y + dy}
		d := nearestFoodDistance(next, g.Foods)
		if d < bestDist {
			bestDist = d
			best = dir
		}
	}
	return best, true
}

func nearestFoodDistance(from Cell, foods []FoodSnapshot) int {
	best := 1 << 30
	for _, f := range foods {
		d := abs(from.X-f.X) + abs(from.Y-f.Y)
		if d < best {
			best = d
		}
	}
	if best == 1<<30 {
		return 0
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
