package main

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
)

var errInvalidDirection = errors.New("invalid direction")

// Direction is a direction in which a snake can travel.
type Direction int

// Valid directions.
const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	}
	return "right"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	dir, ok := ParseDirection(string(b))
	if !ok {
		return errInvalidDirection
	}
	*d = dir
	return nil
}

// ParseDirection maps the wire strings "up"/"down"/"left"/"right".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return DirUp, true
	case "down":
		return DirDown, true
	case "left":
		return DirLeft, true
	case "right":
		return DirRight, true
	}
	return 0, false
}

// Opposite returns the reverse direction. The involution is fixed:
// up<->down, left<->right.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	}
	return DirLeft
}

// Vec returns the unit step for the direction. Origin is top-left and
// y grows downward.
func (d Direction) Vec() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	}
	return 1, 0
}

// Cell is a grid coordinate. It is encoded on the wire as a two-element
// [x, y] array.
type Cell struct {
	X, Y int
}

func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.X, c.Y})
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	var xy [2]int
	if err := json.Unmarshal(b, &xy); err != nil {
		return err
	}
	c.X, c.Y = xy[0], xy[1]
	return nil
}

// Add returns the cell one step away in direction d.
func (c Cell) Add(d Direction) Cell {
	dx, dy := d.Vec()
	return Cell{c.X + dx, c.Y + dy}
}

// MaxQueuedInputs bounds the per-snake input queue so clients cannot
// flood moves faster than the tick consumes them.
const MaxQueuedInputs = 3

// Snake is one player's snake inside an arena. Body is head-first.
type Snake struct {
	PlayerID int
	Body     []Cell
	Dir      Direction
	NextDir  Direction
	Alive    bool
	Buff     string

	queue      []Direction
	changedDir bool
	prevHead   Cell
}

func newSnake(playerID int, start Cell, dir Direction) *Snake {
	return &Snake{
		PlayerID: playerID,
		Body:     []Cell{start},
		Dir:      dir,
		NextDir:  dir,
		Alive:    true,
		Buff:     "default",
		prevHead: start,
	}
}

// Head returns the snake's head cell.
func (s *Snake) Head() Cell {
	return s.Body[0]
}

// QueueDirection queues a direction change. The change is dropped when it
// equals or reverses the last queued direction (or NextDir when the queue
// is empty), so a double-tap can never reverse the snake within one tick.
// When the queue is full the oldest entry is dropped.
func (s *Snake) QueueDirection(d Direction) {
	last := s.NextDir
	if n := len(s.queue); n > 0 {
		last = s.queue[n-1]
	}
	if d == last || d == last.Opposite() {
		return
	}
	s.queue = append(s.queue, d)
	if len(s.queue) > MaxQueuedInputs {
		s.queue = s.queue[1:]
	}
}

// commitInput pops one queued direction into NextDir and records whether
// the travel direction changed this tick (used by the tiebreak).
func (s *Snake) commitInput() {
	old := s.Dir
	if len(s.queue) > 0 {
		d := s.queue[0]
		s.queue = s.queue[1:]
		if d != s.Dir.Opposite() {
			s.NextDir = d
		}
	}
	s.changedDir = s.NextDir != old
}

// move adopts NextDir and advances the head one cell. The tail is kept
// when growing.
func (s *Snake) move(grow bool) {
	s.Dir = s.NextDir
	s.prevHead = s.Head()
	head := s.Head().Add(s.Dir)
	s.Body = append(s.Body, Cell{})
	copy(s.Body[1:], s.Body)
	s.Body[0] = head
	if !grow {
		s.Body = s.Body[:len(s.Body)-1]
	}
}

func (s *Snake) hasCell(c Cell) bool {
	for _, b := range s.Body {
		if b == c {
			return true
		}
	}
	return false
}

// Fruit type identifiers. Only apple and grapes affect play; the rest
// reserve wire vocabulary and spawn purely cosmetically.
var FruitTypes = []string{
	"apple", "orange", "lemon", "grapes", "strawberry",
	"banana", "peach", "cherry", "watermelon", "kiwi",
}

// Fruit is a food item on the grid. Lifetime counts remaining ticks;
// a negative lifetime never expires.
type Fruit struct {
	X, Y     int
	Type     string
	Lifetime int
}

// Game is the state of one snake game inside an arena. It is not safe
// for concurrent use; the owning Room serializes access.
type Game struct {
	Mode    string
	Width   int
	Height  int
	Snakes  map[int]*Snake
	Foods   []*Fruit
	Running bool
	// Winner is 1 or 2 once the game ends with a victor, 0 otherwise
	// (still running, or a draw).
	Winner int

	cfg             *Config
	ticksSinceFruit int
}

// NewGame builds a fresh two-player game on the configured grid. The
// snakes start on different rows so the first tick cannot be a head-on.
func NewGame(cfg *Config) *Game {
	g := &Game{
		Mode:   "two_player",
		Width:  cfg.GridWidth,
		Height: cfg.GridHeight,
		Snakes: map[int]*Snake{
			1: newSnake(1, Cell{5, cfg.GridHeight / 2}, DirRight),
			2: newSnake(2, Cell{cfg.GridWidth - 6, cfg.GridHeight/2 + 1}, DirLeft),
		},
		cfg: cfg,
		// Allow the first fruit to spawn immediately.
		ticksSinceFruit: cfg.FruitInterval,
	}
	return g
}

// Step advances the game exactly one tick: commit inputs, move snakes and
// apply fruit effects, resolve collisions, settle the outcome, then run
// the fruit lifecycle. The fruit pass runs even on the terminal tick.
func (g *Game) Step() {
	if g.Running {
		g.moveSnakes()
		g.resolveCollisions()
		g.resolveOutcome()
	}
	g.stepFruits()
}

// snakeIDs returns player ids in ascending order so each tick visits
// snakes deterministically.
func (g *Game) snakeIDs() []int {
	ids := make([]int, 0, len(g.Snakes))
	for id := range g.Snakes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (g *Game) moveSnakes() {
	for _, id := range g.snakeIDs() {
		s := g.Snakes[id]
		if !s.Alive {
			continue
		}
		s.commitInput()
		newHead := s.Head().Add(s.NextDir)

		grow := false
		if f := g.foodAt(newHead); f != nil {
			switch f.Type {
			case "apple":
				grow = true
			case "grapes":
				grow = true
				for _, other := range g.Snakes {
					if other.PlayerID != s.PlayerID && len(other.Body) > 1 {
						other.Body = other.Body[:len(other.Body)-1]
					}
				}
			}
			g.removeFoodAt(newHead)
			g.ticksSinceFruit = 0
		}
		s.move(grow)
	}
}

func (g *Game) resolveCollisions() {
	for _, id := range g.snakeIDs() {
		s := g.Snakes[id]
		if !s.Alive {
			continue
		}
		head := s.Head()
		if head.X < 0 || head.X >= g.Width || head.Y < 0 || head.Y >= g.Height {
			s.Alive = false
		}
		for _, b := range s.Body[1:] {
			if b == head {
				s.Alive = false
				break
			}
		}
		for _, other := range g.Snakes {
			if other.PlayerID != s.PlayerID && other.hasCell(head) {
				s.Alive = false
			}
		}
	}

	// Head-on: same cell, or the two heads crossed paths this tick.
	if len(g.Snakes) == 2 {
		s1, s2 := g.Snakes[1], g.Snakes[2]
		if s1.Alive && s2.Alive && s1.Head() == s2.Head() {
			s1.Alive = false
			s2.Alive = false
		} else if s1.Alive && s2.Alive &&
			s1.Head() == s2.prevHead && s2.Head() == s1.prevHead {
			s1.Alive = false
			s2.Alive = false
		}
	}
}

func (g *Game) resolveOutcome() {
	var alive []*Snake
	for _, id := range g.snakeIDs() {
		if s := g.Snakes[id]; s.Alive {
			alive = append(alive, s)
		}
	}
	if len(alive) > 1 {
		return
	}
	g.Running = false

	if len(alive) == 1 {
		g.Winner = alive[0].PlayerID
		return
	}
	if len(g.Snakes) != 2 {
		g.Winner = 0
		return
	}

	// Both crashed on the same tick. Longer body wins; at equal length the
	// snake that turned this tick loses; otherwise it is a draw.
	s1, s2 := g.Snakes[1], g.Snakes[2]
	switch {
	case len(s1.Body) > len(s2.Body):
		g.Winner = s1.PlayerID
	case len(s2.Body) > len(s1.Body):
		g.Winner = s2.PlayerID
	case s1.changedDir && !s2.changedDir:
		g.Winner = s2.PlayerID
	case s2.changedDir && !s1.changedDir:
		g.Winner = s1.PlayerID
	default:
		g.Winner = 0
	}
}

func (g *Game) foodAt(c Cell) *Fruit {
	for _, f := range g.Foods {
		if f.X == c.X && f.Y == c.Y {
			return f
		}
	}
	return nil
}

func (g *Game) removeFoodAt(c Cell) {
	kept := g.Foods[:0]
	for _, f := range g.Foods {
		if f.X != c.X || f.Y != c.Y {
			kept = append(kept, f)
		}
	}
	g.Foods = kept
}

// stepFruits ages fruit, expires the finite ones, and spawns a replacement
// when the interval has elapsed and the arena is under its fruit cap.
func (g *Game) stepFruits() {
	g.ticksSinceFruit++
	kept := g.Foods[:0]
	for _, f := range g.Foods {
		if f.Lifetime > 0 {
			f.Lifetime--
			if f.Lifetime == 0 {
				continue
			}
		}
		kept = append(kept, f)
	}
	g.Foods = kept
	g.spawnFruitIfNeeded()
}

func (g *Game) spawnFruitIfNeeded() {
	if len(g.Foods) >= g.cfg.MaxFruits {
		return
	}
	if g.ticksSinceFruit < g.cfg.FruitInterval {
		return
	}
	typ, ok := g.chooseFruitType()
	if !ok {
		return
	}
	free := g.freeCells()
	if len(free) == 0 {
		return
	}
	cell := free[randIntn(len(free))]
	lifetime := g.cfg.Fruits[typ].Lifetime
	if lifetime <= 0 {
		lifetime = -1
	}
	g.Foods = append(g.Foods, &Fruit{X: cell.X, Y: cell.Y, Type: typ, Lifetime: lifetime})
	g.ticksSinceFruit = 0
}

// chooseFruitType weighted-samples over the configured propensities.
// Types are visited in their canonical order so equal seeds give equal
// picks.
func (g *Game) chooseFruitType() (string, bool) {
	total := 0
	for _, typ := range FruitTypes {
		if p := g.cfg.Fruits[typ].Propensity; p > 0 {
			total += p
		}
	}
	if total == 0 {
		return "", false
	}
	r := randIntn(total)
	for _, typ := range FruitTypes {
		p := g.cfg.Fruits[typ].Propensity
		if p <= 0 {
			continue
		}
		if r < p {
			return typ, true
		}
		r -= p
	}
	return "", false
}

func (g *Game) freeCells() []Cell {
	occupied := make(map[Cell]bool)
	for _, s := range g.Snakes {
		for _, b := range s.Body {
			occupied[b] = true
		}
	}
	for _, f := range g.Foods {
		occupied[Cell{f.X, f.Y}] = true
	}
	free := make([]Cell, 0, g.Width*g.Height-len(occupied))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if c := (Cell{x, y}); !occupied[c] {
				free = append(free, c)
			}
		}
	}
	return free
}

// Snapshot builds the wire representation of the game. Fruit lifetimes
// are only reported inside the configured warning window.
func (g *Game) Snapshot() GameSnapshot {
	snakes := make(map[int]SnakeSnapshot, len(g.Snakes))
	for id, s := range g.Snakes {
		body := make([]Cell, len(s.Body))
		copy(body, s.Body)
		snakes[id] = SnakeSnapshot{
			PlayerID:  s.PlayerID,
			Body:      body,
			Direction: s.Dir,
			Alive:     s.Alive,
			Buff:      s.Buff,
		}
	}
	foods := make([]FoodSnapshot, 0, len(g.Foods))
	for _, f := range g.Foods {
		snap := FoodSnapshot{X: f.X, Y: f.Y, Type: f.Type}
		if f.Lifetime > 0 && f.Lifetime <= g.cfg.FruitWarning {
			remaining := f.Lifetime
			snap.Lifetime = &remaining
		}
		foods = append(foods, snap)
	}
	var winner *int
	if g.Winner != 0 {
		w := g.Winner
		winner = &w
	}
	return GameSnapshot{
		Mode:    g.Mode,
		Grid:    GridInfo{Width: g.Width, Height: g.Height},
		Snakes:  snakes,
		Foods:   foods,
		Running: g.Running,
		Winner:  winner,
	}
}

// Swappable in tests for deterministic fruit placement.
var randIntn = rand.Intn
