package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietConfig disables fruit spawning so engine tests see only the
// snakes they set up.
func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Fruits = map[string]FruitSpec{}
	return cfg
}

func placeSnake(g *Game, id int, dir Direction, body ...Cell) *Snake {
	s := &Snake{
		PlayerID: id,
		Body:     body,
		Dir:      dir,
		NextDir:  dir,
		Alive:    true,
		Buff:     "default",
		prevHead: body[0],
	}
	g.Snakes[id] = s
	return s
}

func TestHeadOnSameCellIsDraw(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirRight, Cell{4, 5})
	placeSnake(g, 2, DirLeft, Cell{6, 5})
	g.Running = true

	g.Step()

	assert.False(t, g.Running)
	assert.False(t, g.Snakes[1].Alive)
	assert.False(t, g.Snakes[2].Alive)
	assert.Equal(t, 0, g.Winner)
}

func TestSwappedHeadsIsHeadOn(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirRight, Cell{5, 5}, Cell{4, 5})
	placeSnake(g, 2, DirLeft, Cell{6, 5}, Cell{7, 5})
	g.Running = true

	g.Step()

	assert.False(t, g.Snakes[1].Alive)
	assert.False(t, g.Snakes[2].Alive)
	assert.False(t, g.Running)
	assert.Equal(t, 0, g.Winner)
}

func TestAdjacentHeadsCrossingIsHeadOn(t *testing.T) {
	cfg := quietConfig()
	cfg.GridWidth, cfg.GridHeight = 10, 10
	g := NewGame(cfg)
	// Single-cell snakes that pass through each other in one tick.
	placeSnake(g, 1, DirRight, Cell{4, 5})
	placeSnake(g, 2, DirLeft, Cell{5, 5})
	g.Running = true

	g.Step()

	assert.False(t, g.Snakes[1].Alive)
	assert.False(t, g.Snakes[2].Alive)
	assert.False(t, g.Running)
	assert.Equal(t, 0, g.Winner)
}

func TestWallCollisionLosesGame(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirLeft, Cell{0, 5})
	placeSnake(g, 2, DirRight, Cell{10, 10})
	g.Running = true

	g.Step()

	assert.False(t, g.Snakes[1].Alive)
	assert.True(t, g.Snakes[2].Alive)
	assert.False(t, g.Running)
	assert.Equal(t, 2, g.Winner)
}

func TestSelfCollision(t *testing.T) {
	g := NewGame(quietConfig())
	// A right then down hook steers the head back into its own body.
	s := placeSnake(g, 1, DirUp,
		Cell{5, 5}, Cell{5, 6}, Cell{6, 6}, Cell{7, 6}, Cell{7, 5})
	s.QueueDirection(DirRight)
	s.QueueDirection(DirDown)
	placeSnake(g, 2, DirRight, Cell{20, 10})
	g.Running = true

	g.Step() // right to (6,5)
	require.True(t, g.Running)
	g.Step() // down to (6,6): own body

	assert.False(t, g.Snakes[1].Alive)
	assert.Equal(t, 2, g.Winner)
}

func TestTiebreakLongerBodyWins(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirLeft, Cell{0, 1}, Cell{1, 1})
	placeSnake(g, 2, DirLeft, Cell{0, 3})
	g.Running = true

	g.Step()

	assert.False(t, g.Snakes[1].Alive)
	assert.False(t, g.Snakes[2].Alive)
	assert.Equal(t, 1, g.Winner)
}

func TestTiebreakTurnerLoses(t *testing.T) {
	g := NewGame(quietConfig())
	s1 := placeSnake(g, 1, DirRight, Cell{3, 0})
	s1.QueueDirection(DirUp)
	placeSnake(g, 2, DirLeft, Cell{0, 5})
	g.Running = true

	g.Step()

	assert.False(t, g.Snakes[1].Alive)
	assert.False(t, g.Snakes[2].Alive)
	assert.Equal(t, 2, g.Winner)
}

func TestQueueRejectsReversalAndDuplicate(t *testing.T) {
	s := newSnake(1, Cell{5, 5}, DirRight)

	s.QueueDirection(DirLeft) // reversal of travel
	assert.Empty(t, s.queue)
	s.QueueDirection(DirRight) // same as travel
	assert.Empty(t, s.queue)

	s.QueueDirection(DirUp)
	s.QueueDirection(DirDown) // reversal of last queued
	assert.Equal(t, []Direction{DirUp}, s.queue)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	s := newSnake(1, Cell{5, 5}, DirRight)
	s.QueueDirection(DirUp)
	s.QueueDirection(DirRight)
	s.QueueDirection(DirUp)
	s.QueueDirection(DirRight)

	require.Len(t, s.queue, MaxQueuedInputs)
	assert.Equal(t, []Direction{DirRight, DirUp, DirRight}, s.queue)
}

func TestDoubleTapCannotReverseAcrossTicks(t *testing.T) {
	g := NewGame(quietConfig())
	s := placeSnake(g, 1, DirRight, Cell{5, 5}, Cell{4, 5})
	placeSnake(g, 2, DirRight, Cell{20, 10})
	g.Running = true

	// A reversal is only reachable through an intermediate turn, one
	// tick apart, so the head never backs into its own neck.
	s.QueueDirection(DirUp)
	s.QueueDirection(DirLeft)

	g.Step()
	assert.Equal(t, DirUp, s.Dir)
	g.Step()
	assert.Equal(t, DirLeft, s.Dir)
	assert.True(t, s.Alive)
}

func TestAppleGrowsEater(t *testing.T) {
	g := NewGame(quietConfig())
	s1 := placeSnake(g, 1, DirRight, Cell{5, 5})
	placeSnake(g, 2, DirRight, Cell{20, 10})
	g.Foods = append(g.Foods, &Fruit{X: 6, Y: 5, Type: "apple", Lifetime: -1})
	g.Running = true

	g.Step()

	assert.Len(t, s1.Body, 2)
	assert.Equal(t, Cell{6, 5}, s1.Head())
	assert.Empty(t, g.Foods)
	assert.True(t, g.Running)
	// Eating restarts the spawn clock; the tick after the meal still
	// advanced it once.
	assert.Equal(t, 1, g.ticksSinceFruit)
}

func TestGrapesGrowEaterAndShrinkOpponent(t *testing.T) {
	g := NewGame(quietConfig())
	s1 := placeSnake(g, 1, DirRight, Cell{5, 5})
	s2 := placeSnake(g, 2, DirRight, Cell{20, 10}, Cell{19, 10}, Cell{18, 10})
	g.Foods = append(g.Foods, &Fruit{X: 6, Y: 5, Type: "grapes", Lifetime: -1})
	g.Running = true

	g.Step()

	assert.Len(t, s1.Body, 2)
	// Opponent loses a tail segment before moving, then moves without
	// growing: still down one.
	assert.Len(t, s2.Body, 2)
}

func TestGrapesNeverShrinkBelowOne(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirRight, Cell{5, 5})
	s2 := placeSnake(g, 2, DirRight, Cell{20, 10})
	g.Foods = append(g.Foods, &Fruit{X: 6, Y: 5, Type: "grapes", Lifetime: -1})
	g.Running = true

	g.Step()

	assert.Len(t, s2.Body, 1)
	assert.True(t, s2.Alive)
}

func TestFirstFruitSpawnsImmediately(t *testing.T) {
	g := NewGame(DefaultConfig())
	placeSnakesApart(g)
	g.Running = true

	g.Step()

	require.Len(t, g.Foods, 1)
	assert.Equal(t, "apple", g.Foods[0].Type)
	assert.Equal(t, -1, g.Foods[0].Lifetime)
}

func placeSnakesApart(g *Game) {
	placeSnake(g, 1, DirRight, Cell{5, 5})
	placeSnake(g, 2, DirLeft, Cell{24, 14})
}

func TestFruitCapHoldsAtMaxFruits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FruitInterval = 1
	g := NewGame(cfg)
	placeSnakesApart(g)
	g.Running = true

	for i := 0; i < 10; i++ {
		g.Step()
	}
	assert.Len(t, g.Foods, cfg.MaxFruits)
}

func TestZeroPropensityNeverSpawns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fruits["apple"] = FruitSpec{Propensity: 0}
	cfg.FruitInterval = 1
	g := NewGame(cfg)
	placeSnakesApart(g)
	g.Running = true

	for i := 0; i < 50; i++ {
		g.Step()
	}
	assert.Empty(t, g.Foods)
}

func TestFiniteFruitExpires(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnakesApart(g)
	g.Foods = append(g.Foods, &Fruit{X: 10, Y: 10, Type: "cherry", Lifetime: 2})
	g.Running = true

	g.Step()
	require.Len(t, g.Foods, 1)
	assert.Equal(t, 1, g.Foods[0].Lifetime)
	g.Step()
	assert.Empty(t, g.Foods)
}

func TestFruitPassRunsOnTerminalTick(t *testing.T) {
	g := NewGame(quietConfig())
	placeSnake(g, 1, DirLeft, Cell{0, 5})
	placeSnake(g, 2, DirRight, Cell{10, 10})
	g.Foods = append(g.Foods, &Fruit{X: 15, Y: 15, Type: "lemon", Lifetime: 1})
	g.Running = true

	g.Step()

	assert.False(t, g.Running)
	assert.Empty(t, g.Foods, "fruit lifecycle must run on the tick the game ends")
}

func TestSnapshotMasksLifetimeOutsideWarning(t *testing.T) {
	cfg := quietConfig()
	cfg.FruitWarning = 20
	g := NewGame(cfg)
	g.Foods = append(g.Foods,
		&Fruit{X: 1, Y: 1, Type: "apple", Lifetime: -1},
		&Fruit{X: 2, Y: 2, Type: "cherry", Lifetime: 25},
		&Fruit{X: 3, Y: 3, Type: "lemon", Lifetime: 5},
	)

	snap := g.Snapshot()

	require.Len(t, snap.Foods, 3)
	assert.Nil(t, snap.Foods[0].Lifetime)
	assert.Nil(t, snap.Foods[1].Lifetime)
	require.NotNil(t, snap.Foods[2].Lifetime)
	assert.Equal(t, 5, *snap.Foods[2].Lifetime)
}

func TestSnapshotWire(t *testing.T) {
	g := NewGame(quietConfig())
	g.Running = true

	data, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Two-player snapshots key snakes by the string slot numbers.
	snakes, ok := decoded["snakes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, snakes, "1")
	assert.Contains(t, snakes, "2")
	assert.Nil(t, decoded["winner"])

	s1 := snakes["1"].(map[string]any)
	assert.Equal(t, "right", s1["direction"])
	body := s1["body"].([]any)
	head := body[0].([]any)
	assert.Len(t, head, 2)
}

func TestCellJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Cell{7, 3})
	require.NoError(t, err)
	assert.JSONEq(t, "[7,3]", string(data))

	var c Cell
	require.NoError(t, json.Unmarshal([]byte("[4,9]"), &c))
	assert.Equal(t, Cell{4, 9}, c)
}

func TestDirectionParsing(t *testing.T) {
	for _, s := range []string{"up", "down", "left", "right"} {
		d, ok := ParseDirection(s)
		require.True(t, ok, s)
		assert.Equal(t, s, d.String())
	}
	_, ok := ParseDirection("diagonal")
	assert.False(t, ok)
}
