package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(t *testing.T) {
	t.Helper()
	old := randIntn
	randIntn = func(int) int { return 0 }
	t.Cleanup(func() { randIntn = old })
}

func snapshotFor(snakes map[int]SnakeSnapshot, foods ...FoodSnapshot) *GameSnapshot {
	return &GameSnapshot{
		Mode:    "two_player",
		Grid:    GridInfo{Width: 10, Height: 10},
		Snakes:  snakes,
		Foods:   foods,
		Running: true,
	}
}

func TestBotNeverPicksWallOrBody(t *testing.T) {
	fixedRand(t)
	bot := NewBot("http://127.0.0.1:8765", 10)
	bot.playerID = 1

	// Cornered at the origin, travelling up: only right remains.
	g := snapshotFor(map[int]SnakeSnapshot{
		1: {PlayerID: 1, Body: []Cell{{0, 0}, {0, 1}}, Direction: DirUp, Alive: true},
		2: {PlayerID: 2, Body: []Cell{{5, 5}}, Direction: DirLeft, Alive: true},
	})

	dir, ok := bot.chooseMove(g)
	require.True(t, ok)
	assert.Equal(t, DirRight, dir)
}

func TestBotClosesOnFood(t *testing.T) {
	fixedRand(t)
	bot := NewBot("http://127.0.0.1:8765", 10)
	bot.playerID = 1

	g := snapshotFor(map[int]SnakeSnapshot{
		1: {PlayerID: 1, Body: []Cell{{5, 5}}, Direction: DirRight, Alive: true},
		2: {PlayerID: 2, Body: []Cell{{1, 1}}, Direction: DirLeft, Alive: true},
	}, FoodSnapshot{X: 5, Y: 8, Type: "apple"})

	dir, ok := bot.chooseMove(g)
	require.True(t, ok)
	assert.Equal(t, DirDown, dir)
}

func TestBotGivesUpWhenBoxedIn(t *testing.T) {
	fixedRand(t)
	bot := NewBot("http://127.0.0.1:8765", 10)
	bot.playerID = 1

	// Head in the corner with the opponent blocking both exits.
	g := snapshotFor(map[int]SnakeSnapshot{
		1: {PlayerID: 1, Body: []Cell{{0, 0}, {0, 1}}, Direction: DirUp, Alive: true},
		2: {PlayerID: 2, Body: []Cell{{1, 0}, {1, 1}}, Direction: DirDown, Alive: true},
	})

	_, ok := bot.chooseMove(g)
	assert.False(t, ok)
}

func TestBotNameAndBounds(t *testing.T) {
	assert.Equal(t, "CopperBot L3", NewBot("", 3).Name)
	assert.Equal(t, "CopperBot L1", NewBot("", -4).Name)
	assert.Equal(t, "CopperBot L10", NewBot("", 99).Name)
}
