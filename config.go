package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSettingsFile is auto-loaded from the working directory when no
// settings file argument is given.
const DefaultSettingsFile = "server-settings.json"

// FruitSpec configures one fruit type. Propensity is its relative spawn
// weight (0 disables spawning); Lifetime is ticks until it expires
// (0 means it never expires).
type FruitSpec struct {
	Propensity int `json:"propensity"`
	Lifetime   int `json:"lifetime"`
}

// Config holds all server tunables. Precedence is CLI flag over settings
// file over default.
type Config struct {
	Arenas      int
	PointsToWin int
	ResetDelay  int
	GridWidth   int
	GridHeight  int
	// Speed is the tick interval in seconds.
	Speed float64
	Bots  int
	Host  string
	Port  int

	FruitWarning  int
	MaxFruits     int
	FruitInterval int
	Fruits        map[string]FruitSpec
}

// DefaultConfig returns the built-in settings: one arena, first to five,
// 30x20 grid, and an apple-only fruit table.
func DefaultConfig() *Config {
	fruits := make(map[string]FruitSpec, len(FruitTypes))
	for _, typ := range FruitTypes {
		fruits[typ] = FruitSpec{}
	}
	fruits["apple"] = FruitSpec{Propensity: 1}
	return &Config{
		Arenas:        1,
		PointsToWin:   5,
		ResetDelay:    10,
		GridWidth:     30,
		GridHeight:    20,
		Speed:         0.15,
		Bots:          0,
		Host:          "0.0.0.0",
		Port:          8765,
		FruitWarning:  20,
		MaxFruits:     1,
		FruitInterval: 40,
		Fruits:        fruits,
	}
}

// TickInterval converts the configured speed into a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Speed * float64(time.Second))
}

// RequiredPlayers is the competition size: two per arena.
func (c *Config) RequiredPlayers() int {
	return c.Arenas * 2
}

// Clone returns a deep copy, so a reload can be validated and applied
// without mutating the running configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Fruits = make(map[string]FruitSpec, len(c.Fruits))
	for typ, fs := range c.Fruits {
		out.Fruits[typ] = fs
	}
	return &out
}

// SettingsFile mirrors the JSON settings file. Pointer fields distinguish
// "absent" from "zero" so a settings file only overrides what it names.
type SettingsFile struct {
	Arenas        *int                 `json:"arenas"`
	PointsToWin   *int                 `json:"points_to_win"`
	ResetDelay    *int                 `json:"reset_delay"`
	GridSize      *string              `json:"grid_size"`
	Speed         *float64             `json:"speed"`
	Bots          *int                 `json:"bots"`
	FruitWarning  *int                 `json:"fruit_warning"`
	MaxFruits     *int                 `json:"max_fruits"`
	FruitInterval *int                 `json:"fruit_interval"`
	Fruits        map[string]FruitSpec `json:"fruits"`
}

// LoadSettingsFile reads and parses a JSON settings file.
func LoadSettingsFile(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings SettingsFile
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return &settings, nil
}

// Validate rejects out-of-range values before a settings file is applied. The
// caller keeps its previous configuration on error.
func (s *SettingsFile) Validate() error {
	if s.Arenas != nil && *s.Arenas < 1 {
		return fmt.Errorf("'arenas' must be a positive integer")
	}
	if s.PointsToWin != nil && *s.PointsToWin < 1 {
		return fmt.Errorf("'points_to_win' must be a positive integer")
	}
	if s.ResetDelay != nil && *s.ResetDelay < 0 {
		return fmt.Errorf("'reset_delay' must be a non-negative integer")
	}
	if s.Speed != nil && *s.Speed <= 0 {
		return fmt.Errorf("'speed' must be a positive number")
	}
	if s.Bots != nil && *s.Bots < 0 {
		return fmt.Errorf("'bots' must be a non-negative integer")
	}
	if s.GridSize != nil {
		if _, _, err := ParseGridSize(*s.GridSize); err != nil {
			return err
		}
	}
	return nil
}

// Apply overlays the file's present fields onto cfg. Unknown fruit types
// are ignored so the wire vocabulary stays fixed.
func (s *SettingsFile) Apply(cfg *Config) {
	if s.Arenas != nil {
		cfg.Arenas = *s.Arenas
	}
	if s.PointsToWin != nil {
		cfg.PointsToWin = *s.PointsToWin
	}
	if s.ResetDelay != nil {
		cfg.ResetDelay = *s.ResetDelay
	}
	if s.Speed != nil {
		cfg.Speed = *s.Speed
	}
	if s.Bots != nil {
		cfg.Bots = *s.Bots
	}
	if s.GridSize != nil {
		if w, h, err := ParseGridSize(*s.GridSize); err == nil {
			cfg.GridWidth = w
			cfg.GridHeight = h
		}
	}
	if s.FruitWarning != nil {
		cfg.FruitWarning = *s.FruitWarning
	}
	if s.MaxFruits != nil {
		cfg.MaxFruits = *s.MaxFruits
	}
	if s.FruitInterval != nil {
		cfg.FruitInterval = *s.FruitInterval
	}
	for typ, fs := range s.Fruits {
		if _, known := cfg.Fruits[typ]; known {
			cfg.Fruits[typ] = fs
		}
	}
}

// ParseGridSize parses "WIDTHxHEIGHT" with a 5x5 minimum.
func ParseGridSize(s string) (w, h int, err error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("'grid_size' must be in format 'WIDTHxHEIGHT'")
	}
	w, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if werr != nil || herr != nil {
		return 0, 0, fmt.Errorf("'grid_size' must be in format 'WIDTHxHEIGHT'")
	}
	if w < 5 || h < 5 {
		return 0, 0, fmt.Errorf("grid dimensions must be at least 5x5")
	}
	return w, h, nil
}
