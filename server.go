package main

import (
	"sync"

	"github.com/charmbracelet/log"
)

// ServerVersion is reported on GET /status.
const ServerVersion = "3.5.1"

// Server owns the configuration and wires the room manager and the
// competition together.
type Server struct {
	mu     sync.RWMutex
	cfg    *Config
	botURL string

	rooms *RoomManager
	comp  *Competition
}

// NewServer builds a server around cfg.
func NewServer(cfg *Config) *Server {
	s := &Server{cfg: cfg}
	s.rooms = NewRoomManager(s)
	s.comp = NewCompetition(s)
	return s
}

// Config returns the active configuration. The returned value is
// replaced wholesale on reload, never mutated in place.
func (s *Server) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetBotURL records the base HTTP URL in-process bots dial back to.
func (s *Server) SetBotURL(u string) {
	s.mu.Lock()
	s.botURL = u
	s.mu.Unlock()
}

// BotURL returns the base URL for in-process bots.
func (s *Server) BotURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botURL
}

// ReloadConfig swaps in a new configuration and restarts the competition
// so the new settings take effect from a clean bracket.
func (s *Server) ReloadConfig(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.Info("config reloaded",
		"arenas", cfg.Arenas,
		"points_to_win", cfg.PointsToWin,
		"grid", cfg.GridWidth, "x", cfg.GridHeight)
	s.comp.StartWaiting()
}
