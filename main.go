package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Precedence: command-line flag > settings file > built-in default. Flags
// only override when explicitly set.
func newRootCmd() *cobra.Command {
	var (
		arenas      int
		pointsToWin int
		resetDelay  int
		gridSize    string
		speed       float64
		bots        int
		host        string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "copperhead-server [settings-file]",
		Short: "Real-time two-player snake tournament server",
		Long: "copperhead-server hosts head-to-head snake matches and runs a\n" +
			"single-elimination competition across them. Players, observers and\n" +
			"bots connect over websockets; settings load from a JSON settings file\n" +
			"and reload live when it changes.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := DefaultConfig()

			settingsPath := ""
			if len(args) == 1 {
				settingsPath = args[0]
			} else if _, err := os.Stat(DefaultSettingsFile); err == nil {
				settingsPath = DefaultSettingsFile
			}
			if settingsPath != "" {
				settings, err := LoadSettingsFile(settingsPath)
				if err != nil {
					return fmt.Errorf("loading settings file: %w", err)
				}
				if err := settings.Validate(); err != nil {
					return fmt.Errorf("invalid settings file %s: %w", settingsPath, err)
				}
				settings.Apply(cfg)
				log.Info("settings loaded", "path", settingsPath)
			}

			flags := cmd.Flags()
			if flags.Changed("arenas") {
				cfg.Arenas = arenas
			}
			if flags.Changed("points-to-win") {
				cfg.PointsToWin = pointsToWin
			}
			if flags.Changed("reset-delay") {
				cfg.ResetDelay = resetDelay
			}
			if flags.Changed("grid-size") {
				w, h, err := ParseGridSize(gridSize)
				if err != nil {
					return err
				}
				cfg.GridWidth, cfg.GridHeight = w, h
			}
			if flags.Changed("speed") {
				cfg.Speed = speed
			}
			if flags.Changed("bots") {
				cfg.Bots = bots
			}
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if cfg.Arenas < 1 || cfg.PointsToWin < 1 || cfg.Speed <= 0 {
				return fmt.Errorf("invalid settings: arenas=%d points_to_win=%d speed=%v",
					cfg.Arenas, cfg.PointsToWin, cfg.Speed)
			}

			return run(cfg, settingsPath)
		},
	}

	cmd.Flags().IntVar(&arenas, "arenas", 1, "concurrent arenas (competition size is 2x this)")
	cmd.Flags().IntVar(&pointsToWin, "points-to-win", 5, "game wins needed to take a match")
	cmd.Flags().IntVar(&resetDelay, "reset-delay", 10, "seconds between a championship and the next lobby")
	cmd.Flags().StringVar(&gridSize, "grid-size", "30x20", "arena size as WIDTHxHEIGHT")
	cmd.Flags().Float64Var(&speed, "speed", 0.15, "seconds per game tick")
	cmd.Flags().IntVar(&bots, "bots", 0, "bots to auto-spawn into each competition")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen address")
	cmd.Flags().IntVar(&port, "port", 8765, "listen port")

	return cmd
}

func run(cfg *Config, settingsPath string) error {
	srv := NewServer(cfg)

	botHost := cfg.Host
	if botHost == "0.0.0.0" || botHost == "::" {
		botHost = "127.0.0.1"
	}
	srv.SetBotURL(fmt.Sprintf("http://%s:%d", botHost, cfg.Port))

	if settingsPath != "" {
		watcher, err := WatchSettingsFile(srv, settingsPath)
		if err != nil {
			log.Warn("settings file watch unavailable", "err", err)
		} else {
			defer watcher.Close()
		}
	}

	srv.comp.StartWaiting()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Info("copperhead server listening", "addr", addr, "version", ServerVersion,
		"arenas", cfg.Arenas, "points_to_win", cfg.PointsToWin)
	return http.ListenAndServe(addr, srv.Routes())
}
