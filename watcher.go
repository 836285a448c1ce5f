package main

import (
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// WatchSettingsFile reloads the server configuration whenever the settings file
// changes on disk. Invalid edits are logged and ignored; the running
// configuration stays as it was. The watch covers the parent directory
// because editors typically replace the file rather than write in place.
func WatchSettingsFile(srv *Server, path string) (*fsnotify.Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(abs) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloadSettingsFile(srv, abs)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("settings file watcher error", "err", err)
			}
		}
	}()

	log.Info("watching settings file for changes", "path", abs)
	return watcher, nil
}

func reloadSettingsFile(srv *Server, path string) {
	settings, err := LoadSettingsFile(path)
	if err != nil {
		log.Error("settings file reload failed", "path", path, "err", err)
		return
	}
	if err := settings.Validate(); err != nil {
		log.Error("settings file rejected, keeping current settings", "path", path, "err", err)
		return
	}
	cfg := DefaultConfig()
	settings.Apply(cfg)
	srv.ReloadConfig(cfg)
	log.Info("settings reloaded", "path", path,
		"arenas", cfg.Arenas, "points_to_win", cfg.PointsToWin, "speed", cfg.Speed)
}
