package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors emit for one save.
const reloadDebounce = 250 * time.Millisecond

// Store holds the active lexicon. Readers always see a complete, validated
// lexicon; reloads swap the whole value.
type Store struct {
	current atomic.Pointer[Lexicon]
	logger  *slog.Logger
}

// NewStore creates a store serving l.
func NewStore(l *Lexicon, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	s.current.Store(l)
	return s
}

// Current returns the active lexicon.
func (s *Store) Current() *Lexicon {
	return s.current.Load()
}

// Swap replaces the active lexicon.
func (s *Store) Swap(l *Lexicon) {
	s.current.Store(l)
}

// Reload reads path and swaps it in. The active lexicon is kept on error.
func (s *Store) Reload(path string) error {
	l, err := Load(path)
	if err != nil {
		return err
	}
	s.Swap(l)
	s.logger.Info("Lexicon reloaded", "path", path, "version", l.Version)
	return nil
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so atomic-rename saves are picked up.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create lexicon watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resolve lexicon path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch lexicon directory: %w", err)
	}

	go s.watchLoop(ctx, watcher, abs)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Debug("failed to close lexicon watcher", "error", err)
		}
	}()

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Lexicon watcher error", "error", err)
		case <-timer.C:
			if err := s.Reload(path); err != nil {
				s.logger.Warn("Lexicon reload rejected, keeping previous version", "path", path, "error", err)
			}
		}
	}
}
