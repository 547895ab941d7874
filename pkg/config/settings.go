package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"reelpost/pkg/fsutil"
)

const reloadDebounce = 250 * time.Millisecond

// Settings are the values users can change from chat.
type Settings struct {
	Watermark    string  `json:"watermark"`
	AllowedUsers []int64 `json:"allowedUsers"`
}

type SettingsStore struct {
	path string

	mu  sync.RWMutex
	cur Settings
}

// OpenSettings loads path, seeding it from seed when it does not exist yet.
func OpenSettings(path string, seed Settings) (*SettingsStore, error) {
	s := &SettingsStore{path: path}

	cur, err := readSettings(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cur = cloneSettings(seed)
		if err := s.save(s.cur); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	s.cur = cur
	return s, nil
}

func (s *SettingsStore) Path() string {
	return s.path
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.cur)
}

func (s *SettingsStore) Watermark() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Watermark
}

// IsAllowed reports whether userID may use the bot. An empty list allows everyone.
func (s *SettingsStore) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cur.AllowedUsers) == 0 || slices.Contains(s.cur.AllowedUsers, userID)
}

func (s *SettingsStore) SetWatermark(text string) error {
	return s.update(func(st *Settings) {
		st.Watermark = strings.TrimSpace(text)
	})
}

func (s *SettingsStore) SetAllowedUsers(ids []int64) error {
	return s.update(func(st *Settings) {
		st.AllowedUsers = slices.Clone(ids)
	})
}

func (s *SettingsStore) update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneSettings(s.cur)
	fn(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// Reload re-reads the file. A broken file keeps the previous values.
func (s *SettingsStore) Reload() error {
	next, err := readSettings(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) save(st Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Watch reloads the settings file whenever it changes on disk, until ctx is done.
func (s *SettingsStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := s.Reload(); err != nil {
				slog.Warn("Settings reload failed", "path", s.path, "error", err)
				return
			}
			slog.Info("Settings reloaded", "path", s.path)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	slog.Debug("Settings watcher started", "path", s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}

func readSettings(path string) (Settings, error) {
	var st Settings
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return st, nil
}

func cloneSettings(st Settings) Settings {
	st.AllowedUsers = slices.Clone(st.AllowedUsers)
	return st
}
