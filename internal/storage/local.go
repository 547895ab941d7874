package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Workspace is the set of local directories the bot writes into: raw
// downloads go to tempDir, finished videos to videosDir, JSON state to dataDir.
type Workspace struct {
	dataDir   string
	tempDir   string
	videosDir string
}

func NewWorkspace(dataDir, tempDir, videosDir string) *Workspace {
	return &Workspace{
		dataDir:   dataDir,
		tempDir:   tempDir,
		videosDir: videosDir,
	}
}

func (w *Workspace) TempPath(name string) string {
	return filepath.Join(w.tempDir, name)
}

func (w *Workspace) VideoPath(name string) string {
	return filepath.Join(w.videosDir, name)
}

func (w *Workspace) DataPath(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(w.dataDir, name)
}

func (w *Workspace) VideosDir() string {
	return w.videosDir
}

// CleanTemp removes leftover downloads older than maxAge and returns how
// many files were removed.
func (w *Workspace) CleanTemp(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(w.tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(w.tempDir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

func (w *Workspace) EnsureDirectories() error {
	for _, dir := range []string{w.dataDir, w.tempDir, w.videosDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
