package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"reelpost/internal/distribution"
	"reelpost/internal/storage"
)

var ErrNotFound = errors.New("video not found")

type Entry struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	Path          string                  `json:"path"`
	FileName      string                  `json:"fileName"`
	CreatedAt     time.Time               `json:"createdAt"`
	Platforms     []distribution.Platform `json:"platforms"`
	ArchiveObject string                  `json:"archiveObject,omitempty"`
}

func (e Entry) PublishedTo(p distribution.Platform) bool {
	return slices.Contains(e.Platforms, p)
}

type file struct {
	Videos map[string]Entry `json:"videos"`
}

// Catalog is the durable registry of finished videos.
type Catalog struct {
	doc *storage.Document[file]
}

func New(path string) *Catalog {
	return &Catalog{doc: storage.NewDocument[file](path)}
}

// Create registers a finished video under id vid_<ms>.
func (c *Catalog) Create(title, path string, now time.Time) (Entry, error) {
	entry := Entry{
		ID:        fmt.Sprintf("vid_%d", now.UnixMilli()),
		Title:     title,
		Path:      path,
		FileName:  filepath.Base(path),
		CreatedAt: now.UTC(),
		Platforms: []distribution.Platform{},
	}

	err := c.doc.Update(func(f *file) (bool, error) {
		if f.Videos == nil {
			f.Videos = make(map[string]Entry)
		}
		for {
			if _, taken := f.Videos[entry.ID]; !taken {
				break
			}
			entry.ID += "x"
		}
		f.Videos[entry.ID] = entry
		return true, nil
	})
	if err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// List returns entries oldest first.
func (c *Catalog) List() ([]Entry, error) {
	f, err := c.doc.Read()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(f.Videos))
	for _, e := range f.Videos {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(a, b int) bool {
		if !entries[a].CreatedAt.Equal(entries[b].CreatedAt) {
			return entries[a].CreatedAt.Before(entries[b].CreatedAt)
		}
		return entries[a].ID < entries[b].ID
	})
	return entries, nil
}

func (c *Catalog) Get(id string) (Entry, error) {
	f, err := c.doc.Read()
	if err != nil {
		return Entry{}, err
	}

	e, ok := f.Videos[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (c *Catalog) MarkPublished(id string, platform distribution.Platform) error {
	return c.doc.Update(func(f *file) (bool, error) {
		e, ok := f.Videos[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if e.PublishedTo(platform) {
			return false, nil
		}
		e.Platforms = append(e.Platforms, platform)
		f.Videos[id] = e
		return true, nil
	})
}

// MarkPublishedByPath appends platform to every entry backed by path. It
// reports whether any entry matched; scheduled jobs only know the file.
func (c *Catalog) MarkPublishedByPath(path string, platform distribution.Platform) (bool, error) {
	matched := false
	err := c.doc.Update(func(f *file) (bool, error) {
		changed := false
		for id, e := range f.Videos {
			if e.Path != path {
				continue
			}
			matched = true
			if e.PublishedTo(platform) {
				continue
			}
			e.Platforms = append(e.Platforms, platform)
			f.Videos[id] = e
			changed = true
		}
		return changed, nil
	})
	return matched, err
}

func (c *Catalog) SetArchiveObject(id, object string) error {
	return c.doc.Update(func(f *file) (bool, error) {
		e, ok := f.Videos[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		e.ArchiveObject = object
		f.Videos[id] = e
		return true, nil
	})
}

// Delete removes the entry and then its backing file. A file that is
// already gone is not an error.
func (c *Catalog) Delete(id string) (Entry, error) {
	var removed Entry
	err := c.doc.Update(func(f *file) (bool, error) {
		e, ok := f.Videos[id]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		removed = e
		delete(f.Videos, id)
		return true, nil
	})
	if err != nil {
		return Entry{}, err
	}

	if err := os.Remove(removed.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return removed, fmt.Errorf("failed to remove video file: %w", err)
	}

	return removed, nil
}
