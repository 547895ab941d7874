package jobs

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"reelpost/internal/storage"
)

type file struct {
	Posts map[string]map[string]Job `json:"posts"`
}

// Store persists pending jobs grouped by owning chat. Every mutation is a
// full read-modify-write of the backing file under one lock, and owners
// with no jobs left are dropped from the file.
type Store struct {
	doc *storage.Document[file]
}

func NewStore(path string) *Store {
	return &Store{doc: storage.NewDocument[file](path)}
}

func (s *Store) Path() string {
	return s.doc.Path()
}

func (s *Store) Put(job Job) error {
	return s.PutAll([]Job{job})
}

// PutAll writes every job in one file write, so a cross-post lands in the
// store whole or not at all.
func (s *Store) PutAll(jobs []Job) error {
	for _, j := range jobs {
		if err := j.validate(); err != nil {
			return fmt.Errorf("invalid job %q: %w", j.ID, err)
		}
	}

	return s.doc.Update(func(f *file) (bool, error) {
		if f.Posts == nil {
			f.Posts = make(map[string]map[string]Job)
		}
		for _, j := range jobs {
			owner := ownerKey(j.OwnerChatID)
			if f.Posts[owner] == nil {
				f.Posts[owner] = make(map[string]Job)
			}
			j.ScheduledAt = j.ScheduledAt.UTC()
			f.Posts[owner][j.ID] = j
		}
		return len(jobs) > 0, nil
	})
}

// List returns every pending job ordered by scheduled time.
func (s *Store) List() ([]Job, error) {
	return s.collect(func(Job) bool { return true })
}

func (s *Store) ListDue(now time.Time, leeway time.Duration) ([]Job, error) {
	return s.collect(func(j Job) bool { return j.Due(now, leeway) })
}

func (s *Store) ListByOwner(owner int64) ([]Job, error) {
	return s.collect(func(j Job) bool { return j.OwnerChatID == owner })
}

func (s *Store) Get(owner int64, id string) (Job, bool, error) {
	f, err := s.doc.Read()
	if err != nil {
		return Job{}, false, err
	}

	j, ok := f.Posts[ownerKey(owner)][id]
	if ok {
		j.OwnerChatID = owner
	}
	return j, ok, nil
}

func (s *Store) Remove(owner int64, id string) (bool, error) {
	n, err := s.RemoveAll([]Key{{Owner: owner, ID: id}})
	return n > 0, err
}

// RemoveAll deletes the given jobs in a single write and returns how many
// were present.
func (s *Store) RemoveAll(keys []Key) (int, error) {
	removed := 0
	err := s.doc.Update(func(f *file) (bool, error) {
		for _, k := range keys {
			owner := ownerKey(k.Owner)
			posts, ok := f.Posts[owner]
			if !ok {
				continue
			}
			if _, ok := posts[k.ID]; !ok {
				continue
			}
			delete(posts, k.ID)
			removed++
			if len(posts) == 0 {
				delete(f.Posts, owner)
			}
		}
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) RemoveOwner(owner int64) (int, error) {
	removed := 0
	err := s.doc.Update(func(f *file) (bool, error) {
		key := ownerKey(owner)
		removed = len(f.Posts[key])
		delete(f.Posts, key)
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) Clear() (int, error) {
	removed := 0
	err := s.doc.Update(func(f *file) (bool, error) {
		for _, posts := range f.Posts {
			removed += len(posts)
		}
		f.Posts = map[string]map[string]Job{}
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) collect(keep func(Job) bool) ([]Job, error) {
	f, err := s.doc.Read()
	if err != nil {
		return nil, err
	}

	var out []Job
	for owner, posts := range f.Posts {
		id, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			slog.Warn("Skipping jobs with invalid owner", "owner", owner, "path", s.doc.Path())
			continue
		}
		for _, j := range posts {
			j.OwnerChatID = id
			if keep(j) {
				out = append(out, j)
			}
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if !out[a].ScheduledAt.Equal(out[b].ScheduledAt) {
			return out[a].ScheduledAt.Before(out[b].ScheduledAt)
		}
		if out[a].OwnerChatID != out[b].OwnerChatID {
			return out[a].OwnerChatID < out[b].OwnerChatID
		}
		return out[a].ID < out[b].ID
	})

	return out, nil
}

func ownerKey(owner int64) string {
	return strconv.FormatInt(owner, 10)
}
