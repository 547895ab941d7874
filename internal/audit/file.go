package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fileLogger appends one JSON line per entry to actions_<date>.jsonl in
// dir, starting a new file each local day.
type fileLogger struct {
	mu  sync.Mutex
	dir string
}

func openFile(dir string) (*fileLogger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("audit.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &fileLogger{dir: dir}, nil
}

func (l *fileLogger) fileFor(e Entry) string {
	return filepath.Join(l.dir, "actions_"+e.At.Local().Format("2006-01-02")+".jsonl")
}

func (l *fileLogger) Log(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.fileFor(e), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit entry: %w", err)
	}
	return f.Close()
}

// Recent scans day files newest first. chatID 0 means every chat.
func (l *fileLogger) Recent(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.dir, "actions_*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var out []Entry
	for _, name := range files {
		if len(out) >= limit {
			break
		}
		entries, err := readEntries(name)
		if err != nil {
			return nil, err
		}
		for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
			if chatID == 0 || entries[i].ChatID == chatID {
				out = append(out, entries[i])
			}
		}
	}
	return out, nil
}

func readEntries(name string) ([]Entry, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

func (l *fileLogger) Close() error {
	return nil
}
