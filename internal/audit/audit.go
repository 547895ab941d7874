// Package audit keeps a durable trail of operator and scheduler actions.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BotStart              Type = "BOT_START"
	VideoDownloadStart    Type = "VIDEO_DOWNLOAD_START"
	VideoDownloadComplete Type = "VIDEO_DOWNLOAD_COMPLETE"
	VideoDownloadError    Type = "VIDEO_DOWNLOAD_ERROR"
	PostScheduled         Type = "POST_SCHEDULED"
	CrossPostScheduled    Type = "CROSS_POST_SCHEDULED"
	PostScheduleError     Type = "POST_SCHEDULE_ERROR"
	ScheduledPostStart    Type = "SCHEDULED_POST_START"
	ScheduledPostComplete Type = "SCHEDULED_POST_COMPLETE"
	ScheduledPostError    Type = "SCHEDULED_POST_ERROR"
	InstagramUpload       Type = "INSTAGRAM_UPLOAD"
	YouTubeUpload         Type = "YOUTUBE_UPLOAD"
	CrossUpload           Type = "CROSS_UPLOAD"
	VideoDeleted          Type = "VIDEO_DELETED"
	PostCancelled         Type = "POST_CANCELLED"
	SettingsUpdated       Type = "SETTINGS_UPDATED"
)

type Entry struct {
	ID     string         `json:"id"`
	At     time.Time      `json:"timestamp"`
	Type   Type           `json:"type"`
	ChatID int64          `json:"chatId,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

type Logger interface {
	Log(ctx context.Context, e Entry) error
	Close() error
}

// Reader is implemented by drivers that can list what they stored.
type Reader interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]Entry, error)
}

type Config struct {
	Driver string
	Path   string
}

// Open returns the configured driver. "none" and "" give a Logger that
// drops everything.
func Open(cfg Config) (Logger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		return Nop{}, nil
	case "file":
		l, err := openFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "sqlite", "sqlite3":
		l, err := openSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, errors.New("unknown audit driver: " + driver)
}

// Record fills in id and time, writes the entry and logs a failure instead
// of returning it. An audit write must never break the action it records.
func Record(ctx context.Context, l Logger, typ Type, chatID int64, data map[string]any) {
	if l == nil {
		return
	}
	e := Entry{
		ID:     uuid.NewString(),
		At:     time.Now(),
		Type:   typ,
		ChatID: chatID,
		Data:   data,
	}
	if err := l.Log(ctx, e); err != nil {
		slog.Warn("Failed to write audit entry", "type", typ, "chat_id", chatID, "error", err)
	}
}

type Nop struct{}

func (Nop) Log(context.Context, Entry) error { return nil }
func (Nop) Close() error                     { return nil }

func validate(e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("audit entry has no type")
	}
	return nil
}
