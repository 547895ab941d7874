package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id      TEXT PRIMARY KEY,
	at      INTEGER NOT NULL,
	type    TEXT NOT NULL,
	chat_id INTEGER NOT NULL DEFAULT 0,
	data    TEXT
);
CREATE INDEX IF NOT EXISTS idx_actions_at ON actions(at);
CREATE INDEX IF NOT EXISTS idx_actions_chat ON actions(chat_id, at);
`

type sqliteLogger struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteLogger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &sqliteLogger{db: db}, nil
}

func (l *sqliteLogger) Log(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}

	var data []byte
	if len(e.Data) > 0 {
		var err error
		if data, err = json.Marshal(e.Data); err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO actions (id, at, type, chat_id, data) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.At.UnixMilli(), string(e.Type), e.ChatID, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for a chat, newest first. chatID 0
// means every chat.
func (l *sqliteLogger) Recent(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	query := `SELECT id, at, type, chat_id, data FROM actions`
	args := []any{}
	if chatID != 0 {
		query += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			at   int64
			typ  string
			data sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &typ, &e.ChatID, &data); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.At = time.UnixMilli(at)
		e.Type = Type(typ)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("decode audit data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *sqliteLogger) Close() error {
	return l.db.Close()
}
