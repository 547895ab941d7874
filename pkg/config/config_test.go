package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()
	_ = os.Chdir(tmp)

	yaml := `
bot:
  allowed_users: [11, 22]
  watermark: "@reels"
scheduler:
  interval: 30s
  due_leeway: 5s
groq:
  model: test-model
youtube:
  default_tags: [a, b]
audit:
  driver: sqlite
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Groq.Model != "test-model" {
		t.Errorf("Groq.Model = %q, want test-model", cfg.Groq.Model)
	}
	if len(cfg.Bot.AllowedUsers) != 2 || cfg.Bot.AllowedUsers[1] != 22 {
		t.Errorf("Bot.AllowedUsers = %v, want [11 22]", cfg.Bot.AllowedUsers)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("Scheduler.Interval = %v, want 30s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.DueLeeway != 5*time.Second {
		t.Errorf("Scheduler.DueLeeway = %v, want 5s", cfg.Scheduler.DueLeeway)
	}
	if len(cfg.YouTube.DefaultTags) != 2 {
		t.Errorf("YouTube.DefaultTags = %v, want [a b]", cfg.YouTube.DefaultTags)
	}
	if cfg.Audit.Path != "./logs/actions.db" {
		t.Errorf("Audit.Path = %q, want ./logs/actions.db", cfg.Audit.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("bot: {}\n"), 0644)

	cfg, err := LoadFrom(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "interval", got: cfg.Scheduler.Interval, want: 60 * time.Second},
		{name: "leeway", got: cfg.Scheduler.DueLeeway, want: time.Duration(0)},
		{name: "privacy", got: cfg.YouTube.PrivacyStatus, want: "public"},
		{name: "clipWidth", got: cfg.Video.ClipWidth, want: 920},
		{name: "clipHeight", got: cfg.Video.ClipHeight, want: 1470},
		{name: "offsetY", got: cfg.Video.OffsetY, want: 135},
		{name: "jobsFile", got: cfg.Storage.JobsFile, want: "scheduled_posts.json"},
		{name: "auditDriver", got: cfg.Audit.Driver, want: "file"},
		{name: "secrets", got: cfg.Secrets.Provider, want: "env"},
		{name: "apiDisabled", got: cfg.API.Addr, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Defaults()
	cfg.TelegramToken = "do-not-write"
	cfg.Bot.AllowedUsers = []int64{7}
	cfg.Scheduler.Interval = 90 * time.Second
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Error("secrets must not be written to config.yaml")
	}
	if !strings.Contains(string(data), "interval: 1m30s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	got, err := LoadFrom(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if got.Scheduler.Interval != 90*time.Second {
		t.Errorf("Interval = %v", got.Scheduler.Interval)
	}
	if len(got.Bot.AllowedUsers) != 1 || got.Bot.AllowedUsers[0] != 7 {
		t.Errorf("AllowedUsers = %v", got.Bot.AllowedUsers)
	}
	if got.Video.ClipWidth != defaultClipWidth {
		t.Errorf("ClipWidth = %d", got.Video.ClipWidth)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()
	_ = os.Chdir(tmp)

	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("groq:\n  model: x"), 0644)

	t.Setenv("GROQ_API_KEY", "test-groq")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.GroqAPIKey != "test-groq" {
		t.Errorf("GroqAPIKey = %q, want test-groq", cfg.GroqAPIKey)
	}
	if cfg.GCPProject != "test-project" {
		t.Errorf("GCPProject = %q, want test-project", cfg.GCPProject)
	}
	if cfg.TelegramToken != "123:abc" {
		t.Errorf("TelegramToken = %q, want 123:abc", cfg.TelegramToken)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()
	_ = os.Chdir(tmp)

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Load() should fail when config.yaml missing")
	}
}

func TestLoadSecretManagerNeedsProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("secrets:\n  provider: secretmanager\n"), 0644)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	if _, err := LoadFrom(context.Background(), path); err == nil {
		t.Error("LoadFrom() should fail without GOOGLE_CLOUD_PROJECT")
	}
}

type fakeSecrets map[string]string

func (f fakeSecrets) Access(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecretsFillsOnlyEmpty(t *testing.T) {
	cfg := &Config{TelegramToken: "from-env"}
	src := fakeSecrets{
		"telegram-bot-token":     "from-sm",
		"groq-api-key":           "groq-sm",
		"instagram-access-token": "ig-sm",
	}

	resolveSecrets(context.Background(), cfg, src)

	if cfg.TelegramToken != "from-env" {
		t.Errorf("TelegramToken = %q, env value should win", cfg.TelegramToken)
	}
	if cfg.GroqAPIKey != "groq-sm" {
		t.Errorf("GroqAPIKey = %q, want groq-sm", cfg.GroqAPIKey)
	}
	if cfg.InstagramAccessToken != "ig-sm" {
		t.Errorf("InstagramAccessToken = %q, want ig-sm", cfg.InstagramAccessToken)
	}
	if cfg.YouTubeClientID != "" {
		t.Errorf("YouTubeClientID = %q, want empty", cfg.YouTubeClientID)
	}
}

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{name: "local", location: "Local", want: time.Local.String()},
		{name: "utc", location: "UTC", want: "UTC"},
		{name: "unknown", location: "Mars/Olympus", want: time.Local.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Bot: BotConfig{Location: tt.location}}
			if got := cfg.LoadLocation().String(); got != tt.want {
				t.Errorf("LoadLocation() = %q, want %q", got, tt.want)
			}
		})
	}
}
