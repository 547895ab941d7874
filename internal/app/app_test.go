package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Storage: config.StorageConfig{
			DataDir:      filepath.Join(root, "data"),
			TempDir:      filepath.Join(root, "temp"),
			VideosDir:    filepath.Join(root, "videos"),
			JobsFile:     "scheduled_posts.json",
			CatalogFile:  "videos.json",
			SettingsFile: "settings.json",
			TempMaxAge:   time.Hour,
		},
		Bot:   config.BotConfig{Watermark: "@reelpost"},
		Audit: config.AuditConfig{Driver: "none"},
	}
}

func TestBuildWithoutBot(t *testing.T) {
	cfg := testConfig(t)

	s, err := BuildService(context.Background(), cfg, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.TempDir, cfg.Storage.VideosDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.DataDir, "settings.json")); err != nil {
		t.Errorf("settings not seeded: %v", err)
	}
	if s.Dispatcher().Configured(distribution.Instagram) || s.Dispatcher().Configured(distribution.YouTube) {
		t.Error("no platform should be configured without credentials")
	}
	if s.Archive() != nil {
		t.Error("archive should be nil when GCS is disabled")
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() should refuse a service built without a bot")
	}
}

func TestBuildConfiguresInstagram(t *testing.T) {
	cfg := testConfig(t)
	cfg.InstagramAccessToken = "token"
	cfg.InstagramUserID = "1784"

	s, err := BuildService(context.Background(), cfg, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	if !s.Dispatcher().Configured(distribution.Instagram) {
		t.Error("Instagram should be configured")
	}
}

func TestBuildUnknownAuditDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Driver = "kafka"

	if _, err := BuildService(context.Background(), cfg, BuildOptions{}); err == nil {
		t.Error("BuildService() should fail for an unknown audit driver")
	}
}

func TestRunOnceRemovesUnconfiguredJob(t *testing.T) {
	cfg := testConfig(t)
	s, err := BuildService(context.Background(), cfg, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	videoPath := filepath.Join(cfg.Storage.VideosDir, "masked_clip.mp4")
	if err := os.WriteFile(videoPath, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	err = s.Jobs().Put(jobs.Job{
		ID:          "post_1",
		OwnerChatID: 42,
		Platform:    distribution.YouTube,
		VideoPath:   videoPath,
		Caption:     "hello",
		ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	rep := s.RunOnce(context.Background())
	if rep.Due != 1 || rep.Failed != 1 || rep.Removed != 1 {
		t.Errorf("report = %+v", rep)
	}

	left, err := s.Jobs().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("jobs left = %d, want 0", len(left))
	}
}

func TestLogNotifier(t *testing.T) {
	j := jobs.Job{ID: "post_1", OwnerChatID: 1, Platform: distribution.Instagram}
	n := logNotifier{}

	notice := n.Begin(context.Background(), j)
	if notice.Progress() != nil {
		t.Error("log notice should not report progress")
	}
	notice.Finish(context.Background(), &dispatch.Outcome{Err: errors.New("boom")})
	notice.Finish(context.Background(), &dispatch.Outcome{Results: []dispatch.Result{{URL: "https://example.com"}}})
	n.Failed(context.Background(), j, errors.New("missing"))
}
