package app

import (
	"context"
	"fmt"
	"log/slog"

	"reelpost/internal/acquire"
	"reelpost/internal/audit"
	"reelpost/internal/bot"
	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/distribution/instagram"
	"reelpost/internal/distribution/youtube"
	"reelpost/internal/jobs"
	"reelpost/internal/llm"
	"reelpost/internal/metrics"
	"reelpost/internal/scheduler"
	"reelpost/internal/session"
	"reelpost/internal/storage"
	"reelpost/internal/telegram"
	"reelpost/internal/video"
	"reelpost/pkg/config"
	"reelpost/pkg/progress"
	"reelpost/pkg/prompts"
)

const schedulerLockFile = "scheduler.lock"

type BuildOptions struct {
	// WithBot connects to Telegram. Without it scheduled results are only logged.
	WithBot bool
}

// BuildService wires every component from cfg. Close releases what it opened.
func BuildService(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Service, error) {
	s := &Service{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	s.workspace = storage.NewWorkspace(cfg.Storage.DataDir, cfg.Storage.TempDir, cfg.Storage.VideosDir)
	if err := s.workspace.EnsureDirectories(); err != nil {
		return nil, err
	}

	s.jobs = jobs.NewStore(s.workspace.DataPath(cfg.Storage.JobsFile))
	s.catalog = catalog.New(s.workspace.DataPath(cfg.Storage.CatalogFile))

	settings, err := config.OpenSettings(s.workspace.DataPath(cfg.Storage.SettingsFile), config.Settings{
		Watermark:    cfg.Bot.Watermark,
		AllowedUsers: cfg.Bot.AllowedUsers,
	})
	if err != nil {
		return nil, err
	}
	s.settings = settings

	s.metrics = metrics.New()

	auditLog, err := audit.Open(audit.Config{Driver: cfg.Audit.Driver, Path: cfg.Audit.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	s.audit = auditLog
	s.closers = append(s.closers, auditLog.Close)

	if cfg.GCS.Enabled && cfg.GCSBucket != "" {
		archive, err := storage.NewGCSArchive(ctx, cfg.GCSBucket, cfg.GCS.Prefix)
		if err != nil {
			return nil, err
		}
		s.archive = archive
		s.closers = append(s.closers, archive.Close)
	}

	uploaders, err := buildUploaders(cfg, s)
	if err != nil {
		return nil, err
	}
	s.dispatcher = dispatch.NewCoordinator(s.metrics, uploaders...)

	var notifier scheduler.Notifier
	if opts.WithBot {
		tg, err := telegram.NewClient(cfg.TelegramToken, cfg.Bot.PollTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to telegram: %w", err)
		}
		s.telegram = tg
		s.bot = bot.New(bot.Options{
			Messenger:        tg,
			Sessions:         session.NewStore(),
			Jobs:             s.jobs,
			Catalog:          s.catalog,
			Settings:         s.settings,
			Acquirer:         buildAcquirer(cfg),
			Compositor:       video.NewCompositor(cfg.Video),
			Dispatcher:       s.dispatcher,
			Workspace:        s.workspace,
			Archive:          s.botArchive(),
			Audit:            s.audit,
			Location:         cfg.LoadLocation(),
			ProgressInterval: cfg.Bot.ProgressInterval,
		})
		notifier = s.bot
	} else {
		notifier = logNotifier{}
	}

	s.scheduler = scheduler.New(scheduler.Options{
		Jobs:       s.jobs,
		Catalog:    s.catalog,
		Dispatcher: s.dispatcher,
		Notifier:   notifier,
		Recorder:   s.metrics,
		Audit:      s.audit,
		Interval:   cfg.Scheduler.Interval,
		DueLeeway:  cfg.Scheduler.DueLeeway,
		LockPath:   s.workspace.DataPath(schedulerLockFile),
	})

	ok = true
	return s, nil
}

func buildAcquirer(cfg *config.Config) *acquire.Downloader {
	return acquire.NewDownloader(acquire.Options{
		InstagramEndpoint: cfg.Acquire.InstagramEndpoint,
		TikTokEndpoint:    cfg.Acquire.TikTokEndpoint,
		Timeout:           cfg.Acquire.Timeout,
	})
}

// buildUploaders returns the platforms that have credentials. The coordinator
// reports the rest as not configured.
func buildUploaders(cfg *config.Config, s *Service) ([]distribution.Uploader, error) {
	var out []distribution.Uploader

	if cfg.InstagramAccessToken != "" && cfg.InstagramUserID != "" {
		out = append(out, instagram.NewClient(instagram.Options{
			AccessToken:  cfg.InstagramAccessToken,
			UserID:       cfg.InstagramUserID,
			Version:      cfg.Instagram.GraphVersion,
			ShareToFeed:  cfg.Instagram.ShareToFeed,
			PollInterval: cfg.Instagram.PollInterval,
			PollAttempts: cfg.Instagram.PollAttempts,
		}))
	} else {
		slog.Warn("Instagram credentials missing, Instagram uploads disabled")
	}

	if cfg.YouTubeClientID != "" && cfg.YouTubeClientSecret != "" {
		auth := youtube.NewAuth(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeTokenPath)
		if !auth.IsAuthenticated() {
			slog.Warn("YouTube is not authorized yet, run `reelpost auth youtube`", "token_path", cfg.YouTubeTokenPath)
		}

		var enhancer llm.Client
		if cfg.YouTube.Enhance && cfg.GroqAPIKey != "" {
			p, err := prompts.Load()
			if err != nil {
				return nil, err
			}
			g, err := llm.NewGroqClient(cfg.GroqAPIKey, cfg.Groq.Model, p)
			if err != nil {
				return nil, fmt.Errorf("failed to create groq client: %w", err)
			}
			enhancer = g
		}

		s.youtubeAuth = auth
		out = append(out, youtube.NewClient(youtube.Options{
			Auth:                auth,
			CategoryID:          cfg.YouTube.CategoryID,
			DefaultTags:         cfg.YouTube.DefaultTags,
			PrivacyStatus:       cfg.YouTube.PrivacyStatus,
			DescriptionTemplate: cfg.YouTube.DescriptionTemplate,
			Enhancer:            enhancer,
		}))
	} else {
		slog.Warn("YouTube credentials missing, YouTube uploads disabled")
	}

	return out, nil
}

// botArchive avoids handing the bot a typed nil.
func (s *Service) botArchive() bot.Archive {
	if s.archive == nil {
		return nil
	}
	return s.archive
}

// logNotifier stands in for the chat when no bot is running.
type logNotifier struct{}

func (logNotifier) Begin(ctx context.Context, j jobs.Job) scheduler.Notice {
	return logNotice{job: j}
}

func (logNotifier) Failed(ctx context.Context, j jobs.Job, err error) {
	slog.Warn("Scheduled post could not start", "chat_id", j.OwnerChatID, "job_id", j.ID, "error", err)
}

type logNotice struct {
	job jobs.Job
}

func (logNotice) Progress() progress.Func { return nil }

func (n logNotice) Finish(ctx context.Context, o *dispatch.Outcome) {
	if o.Succeeded() && len(o.Results) > 0 {
		slog.Info("Scheduled post result", "chat_id", n.job.OwnerChatID, "job_id", n.job.ID, "url", o.Results[0].URL)
		return
	}
	slog.Info("Scheduled post result", "chat_id", n.job.OwnerChatID, "job_id", n.job.ID, "error", o.Err)
}
