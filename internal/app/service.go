package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reelpost/internal/api"
	"reelpost/internal/audit"
	"reelpost/internal/bot"
	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution/youtube"
	"reelpost/internal/jobs"
	"reelpost/internal/metrics"
	"reelpost/internal/scheduler"
	"reelpost/internal/storage"
	"reelpost/internal/telegram"
	"reelpost/pkg/config"
)

const (
	cleanupInterval = time.Hour
	stopTimeout     = 30 * time.Second
)

type Service struct {
	cfg         *config.Config
	workspace   *storage.Workspace
	jobs        *jobs.Store
	catalog     *catalog.Catalog
	settings    *config.SettingsStore
	metrics     *metrics.Metrics
	audit       audit.Logger
	archive     *storage.GCSArchive
	dispatcher  *dispatch.Coordinator
	youtubeAuth *youtube.Auth
	telegram    *telegram.Client
	bot         *bot.Bot
	scheduler   *scheduler.Scheduler

	closers []func() error
}

func (s *Service) Jobs() *jobs.Store {
	return s.jobs
}

func (s *Service) Dispatcher() *dispatch.Coordinator {
	return s.dispatcher
}

func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Archive is nil unless GCS mirroring is enabled.
func (s *Service) Archive() *storage.GCSArchive {
	return s.archive
}

// Run serves the bot, the scheduler, the settings watcher and the ops API
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.bot == nil || s.telegram == nil {
		return errors.New("service was built without a bot")
	}

	if err := s.telegram.SetCommands(bot.Commands()); err != nil {
		slog.Warn("Failed to publish bot commands", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.telegram.Run(ctx, s.handle)
	})

	g.Go(func() error {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		s.scheduler.Stop(stopCtx)
		return nil
	})

	g.Go(func() error {
		if err := s.settings.Watch(ctx); err != nil {
			slog.Warn("Settings watcher stopped", "error", err)
		}
		return nil
	})

	if s.cfg.API.Addr != "" {
		srv := api.NewServer(s.jobs, s.metrics.Handler(), s.cfg.API.Addr)
		if r, ok := s.audit.(audit.Reader); ok {
			srv.WithActions(r)
		}
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	g.Go(func() error {
		s.cleanTemp()
		t := time.NewTicker(cleanupInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				s.cleanTemp()
			}
		}
	})

	slog.Info("Reelpost running",
		"instagram", s.dispatcher.Configured("instagram"),
		"youtube", s.dispatcher.Configured("youtube"),
		"gcs", s.archive != nil,
		"api", s.cfg.API.Addr,
	)
	return g.Wait()
}

// RunOnce runs a single scheduler pass.
func (s *Service) RunOnce(ctx context.Context) scheduler.Report {
	return s.scheduler.Pass(ctx)
}

func (s *Service) handle(ctx context.Context, u telegram.Update) {
	if err := s.bot.Handle(ctx, u); err != nil && !errors.Is(err, bot.ErrUnauthorized) {
		slog.Error("Failed to handle update", "chat_id", u.ChatID, "error", err)
	}
}

func (s *Service) cleanTemp() {
	n, err := s.workspace.CleanTemp(s.cfg.Storage.TempMaxAge, time.Now())
	if err != nil {
		slog.Warn("Failed to clean temp directory", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Cleaned temp directory", "removed", n)
	}
}

func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
