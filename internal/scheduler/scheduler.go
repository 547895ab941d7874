// Package scheduler publishes due jobs. Each due job is attempted once and
// removed whatever the outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"reelpost/internal/audit"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/pkg/fsutil"
	"reelpost/pkg/progress"
)

var ErrMissingVideoFile = errors.New("video file is missing")

type JobStore interface {
	List() ([]jobs.Job, error)
	ListDue(now time.Time, leeway time.Duration) ([]jobs.Job, error)
	Get(owner int64, id string) (jobs.Job, bool, error)
	RemoveAll(keys []jobs.Key) (int, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, onProgress progress.Func) (*dispatch.Outcome, error)
}

type Catalog interface {
	MarkPublishedByPath(path string, platform distribution.Platform) (bool, error)
}

// Notifier tells a job's owner what happened to it.
type Notifier interface {
	Begin(ctx context.Context, j jobs.Job) Notice
	Failed(ctx context.Context, j jobs.Job, err error)
}

// Notice is the owner-facing status of one running job.
type Notice interface {
	Progress() progress.Func
	Finish(ctx context.Context, outcome *dispatch.Outcome)
}

type Recorder interface {
	ObserveScheduledJob(result string)
	ObservePass(pending int)
}

type Options struct {
	Jobs       JobStore
	Catalog    Catalog
	Dispatcher Dispatcher
	Notifier   Notifier
	Recorder   Recorder
	Audit      audit.Logger

	Interval  time.Duration
	DueLeeway time.Duration
	Now       func() time.Time

	// LockPath is held for the whole of a pass. A pass that cannot take it
	// is skipped, so two processes never dispatch the same due job.
	LockPath string
}

// Report summarizes one pass.
type Report struct {
	Due       int
	Published int
	Failed    int
	Skipped   int
	Removed   int

	// Busy is set when another pass held the lock and nothing was run.
	Busy bool
}

type Scheduler struct {
	jobs       JobStore
	catalog    Catalog
	dispatcher Dispatcher
	notifier   Notifier
	recorder   Recorder
	audit      audit.Logger

	interval time.Duration
	leeway   time.Duration
	now      func() time.Time
	lockPath string

	mu   sync.Mutex
	cron *cron.Cron
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		jobs:       opts.Jobs,
		catalog:    opts.Catalog,
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		audit:      opts.Audit,
		interval:   opts.Interval,
		leeway:     opts.DueLeeway,
		now:        opts.Now,
		lockPath:   opts.LockPath,
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start runs a pass every interval until Stop. A pass still running when the
// next tick fires makes that tick a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	logger := cronLogger{log: slog.Default().With("component", "scheduler")}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	spec := "@every " + s.interval.String()
	if _, err := c.AddFunc(spec, func() { s.Pass(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pass %q: %w", spec, err)
	}

	c.Start()
	s.cron = c
	slog.Info("Scheduler started", "interval", s.interval, "due_leeway", s.leeway)
	return nil
}

// Stop waits for a running pass to finish, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out")
	}
}

// Pass runs every job due at the start of the pass. Jobs cancelled while the
// pass is running are skipped. Attempted jobs are removed in one write.
func (s *Scheduler) Pass(ctx context.Context) Report {
	var rep Report

	if s.lockPath != "" {
		lock := flock.New(s.lockPath)
		held, err := lock.TryLock()
		if err != nil {
			slog.Error("Failed to take scheduler lock", "lock", s.lockPath, "error", err)
			rep.Busy = true
			return rep
		}
		if !held {
			slog.Warn("Another scheduler pass is running, skipping", "lock", s.lockPath)
			rep.Busy = true
			return rep
		}
		defer func() { _ = lock.Unlock() }()
	}

	now := s.now()

	due, err := s.jobs.ListDue(now, s.leeway)
	if err != nil {
		slog.Error("Failed to load scheduled posts", "error", err)
		return rep
	}
	rep.Due = len(due)

	keys := make([]jobs.Key, 0, len(due))
	for _, j := range due {
		if ctx.Err() != nil {
			slog.Warn("Pass interrupted", "remaining", len(due)-len(keys)-rep.Skipped)
			break
		}

		cur, ok, err := s.jobs.Get(j.OwnerChatID, j.ID)
		if err != nil {
			slog.Error("Failed to re-read scheduled post", "chat_id", j.OwnerChatID, "job_id", j.ID, "error", err)
			rep.Skipped++
			continue
		}
		if !ok {
			slog.Info("Scheduled post cancelled before dispatch", "chat_id", j.OwnerChatID, "job_id", j.ID)
			rep.Skipped++
			continue
		}

		if err := s.run(ctx, cur); err != nil {
			rep.Failed++
		} else {
			rep.Published++
		}
		keys = append(keys, cur.Key())
	}

	if len(keys) > 0 {
		n, err := s.jobs.RemoveAll(keys)
		if err != nil {
			slog.Error("Failed to remove attempted posts", "count", len(keys), "error", err)
		}
		rep.Removed = n
	}

	pending := -1
	if all, err := s.jobs.List(); err == nil {
		pending = len(all)
	}
	if s.recorder != nil {
		s.recorder.ObservePass(max(pending, 0))
	}

	if rep.Due > 0 {
		slog.Info("Scheduler pass complete",
			"due", rep.Due,
			"published", rep.Published,
			"failed", rep.Failed,
			"skipped", rep.Skipped,
			"pending", pending,
		)
	} else {
		slog.Debug("Scheduler pass complete", "pending", pending)
	}
	return rep
}

func (s *Scheduler) run(ctx context.Context, j jobs.Job) error {
	log := slog.With("chat_id", j.OwnerChatID, "job_id", j.ID, "platform", j.Platform, "path", j.VideoPath)

	if fsutil.IsMissing(j.VideoPath) {
		err := fmt.Errorf("%w: %s", ErrMissingVideoFile, j.VideoPath)
		log.Error("Scheduled post failed", "error", err)
		s.fail(ctx, j, err, "missing_file")
		if s.notifier != nil {
			s.notifier.Failed(ctx, j, err)
		}
		return err
	}

	audit.Record(ctx, s.audit, audit.ScheduledPostStart, j.OwnerChatID, map[string]any{
		"postId":        j.ID,
		"platform":      j.Platform,
		"scheduledDate": j.ScheduledAt.UTC().Format(time.RFC3339),
	})

	var notice Notice
	var onProgress progress.Func
	if s.notifier != nil {
		notice = s.notifier.Begin(ctx, j)
		onProgress = notice.Progress()
	}

	outcome, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		VideoPath: j.VideoPath,
		Caption:   j.Caption,
		Target:    dispatch.Target(j.Platform),
	}, onProgress)
	if outcome == nil {
		outcome = &dispatch.Outcome{Target: dispatch.Target(j.Platform), Failed: j.Platform, Err: err}
	}
	if notice != nil {
		notice.Finish(ctx, outcome)
	}

	if err != nil {
		log.Error("Scheduled post failed", "error", err)
		s.fail(ctx, j, err, "failure")
		return err
	}

	for _, r := range outcome.Results {
		if _, err := s.catalog.MarkPublishedByPath(j.VideoPath, r.Platform); err != nil {
			log.Warn("Failed to mark video published", "error", err)
		}
	}

	data := map[string]any{"postId": j.ID, "platform": j.Platform}
	if len(outcome.Results) > 0 {
		data["url"] = outcome.Results[0].URL
	}
	audit.Record(ctx, s.audit, audit.ScheduledPostComplete, j.OwnerChatID, data)
	if s.recorder != nil {
		s.recorder.ObserveScheduledJob("success")
	}
	log.Info("Scheduled post published")
	return nil
}

func (s *Scheduler) fail(ctx context.Context, j jobs.Job, err error, result string) {
	audit.Record(ctx, s.audit, audit.ScheduledPostError, j.OwnerChatID, map[string]any{
		"postId":   j.ID,
		"platform": j.Platform,
		"error":    err.Error(),
	})
	if s.recorder != nil {
		s.recorder.ObserveScheduledJob(result)
	}
}

// cronLogger sends cron's own logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
