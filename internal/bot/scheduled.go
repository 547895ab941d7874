package bot

import (
	"context"
	"fmt"
	"log/slog"

	"reelpost/internal/dispatch"
	"reelpost/internal/jobs"
	"reelpost/internal/scheduler"
	"reelpost/pkg/progress"
)

var _ scheduler.Notifier = (*Bot)(nil)

// Begin opens a status line for a scheduled job in its owner's chat.
func (b *Bot) Begin(ctx context.Context, j jobs.Job) scheduler.Notice {
	n := &scheduledNotice{b: b, job: j}

	status, err := b.startStatus(ctx, j.OwnerChatID, "📅 Starting scheduled post...")
	if err != nil {
		slog.Warn("Failed to open scheduled post status", "chat_id", j.OwnerChatID, "job_id", j.ID, "error", err)
		return n
	}
	n.status = status
	return n
}

// Failed reports a job that could not be started.
func (b *Bot) Failed(ctx context.Context, j jobs.Job, err error) {
	b.say(ctx, j.OwnerChatID, scheduledFailureText(j, err, b), menuOnly())
}

type scheduledNotice struct {
	b      *Bot
	job    jobs.Job
	status *statusLine
}

func (n *scheduledNotice) Progress() progress.Func {
	if n.status == nil {
		return nil
	}
	return n.status.Stage(uploadingLabel(dispatch.Target(n.job.Platform)), 0, 100)
}

func (n *scheduledNotice) Finish(ctx context.Context, o *dispatch.Outcome) {
	text := scheduledFailureText(n.job, o.Err, n.b)
	if o.Succeeded() && len(o.Results) > 0 {
		r := o.Results[0]
		text = fmt.Sprintf("✅ Scheduled post published to %s!\n\n🎥 URL: %s\n📝 Caption: %s", r.Platform.Title(), r.URL, n.job.Caption)
	}

	if n.status == nil {
		n.b.say(ctx, n.job.OwnerChatID, text, nil)
		return
	}
	n.status.Close()
	n.b.replace(ctx, n.status.ref, text, nil)
}

func scheduledFailureText(j jobs.Job, err error, b *Bot) string {
	return fmt.Sprintf("❌ The scheduled post failed:\n%v\n\nPlatform: %s\nDate: %s",
		failureCause(err), j.Platform.Title(), FormatSchedule(j.ScheduledAt, b.loc))
}
