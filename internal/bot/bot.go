// Package bot drives the chat conversation: it walks each chat through
// acquiring, branding and publishing a video, now or on a schedule.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"reelpost/internal/acquire"
	"reelpost/internal/audit"
	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/internal/session"
	"reelpost/internal/storage"
	"reelpost/internal/telegram"
	"reelpost/internal/video"
	"reelpost/pkg/config"
	"reelpost/pkg/progress"
)

const defaultProgressInterval = 1500 * time.Millisecond

var ErrUnauthorized = errors.New("caller is not allowed")

type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, opt *telegram.SendOptions) (telegram.MessageRef, error)
	Edit(ctx context.Context, ref telegram.MessageRef, text string, opt *telegram.SendOptions) error
	Delete(ctx context.Context, ref telegram.MessageRef) error
	Answer(ctx context.Context, callbackID, text string) error
}

type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request, onProgress progress.Func) error
}

type Compositor interface {
	Compose(ctx context.Context, req video.Request, onProgress progress.Func) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, onProgress progress.Func) (*dispatch.Outcome, error)
}

type JobStore interface {
	PutAll(jobs []jobs.Job) error
	ListByOwner(owner int64) ([]jobs.Job, error)
	Get(owner int64, id string) (jobs.Job, bool, error)
	Remove(owner int64, id string) (bool, error)
	RemoveOwner(owner int64) (int, error)
}

type VideoCatalog interface {
	Create(title, path string, now time.Time) (catalog.Entry, error)
	List() ([]catalog.Entry, error)
	Get(id string) (catalog.Entry, error)
	MarkPublished(id string, platform distribution.Platform) error
	MarkPublishedByPath(path string, platform distribution.Platform) (bool, error)
	SetArchiveObject(id, object string) error
	Delete(id string) (catalog.Entry, error)
}

type Settings interface {
	Get() config.Settings
	IsAllowed(userID int64) bool
	Watermark() string
	SetWatermark(text string) error
}

// Archive mirrors finished videos off the local disk.
type Archive interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, object string) error
}

type Options struct {
	Messenger  Messenger
	Sessions   *session.Store
	Jobs       JobStore
	Catalog    VideoCatalog
	Settings   Settings
	Acquirer   Acquirer
	Compositor Compositor
	Dispatcher Dispatcher
	Workspace  *storage.Workspace
	Archive    Archive
	Audit      audit.Logger

	Location         *time.Location
	ProgressInterval time.Duration
	Now              func() time.Time
}

type Bot struct {
	msgr       Messenger
	sessions   *session.Store
	jobs       JobStore
	catalog    VideoCatalog
	settings   Settings
	acquirer   Acquirer
	compositor Compositor
	dispatcher Dispatcher
	workspace  *storage.Workspace
	archive    Archive
	audit      audit.Logger

	loc              *time.Location
	progressInterval time.Duration
	now              func() time.Time
}

func New(opts Options) *Bot {
	b := &Bot{
		msgr:             opts.Messenger,
		sessions:         opts.Sessions,
		jobs:             opts.Jobs,
		catalog:          opts.Catalog,
		settings:         opts.Settings,
		acquirer:         opts.Acquirer,
		compositor:       opts.Compositor,
		dispatcher:       opts.Dispatcher,
		workspace:        opts.Workspace,
		archive:          opts.Archive,
		audit:            opts.Audit,
		loc:              opts.Location,
		progressInterval: opts.ProgressInterval,
		now:              opts.Now,
	}
	if b.sessions == nil {
		b.sessions = session.NewStore()
	}
	if b.audit == nil {
		b.audit = audit.Nop{}
	}
	if b.loc == nil {
		b.loc = time.Local
	}
	if b.progressInterval <= 0 {
		b.progressInterval = defaultProgressInterval
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Commands is the chat command list published to Telegram.
func Commands() []telegram.Command {
	return []telegram.Command{
		{Name: "start", Description: "Main menu"},
		{Name: "videos", Description: "Saved videos"},
		{Name: "jobs", Description: "Scheduled posts"},
		{Name: "settings", Description: "Bot settings"},
		{Name: "id", Description: "Show my Telegram id"},
	}
}

// Handle processes one update. Updates for the same chat never run
// concurrently, but when several wait on the chat lock the order in which
// they get it is not guaranteed.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) error {
	unlock := b.sessions.Lock(u.ChatID)
	defer unlock()

	var (
		cmd   Command
		isCmd bool
	)
	if u.IsCallback() {
		if err := b.msgr.Answer(ctx, u.CallbackID, ""); err != nil {
			slog.Debug("Failed to answer callback", "chat_id", u.ChatID, "error", err)
		}
		c, err := ParseCommand(u.CallbackData)
		if err != nil {
			slog.Warn("Ignoring unknown callback", "chat_id", u.ChatID, "data", u.CallbackData, "error", err)
			return nil
		}
		cmd, isCmd = c, true
	} else if c, ok := parseSlash(strings.TrimSpace(u.Text)); ok {
		cmd, isCmd = c, true
	}

	if !(isCmd && cmd.public()) && !b.settings.IsAllowed(callerID(u)) {
		return b.rejectUnauthorized(ctx, u)
	}

	if isCmd {
		return b.handleCommand(ctx, u, cmd)
	}
	return b.handleText(ctx, u.ChatID, strings.TrimSpace(u.Text))
}

func callerID(u telegram.Update) int64 {
	if u.UserID != 0 {
		return u.UserID
	}
	return u.ChatID
}

func (b *Bot) handleCommand(ctx context.Context, u telegram.Update, cmd Command) error {
	chatID := u.ChatID

	switch cmd.Kind {
	case KindStart:
		b.sessions.Reset(chatID)
		b.say(ctx, chatID, "👋 Hi! What would you like to do?", mainMenu())
	case KindMenu:
		b.sessions.Reset(chatID)
		b.say(ctx, chatID, "🏠 Main menu. What would you like to do?", mainMenu())
	case KindSource:
		return b.chooseSource(ctx, chatID, cmd.Arg)
	case KindVideos:
		return b.showVideos(ctx, chatID)
	case KindSelectVideo:
		return b.selectVideo(ctx, chatID, cmd.Arg)
	case KindManageVideo:
		return b.manageVideo(ctx, chatID, cmd.Arg)
	case KindDeleteVideo:
		return b.deleteVideo(ctx, chatID, cmd.Arg)
	case KindTarget:
		return b.chooseTarget(ctx, chatID, cmd.Arg)
	case KindNow:
		return b.publishNow(ctx, chatID)
	case KindLater:
		return b.askSchedule(ctx, chatID)
	case KindJobs:
		return b.showJobs(ctx, chatID)
	case KindJob:
		return b.showJob(ctx, chatID, cmd.Arg)
	case KindCancelJob:
		return b.cancelJob(ctx, chatID, cmd.Arg)
	case KindCancelAll:
		b.say(ctx, chatID, "⚠️ Cancel all scheduled posts?", confirmKeyboard("✅ Yes, cancel all", Command{Kind: KindCancelAllConfirm}, Command{Kind: KindJobs}))
	case KindCancelAllConfirm:
		return b.cancelAll(ctx, chatID)
	case KindSettings:
		b.showSettings(ctx, u)
	case KindWhoAmI:
		b.whoAmI(ctx, u)
	case KindWatermark:
		b.askWatermark(ctx, chatID)
	case KindClear:
		b.say(ctx, chatID, "🗑️ Delete the messages this bot sent here?\n\n⚠️ This cannot be undone.", confirmKeyboard("✅ Yes, clear", Command{Kind: KindClearConfirm}, Command{Kind: KindMenu}))
	case KindClearConfirm:
		b.clearMessages(ctx, chatID)
	}
	return nil
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) error {
	s := b.sessions.Get(chatID)

	switch s.State {
	case session.AwaitingSourceURL:
		s.SourceURL = text
		s.State = session.AwaitingCaptionText
		b.sessions.Put(s)
		b.say(ctx, chatID, "📝 Send the text to put on the video:", nil)
	case session.AwaitingCaptionText:
		s.Caption = text
		return b.prepare(ctx, s)
	case session.AwaitingScheduleDateTime:
		return b.schedule(ctx, s, text)
	case session.AwaitingWatermarkText:
		return b.setWatermark(ctx, chatID, text)
	case session.AwaitingPlatformChoice, session.AwaitingScheduleChoice:
		b.say(ctx, chatID, "👆 Please use the buttons above.", nil)
	}
	return nil
}

func (b *Bot) rejectUnauthorized(ctx context.Context, u telegram.Update) error {
	slog.Warn("Unauthorized caller", "chat_id", u.ChatID, "user_id", u.UserID, "username", u.Username)
	b.say(ctx, u.ChatID,
		"❌ You are not allowed to use this feature.\n\nOpen Settings to find your Telegram id and send it to the bot admin.",
		telegram.Keyboard{telegram.Row(button("⚙️ Settings", Command{Kind: KindSettings}))},
	)
	return ErrUnauthorized
}

// send delivers a message and remembers it for "clear messages".
func (b *Bot) send(ctx context.Context, chatID int64, text string, opt *telegram.SendOptions) (telegram.MessageRef, error) {
	ref, err := b.msgr.Send(ctx, chatID, text, opt)
	if err != nil {
		slog.Warn("Failed to send message", "chat_id", chatID, "error", err)
		return ref, err
	}
	b.sessions.TrackMessage(chatID, ref.MessageID)
	return ref, nil
}

// say is send for messages whose delivery nothing depends on.
func (b *Bot) say(ctx context.Context, chatID int64, text string, kb telegram.Keyboard) {
	_, _ = b.send(ctx, chatID, text, &telegram.SendOptions{Keyboard: kb, DisablePreview: true})
}

// replace edits ref in place, falling back to a new message.
func (b *Bot) replace(ctx context.Context, ref telegram.MessageRef, text string, kb telegram.Keyboard) {
	opt := &telegram.SendOptions{Keyboard: kb, DisablePreview: true}
	if err := b.msgr.Edit(ctx, ref, text, opt); err != nil {
		slog.Debug("Edit failed, sending instead", "chat_id", ref.ChatID, "error", err)
		_, _ = b.send(ctx, ref.ChatID, text, opt)
	}
}

func confirmKeyboard(yes string, confirm, back Command) telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(
		button(yes, confirm),
		button("❌ No", back),
	)}
}
