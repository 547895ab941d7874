package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelpost/internal/acquire"
	"reelpost/internal/audit"
	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/internal/session"
	"reelpost/internal/telegram"
	"reelpost/internal/video"
	"reelpost/pkg/fsutil"
)

func (b *Bot) chooseSource(ctx context.Context, chatID int64, arg string) error {
	src, err := acquire.ParseSource(arg)
	if err != nil {
		slog.Warn("Unknown source", "chat_id", chatID, "source", arg)
		return nil
	}

	s := b.sessions.Get(chatID)
	s.ResetFlow()
	s.State = session.AwaitingSourceURL
	s.Source = string(src)
	b.sessions.Put(s)

	b.say(ctx, chatID, fmt.Sprintf("🔗 Send the %s video URL:", src.Title()), nil)
	return nil
}

// prepare downloads and brands the video, then catalogs it and asks where
// to publish. Any failure returns the chat to idle.
func (b *Bot) prepare(ctx context.Context, s session.Session) error {
	chatID := s.ChatID
	now := b.now()
	src := acquire.Source(s.Source)
	name := acquire.FileName(src, s.Caption, now)
	rawPath := b.workspace.TempPath(name)
	outPath := b.workspace.VideoPath("masked_" + name)

	audit.Record(ctx, b.audit, audit.VideoDownloadStart, chatID, map[string]any{
		"source": src,
		"url":    s.SourceURL,
	})

	status, err := b.startStatus(ctx, chatID, "⏳ Processing video...")
	if err != nil {
		b.sessions.Reset(chatID)
		return err
	}

	err = b.acquirer.Acquire(ctx, acquire.Request{Source: src, URL: s.SourceURL, Dest: rawPath},
		status.Stage("📥 Downloading video...", 0, 50))
	if err == nil {
		err = b.compositor.Compose(ctx, video.Request{
			Input:     rawPath,
			Output:    outPath,
			Caption:   s.Caption,
			Watermark: b.settings.Watermark(),
		}, status.Stage("🎬 Branding video...", 50, 100))
	}
	if rmErr := os.Remove(rawPath); rmErr != nil && !fsutil.IsMissing(rawPath) {
		slog.Warn("Failed to remove download", "path", rawPath, "error", rmErr)
	}
	status.Close()

	if err != nil {
		slog.Error("Video preparation failed", "chat_id", chatID, "source", src, "url", s.SourceURL, "error", err)
		audit.Record(ctx, b.audit, audit.VideoDownloadError, chatID, map[string]any{
			"source": src,
			"error":  err.Error(),
		})
		b.sessions.Reset(chatID)
		b.replace(ctx, status.ref, "❌ Sorry, the video could not be processed. Please try again.", menuOnly())
		return err
	}

	entry, err := b.catalog.Create(s.Caption, outPath, now)
	if err != nil {
		slog.Error("Failed to catalog video", "chat_id", chatID, "path", outPath, "error", err)
		_ = os.Remove(outPath)
		b.sessions.Reset(chatID)
		b.replace(ctx, status.ref, "❌ The video could not be saved. Please try again.", menuOnly())
		return err
	}

	s.State = session.AwaitingPlatformChoice
	s.VideoPath = outPath
	s.VideoID = entry.ID
	b.sessions.Put(s)

	audit.Record(ctx, b.audit, audit.VideoDownloadComplete, chatID, map[string]any{
		"source":   src,
		"fileName": filepath.Base(outPath),
		"videoId":  entry.ID,
	})
	b.replace(ctx, status.ref, "✨ The video is ready! Where should it be published?", targetKeyboard())

	b.archiveVideo(ctx, entry)
	return nil
}

func (b *Bot) archiveVideo(ctx context.Context, e catalog.Entry) {
	if b.archive == nil {
		return
	}
	object, err := b.archive.Upload(ctx, e.Path)
	if err != nil {
		slog.Warn("Failed to archive video", "video_id", e.ID, "path", e.Path, "error", err)
		return
	}
	if err := b.catalog.SetArchiveObject(e.ID, object); err != nil {
		slog.Warn("Failed to record archive object", "video_id", e.ID, "object", object, "error", err)
	}
}

func (b *Bot) showVideos(ctx context.Context, chatID int64) error {
	entries, err := b.catalog.List()
	if err != nil {
		slog.Error("Failed to list videos", "chat_id", chatID, "error", err)
		b.say(ctx, chatID, "❌ Could not load the video list.", menuOnly())
		return err
	}
	if len(entries) == 0 {
		b.say(ctx, chatID, "📂 No saved videos yet.", menuOnly())
		return nil
	}

	kb, index := videoListKeyboard(entries)
	s := b.sessions.Get(chatID)
	s.VideoIndex = index
	b.sessions.Put(s)

	b.say(ctx, chatID, "📂 Saved videos. Tap one to publish it, or ⚙️ to manage it.", kb)
	return nil
}

// lookupVideo resolves a list token to its catalog entry. It tells the user
// when the token is stale and reports ok=false.
func (b *Bot) lookupVideo(ctx context.Context, chatID int64, tok string) (catalog.Entry, bool, error) {
	s := b.sessions.Get(chatID)
	id, ok := s.VideoIndex[tok]
	if !ok {
		b.videoNotFound(ctx, chatID)
		return catalog.Entry{}, false, nil
	}

	e, err := b.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		b.videoNotFound(ctx, chatID)
		return catalog.Entry{}, false, nil
	}
	if err != nil {
		slog.Error("Failed to read catalog", "chat_id", chatID, "video_id", id, "error", err)
		b.say(ctx, chatID, "❌ Could not load the video.", menuOnly())
		return catalog.Entry{}, false, err
	}
	return e, true, nil
}

func (b *Bot) videoNotFound(ctx context.Context, chatID int64) {
	b.say(ctx, chatID, "❌ Video not found! Please open the video list again.",
		telegram.Keyboard{telegram.Row(button("📂 Saved videos", Command{Kind: KindVideos}), menuButton())})
}

func (b *Bot) selectVideo(ctx context.Context, chatID int64, tok string) error {
	e, ok, err := b.lookupVideo(ctx, chatID, tok)
	if !ok {
		return err
	}
	if fsutil.IsMissing(e.Path) {
		slog.Warn("Catalogued video file is missing", "chat_id", chatID, "video_id", e.ID, "path", e.Path)
		b.say(ctx, chatID, "❌ The video file is missing. You can delete this entry from the list.", menuOnly())
		return nil
	}

	caption := e.Title
	if caption == "" {
		caption = acquire.DisplayName(e.FileName)
	}

	s := b.sessions.Get(chatID)
	s.ResetFlow()
	s.State = session.AwaitingPlatformChoice
	s.VideoPath = e.Path
	s.VideoID = e.ID
	s.Caption = caption
	b.sessions.Put(s)

	b.say(ctx, chatID, fmt.Sprintf("✨ %s\n\nWhere should it be published?", caption), targetKeyboard())
	return nil
}

func (b *Bot) manageVideo(ctx context.Context, chatID int64, tok string) error {
	e, ok, err := b.lookupVideo(ctx, chatID, tok)
	if !ok {
		return err
	}
	b.say(ctx, chatID, videoDetailText(e, b.loc), videoDetailKeyboard(tok))
	return nil
}

func (b *Bot) deleteVideo(ctx context.Context, chatID int64, tok string) error {
	e, ok, err := b.lookupVideo(ctx, chatID, tok)
	if !ok {
		return err
	}

	removed, err := b.catalog.Delete(e.ID)
	if err != nil {
		if removed.ID == "" {
			slog.Error("Failed to delete video", "chat_id", chatID, "video_id", e.ID, "error", err)
			b.say(ctx, chatID, "❌ Could not delete the video.", menuOnly())
			return err
		}
		slog.Warn("Video entry removed but file remains", "video_id", e.ID, "path", e.Path, "error", err)
	}

	if b.archive != nil && removed.ArchiveObject != "" {
		if err := b.archive.Delete(ctx, removed.ArchiveObject); err != nil {
			slog.Warn("Failed to delete archived video", "object", removed.ArchiveObject, "error", err)
		}
	}

	s := b.sessions.Get(chatID)
	delete(s.VideoIndex, tok)
	if s.VideoID == e.ID {
		s.ResetFlow()
	}
	b.sessions.Put(s)

	audit.Record(ctx, b.audit, audit.VideoDeleted, chatID, map[string]any{
		"videoId": e.ID,
		"path":    e.Path,
	})
	slog.Info("Video deleted", "chat_id", chatID, "video_id", e.ID, "path", e.Path)

	b.say(ctx, chatID, "✅ Video deleted.", nil)
	return b.showVideos(ctx, chatID)
}

// videoLost answers a publish button pressed without a prepared video.
func (b *Bot) videoLost(ctx context.Context, chatID int64) error {
	b.sessions.Reset(chatID)
	b.say(ctx, chatID, "❌ Video info not found! Please select the video again.", menuOnly())
	return nil
}

func (b *Bot) chooseTarget(ctx context.Context, chatID int64, arg string) error {
	s := b.sessions.Get(chatID)
	if s.VideoPath == "" || (s.State != session.AwaitingPlatformChoice && s.State != session.AwaitingScheduleChoice) {
		return b.videoLost(ctx, chatID)
	}

	target, err := dispatch.ParseTarget(arg)
	if err != nil {
		slog.Warn("Unknown target", "chat_id", chatID, "target", arg)
		return nil
	}

	s.Target = string(target)
	s.State = session.AwaitingScheduleChoice
	b.sessions.Put(s)

	question := "⏰ When should it be published?"
	if target == dispatch.TargetBoth {
		question = "⏰ When should it go to Instagram and YouTube?"
	}
	b.say(ctx, chatID, question, whenKeyboard())
	return nil
}

func (b *Bot) readyToPublish(s session.Session) bool {
	return s.State == session.AwaitingScheduleChoice && s.VideoPath != "" && s.Target != ""
}

func (b *Bot) publishNow(ctx context.Context, chatID int64) error {
	s := b.sessions.Get(chatID)
	if !b.readyToPublish(s) {
		return b.videoLost(ctx, chatID)
	}

	target := dispatch.Target(s.Target)
	label := uploadingLabel(target)
	status, err := b.startStatus(ctx, chatID, label)
	if err != nil {
		return err
	}

	outcome, err := b.dispatcher.Dispatch(ctx, dispatch.Request{
		VideoPath: s.VideoPath,
		Caption:   s.Caption,
		Target:    target,
	}, status.Stage(label, 0, 100))
	status.Close()
	if outcome == nil {
		outcome = &dispatch.Outcome{Target: target, Err: err}
	}

	for _, r := range outcome.Results {
		b.markPublished(s.VideoID, s.VideoPath, r.Platform)
	}
	b.recordUpload(ctx, chatID, outcome)
	b.sessions.Reset(chatID)

	b.replace(ctx, status.ref, publishReport(outcome, s.Caption), menuOnly())
	return err
}

func (b *Bot) markPublished(videoID, path string, p distribution.Platform) {
	if videoID != "" {
		err := b.catalog.MarkPublished(videoID, p)
		if err == nil {
			return
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			slog.Warn("Failed to mark video published", "video_id", videoID, "platform", p, "error", err)
			return
		}
	}
	if _, err := b.catalog.MarkPublishedByPath(path, p); err != nil {
		slog.Warn("Failed to mark video published", "path", path, "platform", p, "error", err)
	}
}

func (b *Bot) recordUpload(ctx context.Context, chatID int64, o *dispatch.Outcome) {
	data := map[string]any{"status": "success"}
	if o.Err != nil {
		data["status"] = "error"
		data["error"] = o.Err.Error()
	}
	for _, r := range o.Results {
		data[string(r.Platform)+"Url"] = r.URL
	}

	typ := audit.CrossUpload
	switch o.Target {
	case dispatch.TargetInstagram:
		typ = audit.InstagramUpload
	case dispatch.TargetYouTube:
		typ = audit.YouTubeUpload
	}
	audit.Record(ctx, b.audit, typ, chatID, data)
}

func (b *Bot) askSchedule(ctx context.Context, chatID int64) error {
	s := b.sessions.Get(chatID)
	if !b.readyToPublish(s) {
		return b.videoLost(ctx, chatID)
	}

	s.State = session.AwaitingScheduleDateTime
	b.sessions.Put(s)

	b.say(ctx, chatID, "📅 Send the publish date and time in this format:\n\nDD.MM.YYYY HH:MM\nExample: 01.02.2025 15:30", nil)
	return nil
}

// schedule turns the date text into jobs. Bad input keeps the chat waiting
// for another date.
func (b *Bot) schedule(ctx context.Context, s session.Session, text string) error {
	chatID := s.ChatID
	now := b.now()

	at, err := ParseSchedule(text, now, b.loc)
	if err != nil {
		audit.Record(ctx, b.audit, audit.PostScheduleError, chatID, map[string]any{"error": err.Error(), "input": text})
		if errors.Is(err, ErrNotInFuture) {
			b.say(ctx, chatID, "❌ That time has already passed. Please enter a future date.", nil)
		} else {
			b.say(ctx, chatID, "❌ Invalid date format! Please use DD.MM.YYYY HH:MM.\nExample: 25.02.2025 15:30", nil)
		}
		return nil
	}

	target := dispatch.Target(s.Target)
	planned := jobs.Plan(chatID, target.Platforms(), s.VideoPath, s.Caption, at, now)
	if err := b.jobs.PutAll(planned); err != nil {
		slog.Error("Failed to save scheduled post", "chat_id", chatID, "path", s.VideoPath, "error", err)
		audit.Record(ctx, b.audit, audit.PostScheduleError, chatID, map[string]any{"error": err.Error()})
		b.say(ctx, chatID, "❌ Could not save the scheduled post. Please send the date again.", nil)
		return err
	}

	if len(planned) > 1 {
		data := map[string]any{"scheduledDate": at.UTC().Format("2006-01-02T15:04:05.000Z")}
		for _, j := range planned {
			data[string(j.Platform)+"PostId"] = j.ID
		}
		audit.Record(ctx, b.audit, audit.CrossPostScheduled, chatID, data)
	} else {
		audit.Record(ctx, b.audit, audit.PostScheduled, chatID, map[string]any{
			"postId":        planned[0].ID,
			"platform":      planned[0].Platform,
			"scheduledDate": at.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	slog.Info("Post scheduled", "chat_id", chatID, "jobs", len(planned), "at", at, "path", s.VideoPath)

	b.sessions.Reset(chatID)
	b.say(ctx, chatID, scheduledText(target, at, s.Caption, b.loc), afterScheduleKeyboard())
	return nil
}

func (b *Bot) showJobs(ctx context.Context, chatID int64) error {
	list, err := b.jobs.ListByOwner(chatID)
	if err != nil {
		slog.Error("Failed to list scheduled posts", "chat_id", chatID, "error", err)
		b.say(ctx, chatID, "❌ Could not load the scheduled posts.", menuOnly())
		return err
	}
	if len(list) == 0 {
		b.say(ctx, chatID, "📅 No scheduled posts.", menuOnly())
		return nil
	}

	b.say(ctx, chatID, "📅 Scheduled posts:\n\nTap a post for details.", jobListKeyboard(list, b.loc))
	return nil
}

func (b *Bot) showJob(ctx context.Context, chatID int64, id string) error {
	j, ok, err := b.jobs.Get(chatID, id)
	if err != nil {
		slog.Error("Failed to read scheduled post", "chat_id", chatID, "job_id", id, "error", err)
		b.say(ctx, chatID, "❌ Could not load the scheduled post.", menuOnly())
		return err
	}
	if !ok {
		b.jobNotFound(ctx, chatID)
		return nil
	}

	b.say(ctx, chatID, jobDetailText(j, b.loc), jobDetailKeyboard(j.ID))
	return nil
}

func (b *Bot) jobNotFound(ctx context.Context, chatID int64) {
	b.say(ctx, chatID, "❌ Scheduled post not found.",
		telegram.Keyboard{telegram.Row(button("📅 Scheduled posts", Command{Kind: KindJobs}), menuButton())})
}

func (b *Bot) cancelJob(ctx context.Context, chatID int64, id string) error {
	removed, err := b.jobs.Remove(chatID, id)
	if err != nil {
		slog.Error("Failed to cancel scheduled post", "chat_id", chatID, "job_id", id, "error", err)
		b.say(ctx, chatID, "❌ Could not cancel the scheduled post.", menuOnly())
		return err
	}
	if !removed {
		b.jobNotFound(ctx, chatID)
		return nil
	}

	audit.Record(ctx, b.audit, audit.PostCancelled, chatID, map[string]any{"postId": id})
	slog.Info("Scheduled post cancelled", "chat_id", chatID, "job_id", id)

	b.say(ctx, chatID, "✅ Scheduled post cancelled.", nil)
	return b.showJobs(ctx, chatID)
}

func (b *Bot) cancelAll(ctx context.Context, chatID int64) error {
	n, err := b.jobs.RemoveOwner(chatID)
	if err != nil {
		slog.Error("Failed to cancel scheduled posts", "chat_id", chatID, "error", err)
		b.say(ctx, chatID, "❌ Could not cancel the scheduled posts.", menuOnly())
		return err
	}

	audit.Record(ctx, b.audit, audit.PostCancelled, chatID, map[string]any{"all": true, "count": n})
	slog.Info("All scheduled posts cancelled", "chat_id", chatID, "count", n)

	b.say(ctx, chatID, fmt.Sprintf("✅ Cancelled %d scheduled post(s).", n), menuOnly())
	return nil
}

func (b *Bot) showSettings(ctx context.Context, u telegram.Update) {
	st := b.settings.Get()
	wm := st.Watermark
	if wm == "" {
		wm = "not set"
	}
	allowed := "everyone"
	if n := len(st.AllowedUsers); n > 0 {
		allowed = fmt.Sprintf("%d user(s)", n)
	}

	b.say(ctx, u.ChatID, fmt.Sprintf("⚙️ Bot settings\n\n✏️ Watermark: %s\n👥 Allowed: %s\n🆔 Your id: %d", wm, allowed, callerID(u)), settingsKeyboard())
}

func (b *Bot) whoAmI(ctx context.Context, u telegram.Update) {
	text := fmt.Sprintf("🆔 Your Telegram id: `%d`\n\nAdd it to `allowed_users` to restrict the bot to you.", callerID(u))
	_, _ = b.send(ctx, u.ChatID, text, &telegram.SendOptions{ParseMode: telegram.ModeMarkdown, Keyboard: backToSettings()})
}

func (b *Bot) askWatermark(ctx context.Context, chatID int64) {
	s := b.sessions.Get(chatID)
	s.ResetFlow()
	s.State = session.AwaitingWatermarkText
	b.sessions.Put(s)

	b.say(ctx, chatID, "✏️ Send the text to stamp on videos.\nType 'cancel' to abort.", nil)
}

func (b *Bot) setWatermark(ctx context.Context, chatID int64, text string) error {
	switch strings.ToLower(text) {
	case "cancel", "iptal":
		b.sessions.Reset(chatID)
		b.say(ctx, chatID, "❌ Cancelled.", backToSettings())
		return nil
	}

	if err := b.settings.SetWatermark(text); err != nil {
		slog.Error("Failed to save watermark", "chat_id", chatID, "error", err)
		b.say(ctx, chatID, "❌ Could not save the watermark. Please try again.", backToSettings())
		return err
	}

	audit.Record(ctx, b.audit, audit.SettingsUpdated, chatID, map[string]any{"watermark": text})
	b.sessions.Reset(chatID)
	b.say(ctx, chatID, "✅ Watermark updated!", backToSettings())
	return nil
}

// clearMessages deletes the bot messages tracked for this chat. Messages
// Telegram refuses to delete, such as ones older than 48 hours, are skipped.
func (b *Bot) clearMessages(ctx context.Context, chatID int64) {
	ids := b.sessions.TakeMessages(chatID)
	deleted := 0
	for _, id := range ids {
		if err := b.msgr.Delete(ctx, telegram.MessageRef{ChatID: chatID, MessageID: id}); err != nil {
			slog.Debug("Failed to delete message", "chat_id", chatID, "message_id", id, "error", err)
			continue
		}
		deleted++
	}
	slog.Info("Messages cleared", "chat_id", chatID, "deleted", deleted, "tracked", len(ids))

	b.sessions.Reset(chatID)
	b.say(ctx, chatID, "✨ Messages cleared!\n\nWhat would you like to do?", mainMenu())
}
