package bot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reelpost/internal/catalog"
	"reelpost/internal/dispatch"
	"reelpost/internal/distribution"
	"reelpost/internal/jobs"
	"reelpost/internal/telegram"
)

const (
	barCells      = 20
	maxButtonText = 30
)

// progressBar renders "[████▒▒▒…] 20%".
func progressBar(pct int) string {
	pct = max(0, min(pct, 100))
	filled := int(math.Round(barCells * float64(pct) / 100))
	return fmt.Sprintf("[%s%s] %d%%", strings.Repeat("█", filled), strings.Repeat("▒", barCells-filled), pct)
}

func statusText(label string, pct int) string {
	return label + "\n\n" + progressBar(pct)
}

func button(text string, cmd Command) telegram.Button {
	return telegram.Button{Text: text, Data: cmd.Encode()}
}

func menuButton() telegram.Button {
	return button("🏠 Main menu", Command{Kind: KindMenu})
}

func mainMenu() telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(
			button("📥 Instagram video", Command{Kind: KindSource, Arg: "instagram"}),
			button("📥 TikTok video", Command{Kind: KindSource, Arg: "tiktok"}),
		),
		telegram.Row(button("📂 Saved videos", Command{Kind: KindVideos})),
		telegram.Row(button("📅 Scheduled posts", Command{Kind: KindJobs})),
		telegram.Row(button("⚙️ Settings", Command{Kind: KindSettings})),
		telegram.Row(button("🗑️ Clear messages", Command{Kind: KindClear})),
	}
}

func menuOnly() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(menuButton())}
}

func targetKeyboard() telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(
			button("📱 Instagram Reels", Command{Kind: KindTarget, Arg: string(dispatch.TargetInstagram)}),
			button("📺 YouTube Shorts", Command{Kind: KindTarget, Arg: string(dispatch.TargetYouTube)}),
		),
		telegram.Row(button("🔄 Both", Command{Kind: KindTarget, Arg: string(dispatch.TargetBoth)})),
		telegram.Row(menuButton()),
	}
}

func whenKeyboard() telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(
			button("🚀 Publish now", Command{Kind: KindNow}),
			button("📅 Schedule", Command{Kind: KindLater}),
		),
		telegram.Row(menuButton()),
	}
}

func settingsKeyboard() telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(button("🆔 Show my Telegram id", Command{Kind: KindWhoAmI})),
		telegram.Row(button("✏️ Edit watermark", Command{Kind: KindWatermark})),
		telegram.Row(menuButton()),
	}
}

func backToSettings() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(button("⚙️ Back to settings", Command{Kind: KindSettings}))}
}

func afterScheduleKeyboard() telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(
		button("📅 Scheduled posts", Command{Kind: KindJobs}),
		menuButton(),
	)}
}

func platformIcon(p distribution.Platform) string {
	switch p {
	case distribution.Instagram:
		return "📱"
	case distribution.YouTube:
		return "📺"
	}
	return "•"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// videoListKeyboard numbers entries from 1 and returns the token index the
// buttons refer to.
func videoListKeyboard(entries []catalog.Entry) (telegram.Keyboard, map[string]string) {
	index := make(map[string]string, len(entries))
	kb := make(telegram.Keyboard, 0, len(entries)+1)

	for i, e := range entries {
		tok := strconv.Itoa(i + 1)
		index[tok] = e.ID

		label := fmt.Sprintf("%s. %s", tok, truncate(e.Title, maxButtonText))
		var icons []string
		for _, p := range e.Platforms {
			icons = append(icons, platformIcon(p))
		}
		if len(icons) > 0 {
			label += " " + strings.Join(icons, " ")
		}

		kb = append(kb, telegram.Row(
			button(label, Command{Kind: KindSelectVideo, Arg: tok}),
			button("⚙️", Command{Kind: KindManageVideo, Arg: tok}),
		))
	}
	kb = append(kb, telegram.Row(menuButton()))
	return kb, index
}

func videoDetailText(e catalog.Entry, loc *time.Location) string {
	published := "not yet"
	if len(e.Platforms) > 0 {
		names := make([]string, 0, len(e.Platforms))
		for _, p := range e.Platforms {
			names = append(names, p.Title())
		}
		published = strings.Join(names, ", ")
	}
	return fmt.Sprintf("🎬 %s\n\n📅 Created: %s\n📤 Published to: %s",
		e.Title, FormatSchedule(e.CreatedAt, loc), published)
}

func videoDetailKeyboard(tok string) telegram.Keyboard {
	return telegram.Keyboard{
		telegram.Row(
			button("🗑️ Delete", Command{Kind: KindDeleteVideo, Arg: tok}),
			button("🚀 Publish", Command{Kind: KindSelectVideo, Arg: tok}),
		),
		telegram.Row(button("⬅️ Back", Command{Kind: KindVideos})),
	}
}

func jobListKeyboard(list []jobs.Job, loc *time.Location) telegram.Keyboard {
	kb := make(telegram.Keyboard, 0, len(list)+1)
	for i, j := range list {
		label := fmt.Sprintf("%d. %s %s - %s", i+1, platformIcon(j.Platform), j.Platform.Title(), FormatSchedule(j.ScheduledAt, loc))
		kb = append(kb, telegram.Row(button(label, Command{Kind: KindJob, Arg: j.ID})))
	}
	kb = append(kb, telegram.Row(
		button("🗑️ Cancel all", Command{Kind: KindCancelAll}),
		menuButton(),
	))
	return kb
}

func jobDetailText(j jobs.Job, loc *time.Location) string {
	return fmt.Sprintf("📅 Scheduled post\n\nPlatform: %s\nDate: %s\nCaption: %s",
		j.Platform.Title(), FormatSchedule(j.ScheduledAt, loc), j.Caption)
}

func jobDetailKeyboard(id string) telegram.Keyboard {
	return telegram.Keyboard{telegram.Row(
		button("✅ Cancel this post", Command{Kind: KindCancelJob, Arg: id}),
		button("⬅️ Back", Command{Kind: KindJobs}),
	)}
}

func scheduledText(target dispatch.Target, at time.Time, caption string, loc *time.Location) string {
	head := "✅ Post scheduled!"
	if target == dispatch.TargetBoth {
		head = "✅ Cross-post scheduled!"
	}
	return fmt.Sprintf("%s\n\nPlatform: %s\nDate: %s\nCaption: %s", head, target.Title(), FormatSchedule(at, loc), caption)
}

func uploadingLabel(target dispatch.Target) string {
	if target == dispatch.TargetBoth {
		return "🔄 Uploading to both platforms..."
	}
	return fmt.Sprintf("📤 Uploading to %s...", target.Title())
}

// publishReport describes a dispatch outcome. Partial success lists what
// did publish before naming the failure.
func publishReport(o *dispatch.Outcome, caption string) string {
	var b strings.Builder

	switch {
	case o.Succeeded() && len(o.Results) == 1:
		r := o.Results[0]
		fmt.Fprintf(&b, "✅ Published to %s!\n\n🎥 URL: %s\n📝 Caption: %s", r.Platform.Title(), r.URL, caption)
		return b.String()
	case o.Succeeded():
		b.WriteString("✅ Published to both platforms!\n\n")
		writeResults(&b, o.Results)
		fmt.Fprintf(&b, "📝 Caption: %s", caption)
		return b.String()
	case o.Partial():
		fmt.Fprintf(&b, "⚠️ Partly published. %s upload failed:\n%v\n\n", o.Failed.Title(), failureCause(o.Err))
		writeResults(&b, o.Results)
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "❌ %s upload failed:\n%v", o.Failed.Title(), failureCause(o.Err))
	for _, p := range o.Skipped {
		fmt.Fprintf(&b, "\n%s was not attempted.", p.Title())
	}
	return b.String()
}

func writeResults(b *strings.Builder, results []dispatch.Result) {
	for _, r := range results {
		fmt.Fprintf(b, "%s %s: %s\n", platformIcon(r.Platform), r.Platform.Title(), r.URL)
	}
}

func failureCause(err error) error {
	var ue *dispatch.UploadError
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
