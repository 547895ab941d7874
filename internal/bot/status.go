package bot

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"reelpost/internal/telegram"
	"reelpost/pkg/progress"
)

// statusLine is an editable progress message. Edits are throttled; the last
// event is always rendered before Close returns.
type statusLine struct {
	msgr    Messenger
	ref     telegram.MessageRef
	tracker *progress.Tracker
	limiter *rate.Limiter
	every   time.Duration
	done    chan struct{}
	shown   string
}

func (b *Bot) startStatus(ctx context.Context, chatID int64, label string) (*statusLine, error) {
	text := statusText(label, 0)
	ref, err := b.send(ctx, chatID, text, nil)
	if err != nil {
		return nil, err
	}

	s := &statusLine{
		msgr:    b.msgr,
		ref:     ref,
		tracker: progress.NewTracker(16),
		limiter: rate.NewLimiter(rate.Every(b.progressInterval), 1),
		every:   b.progressInterval,
		done:    make(chan struct{}),
		shown:   text,
	}
	go s.loop(ctx)
	return s, nil
}

// Stage maps a collaborator's 0-100 onto [lo, hi] under label.
func (s *statusLine) Stage(label string, lo, hi int) progress.Func {
	return s.tracker.Stage(label, lo, hi)
}

func (s *statusLine) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	var pending *progress.Event
	for {
		select {
		case ev, ok := <-s.tracker.Events():
			if !ok {
				if pending != nil {
					s.render(ctx, *pending)
				}
				return
			}
			if s.limiter.Allow() {
				s.render(ctx, ev)
				pending = nil
			} else {
				pending = &ev
			}
		case <-ticker.C:
			if pending != nil && s.limiter.Allow() {
				s.render(ctx, *pending)
				pending = nil
			}
		}
	}
}

func (s *statusLine) render(ctx context.Context, ev progress.Event) {
	text := statusText(ev.Stage, ev.Percent)
	if text == s.shown {
		return
	}
	if err := s.msgr.Edit(ctx, s.ref, text, nil); err != nil {
		slog.Debug("Failed to update progress", "chat_id", s.ref.ChatID, "error", err)
		return
	}
	s.shown = text
}

// Close flushes the last event and stops the render loop.
func (s *statusLine) Close() {
	s.tracker.Close()
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		slog.Warn("Progress renderer did not stop", "chat_id", s.ref.ChatID)
	}
}
