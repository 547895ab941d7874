package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const (
	ModeMarkdown = tele.ModeMarkdown
	ModeHTML     = tele.ModeHTML

	defaultPollTimeout = 10 * time.Second
)

type Handler func(ctx context.Context, u Update)

// Client wraps a long-polling telebot instance behind transport-neutral types.
type Client struct {
	bot *tele.Bot
}

func NewClient(token string, pollTimeout time.Duration) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c tele.Context) {
			slog.Warn("Telegram handler error", "error", err)
		},
	})
	if err != nil {
		return nil, err
	}
	return &Client{bot: b}, nil
}

// Run delivers updates to h until ctx is cancelled. Handlers run concurrently;
// callers serialize per chat themselves.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.bot.Handle(tele.OnText, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		u := Update{
			ChatID:    m.Chat.ID,
			MessageID: m.ID,
			Text:      m.Text,
		}
		if m.Sender != nil {
			u.UserID = m.Sender.ID
			u.Username = m.Sender.Username
		}
		h(ctx, u)
		return nil
	})

	c.bot.Handle(tele.OnCallback, func(tc tele.Context) error {
		cb := tc.Callback()
		if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
			return nil
		}
		u := Update{
			ChatID:       cb.Message.Chat.ID,
			MessageID:    cb.Message.ID,
			CallbackID:   cb.ID,
			CallbackData: strings.TrimPrefix(cb.Data, "\f"),
		}
		if cb.Sender != nil {
			u.UserID = cb.Sender.ID
			u.Username = cb.Sender.Username
		}
		h(ctx, u)
		return nil
	})

	go func() {
		<-ctx.Done()
		c.bot.Stop()
	}()

	slog.Info("Telegram polling started", "bot", c.bot.Me.Username)
	c.bot.Start()
	slog.Info("Telegram polling stopped")
	return nil
}

func (c *Client) SetCommands(cmds []Command) error {
	out := make([]tele.Command, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, tele.Command{Text: cmd.Name, Description: cmd.Description})
	}
	return c.bot.SetCommands(out)
}

func (c *Client) Send(ctx context.Context, chatID int64, text string, opt *SendOptions) (MessageRef, error) {
	msg, err := c.bot.Send(&tele.Chat{ID: chatID}, text, sendOptions(opt))
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// Edit replaces a message's text. Edits that change nothing are not errors.
func (c *Client) Edit(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := c.bot.Edit(m, text, sendOptions(opt))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) Delete(ctx context.Context, ref MessageRef) error {
	return c.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}})
}

func (c *Client) Answer(ctx context.Context, callbackID, text string) error {
	return c.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func sendOptions(opt *SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	out := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if opt.Keyboard != nil {
		out.ReplyMarkup = markup(opt.Keyboard)
	}
	return out
}

func markup(kb Keyboard) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, btns)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
