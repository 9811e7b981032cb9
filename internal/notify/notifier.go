// Package notify delivers direct messages to users outside of a reply
// context: curator broadcasts, deadline reminders, and request-resolution
// notices.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/core/telegram/sender"
	"github.com/m3rciful/groupbot/internal/models"
)

// ErrNotBound is returned for sends attempted before Bind.
var ErrNotBound = errors.New("notify: no bot bound")

// Sender is the outbound surface of *tele.Bot used here.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier sends messages addressed by Telegram user id. Counted fan-outs go
// out synchronously so callers can report accurate sent/failed totals;
// best-effort one-off notices go through the async dispatcher. The bot handle
// is bound at startup, after the transport has been built.
type Notifier struct {
	bot  atomic.Pointer[Sender]
	disp *sender.Dispatcher
}

func New(disp *sender.Dispatcher) *Notifier {
	return &Notifier{disp: disp}
}

// Bind attaches the outbound transport. Called once from the startup hook.
func (n *Notifier) Bind(bot Sender) {
	n.bot.Store(&bot)
}

// Direct sends one message and returns the delivery error.
func (n *Notifier) Direct(ctx context.Context, telegramID int64, text string, opts ...interface{}) error {
	bp := n.bot.Load()
	if bp == nil {
		return ErrNotBound
	}
	_, err := (*bp).Send(&tele.User{ID: telegramID}, text, opts...)
	return err
}

// DirectAsync enqueues a best-effort message. Failures are logged by the
// dispatcher and never returned to the caller.
func (n *Notifier) DirectAsync(ctx context.Context, action string, telegramID int64, text string, opts ...interface{}) {
	err := n.disp.Enqueue(ctx, action, "sendMessage", func() error {
		return n.Direct(context.Background(), telegramID, text, opts...)
	})
	if err != nil {
		logger.TG.WarnContext(ctx, "notify enqueue failed",
			slog.String("event", "notify.enqueue"),
			slog.String("action", action),
			slog.Int64("user_id", telegramID),
			slog.String("err", err.Error()),
		)
	}
}

// Broadcast sends text to every recipient and returns sent/failed counts.
// A failing recipient is logged and skipped; the rest of the batch proceeds.
func (n *Notifier) Broadcast(ctx context.Context, recipients []models.User, text string) (sent, failed int) {
	for _, u := range recipients {
		if err := n.Direct(ctx, u.TelegramID, text); err != nil {
			failed++
			logger.TG.WarnContext(ctx, "broadcast send failed",
				slog.String("event", "notify.broadcast"),
				slog.Int64("user_id", u.TelegramID),
				slog.String("err", err.Error()),
			)
			continue
		}
		sent++
	}
	return sent, failed
}
