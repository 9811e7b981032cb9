package bot

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/logger"
	tghelpers "github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
)

func (h *Handlers) cmdStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}

	// One-time admin bootstrap: the configured Telegram id gets the global
	// admin role on first contact.
	if h.cfg.AdminTelegramID != 0 && user.TelegramID == h.cfg.AdminTelegramID && !user.IsAdmin() {
		if err := h.store.SetUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return fail(c, err)
		}
		user.Role = models.RoleAdmin
		logger.TG.InfoContext(ctx, "admin bootstrapped",
			slog.String("event", "users.admin_bootstrap"),
			slog.Int64("user_id", user.TelegramID),
		)
	}

	h.sessions.Clear(user.TelegramID)
	return h.sendGroupSelect(ctx, c, user)
}

func (h *Handlers) cmdCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	h.sessions.Clear(c.Sender().ID)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if err := c.Send(ui.MsgFlowCancelled); err != nil {
		return err
	}
	return h.sendGroupSelect(ctx, c, user)
}

func (h *Handlers) cmdAdmin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}
	return c.Send(ui.MsgAdminPanel, ui.AdminPanel())
}

// actingUser resolves (and on first contact creates) the sender's user row.
// Every handler re-resolves; nothing is cached across updates.
func (h *Handlers) actingUser(ctx context.Context, c tele.Context) (models.User, error) {
	s := c.Sender()
	return h.store.UpsertUser(ctx, s.ID, s.Username, s.FirstName, s.LastName)
}

func (h *Handlers) sendGroupSelect(ctx context.Context, c tele.Context, user models.User) error {
	groups, err := h.store.ListGroupsForUser(ctx, user.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.Send(ui.MsgChooseGroup, ui.GroupSelect(groups))
}

// editGroupSelect is the callback variant: edits in place when possible.
func (h *Handlers) editGroupSelect(ctx context.Context, c tele.Context, user models.User) error {
	groups, err := h.store.ListGroupsForUser(ctx, user.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.MsgChooseGroup, ui.GroupSelect(groups))
}
