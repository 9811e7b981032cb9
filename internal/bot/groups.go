package bot

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/storage"
)

func (h *Handlers) onAddGroup(c tele.Context, _ action.Action) error {
	return h.flows.StartAddGroup(c)
}

func (h *Handlers) onBackToGroups(c tele.Context, _ action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	return h.editGroupSelect(ctx, c, user)
}

// onBrowseGroups lists active groups the user has not joined yet.
func (h *Handlers) onBrowseGroups(c tele.Context, _ action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	all, err := h.store.ListActiveGroups(ctx)
	if err != nil {
		return fail(c, err)
	}
	mine, err := h.store.ListGroupsForUser(ctx, user.ID)
	if err != nil {
		return fail(c, err)
	}
	member := make(map[int64]bool, len(mine))
	for _, g := range mine {
		member[g.ID] = true
	}
	joinable := make([]models.Group, 0, len(all))
	for _, g := range all {
		if !member[g.ID] {
			joinable = append(joinable, g)
		}
	}
	if len(joinable) == 0 {
		return c.EditOrSend(ui.MsgNoJoinableGroups, ui.BackToGroups())
	}
	return c.EditOrSend(ui.MsgBrowseGroups, ui.BrowseGroups(joinable))
}

// onSelectGroup opens the group hub. Opening a group the user never joined
// creates the member row implicitly.
func (h *Handlers) onSelectGroup(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	group, err := h.store.GetGroupByID(ctx, a.GroupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgGroupNotFound)
		}
		return fail(c, err)
	}
	membership, err := h.store.GetMembership(ctx, user.ID, group.ID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := h.store.CreateMembership(ctx, user.ID, group.ID, models.MembershipMember); err != nil {
			return fail(c, err)
		}
		membership = models.Membership{UserID: user.ID, GroupID: group.ID, Role: models.MembershipMember}
	} else if err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.GroupMenuText(group), ui.GroupMenu(group.ID, membership.IsCurator() || user.IsAdmin()))
}

// onJoinGroup is idempotent: joining twice keeps one membership row.
func (h *Handlers) onJoinGroup(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	group, err := h.store.GetGroupByID(ctx, a.GroupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgGroupNotFound)
		}
		return fail(c, err)
	}
	_, err = h.store.GetMembership(ctx, user.ID, group.ID)
	switch {
	case err == nil:
		return c.EditOrSend(ui.MsgAlreadyMember, ui.BackToGroupMenu(group.ID))
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fail(c, err)
	}
	if err := h.store.CreateMembership(ctx, user.ID, group.ID, models.MembershipMember); err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.MsgJoined+"\n\n"+ui.GroupMenuText(group), ui.GroupMenu(group.ID, user.IsAdmin()))
}

func (h *Handlers) onGroupMembers(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireMember(ctx, c, user, a.GroupID); !ok {
		return err
	}
	members, err := h.store.ListMembers(ctx, a.GroupID)
	if err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.MembersText(members), ui.BackToGroupMenu(a.GroupID))
}

func (h *Handlers) onNotifySettings(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	return h.sendSettings(ctx, c, user, a.GroupID)
}

// onToggle flips the global or per-group notification flag and redisplays
// the settings view.
func (h *Handlers) onToggle(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	switch a.Toggle {
	case action.ToggleGlobal:
		if err := h.store.SetNotificationsEnabled(ctx, user.ID, !user.NotificationsEnabled); err != nil {
			return fail(c, err)
		}
	case action.ToggleGroup:
		if err := h.store.SetGroupNotificationSetting(ctx, user.ID, a.GroupID, !groupToggleValue(user, a.GroupID)); err != nil {
			return fail(c, err)
		}
	}
	// Re-read for the redisplayed view.
	user, err = h.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return fail(c, err)
	}
	return h.sendSettings(ctx, c, user, a.GroupID)
}

func (h *Handlers) onEditGroupDesc(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireCurator(ctx, c, user, a.GroupID); !ok {
		return err
	}
	return h.flows.StartEditDescription(c, a.GroupID)
}

func (h *Handlers) sendSettings(ctx context.Context, c tele.Context, user models.User, groupID int64) error {
	group, err := h.store.GetGroupByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgGroupNotFound)
		}
		return fail(c, err)
	}
	isCurator := user.IsAdmin()
	if m, err := h.store.GetMembership(ctx, user.ID, groupID); err == nil {
		isCurator = isCurator || m.IsCurator()
	}
	return c.EditOrSend(ui.SettingsText(group),
		ui.Settings(groupID, user.NotificationsEnabled, groupToggleValue(user, groupID), isCurator))
}

// groupToggleValue reads the raw per-group flag, ignoring the global toggle:
// the settings view shows both switches independently.
func groupToggleValue(user models.User, groupID int64) bool {
	v, ok := user.Settings[models.GroupNotificationsKey(groupID)]
	if !ok {
		return true
	}
	b, isBool := v.(bool)
	if !isBool {
		return true
	}
	return b
}

// requireMember replies with a soft rejection when the user is not in the
// group. Admins pass regardless.
func (h *Handlers) requireMember(ctx context.Context, c tele.Context, user models.User, groupID int64) (models.Membership, bool, error) {
	m, err := h.store.GetMembership(ctx, user.ID, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		if user.IsAdmin() {
			return models.Membership{UserID: user.ID, GroupID: groupID, Role: models.MembershipMember}, true, nil
		}
		return models.Membership{}, false, c.Send(ui.MsgNotMember)
	}
	if err != nil {
		return models.Membership{}, false, fail(c, err)
	}
	return m, true, nil
}

// requireCurator replies with a soft rejection for non-curators. Admins pass.
func (h *Handlers) requireCurator(ctx context.Context, c tele.Context, user models.User, groupID int64) (models.Membership, bool, error) {
	m, err := h.store.GetMembership(ctx, user.ID, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		if user.IsAdmin() {
			return models.Membership{UserID: user.ID, GroupID: groupID, Role: models.MembershipCurator}, true, nil
		}
		return models.Membership{}, false, c.Send(ui.MsgNotMember)
	}
	if err != nil {
		return models.Membership{}, false, fail(c, err)
	}
	if !m.IsCurator() && !user.IsAdmin() {
		return models.Membership{}, false, c.Send(ui.MsgNotCurator)
	}
	return m, true, nil
}
