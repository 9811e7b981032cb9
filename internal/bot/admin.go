package bot

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/storage"
)

func (h *Handlers) onBackToAdmin(c tele.Context, _ action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}
	return c.EditOrSend(ui.MsgAdminPanel, ui.AdminPanel())
}

func (h *Handlers) onAdminBranch(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}

	switch a.Admin {
	case action.AdminRoles:
		groups, err := h.store.ListActiveGroups(ctx)
		if err != nil {
			return fail(c, err)
		}
		return c.EditOrSend("Pick a group to manage roles:", ui.AdminGroupPick(groups))

	case action.AdminGroupRequests:
		reqs, err := h.store.ListPendingGroupRequests(ctx)
		if err != nil {
			return fail(c, err)
		}
		if len(reqs) == 0 {
			return c.EditOrSend(ui.MsgNoPendingRequests, ui.AdminPanel())
		}
		labels := make([]string, len(reqs))
		ids := make([]int64, len(reqs))
		for i, r := range reqs {
			labels[i] = r.GroupName
			ids[i] = r.ID
		}
		return c.EditOrSend("Pending group requests:",
			ui.RequestList(labels, ids, action.KindApproveGroup, action.KindRejectGroup))

	case action.AdminSubjectRequests:
		reqs, err := h.store.ListPendingSubjectRequests(ctx)
		if err != nil {
			return fail(c, err)
		}
		if len(reqs) == 0 {
			return c.EditOrSend(ui.MsgNoPendingRequests, ui.AdminPanel())
		}
		labels := make([]string, len(reqs))
		ids := make([]int64, len(reqs))
		for i, r := range reqs {
			labels[i] = r.SubjectName
			ids[i] = r.ID
		}
		return c.EditOrSend("Pending subject requests:",
			ui.RequestList(labels, ids, action.KindApproveSubject, action.KindRejectSubject))
	}
	return nil
}

// onApproveGroup creates the group, its curator membership, and resolves the
// request in one transaction; the requester is notified best-effort.
func (h *Handlers) onApproveGroup(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}

	group, requester, err := h.store.ApproveGroupRequest(ctx, a.RequestID)
	if err != nil {
		if msg, handled := requestErrReply(err); handled {
			return c.EditOrSend(msg, ui.AdminPanel())
		}
		return fail(c, err)
	}
	h.notifier.DirectAsync(ctx, "notify.group_approved", requester.TelegramID,
		fmt.Sprintf("Your group %q was approved. You are its curator now.", group.Name))
	return c.EditOrSend(fmt.Sprintf("Group %q approved.", group.Name), ui.AdminPanel())
}

func (h *Handlers) onRejectGroup(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}

	req, requester, err := h.store.RejectGroupRequest(ctx, a.RequestID)
	if err != nil {
		if msg, handled := requestErrReply(err); handled {
			return c.EditOrSend(msg, ui.AdminPanel())
		}
		return fail(c, err)
	}
	h.notifier.DirectAsync(ctx, "notify.group_rejected", requester.TelegramID,
		fmt.Sprintf("Your group request %q was rejected.", req.GroupName))
	return c.EditOrSend(fmt.Sprintf("Group request %q rejected.", req.GroupName), ui.AdminPanel())
}

func (h *Handlers) onApproveSubject(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if ok, err := h.canResolveSubjectRequest(ctx, c, user, a.RequestID); !ok {
		return err
	}

	subject, _, requester, err := h.store.ApproveSubjectRequest(ctx, a.RequestID)
	if err != nil {
		if msg, handled := requestErrReply(err); handled {
			return c.EditOrSend(msg, ui.AdminPanel())
		}
		return fail(c, err)
	}
	h.notifier.DirectAsync(ctx, "notify.subject_approved", requester.TelegramID,
		fmt.Sprintf("Your subject %q was approved.", subject.Name))
	return c.EditOrSend(fmt.Sprintf("Subject %q approved.", subject.Name), ui.AdminPanel())
}

func (h *Handlers) onRejectSubject(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if ok, err := h.canResolveSubjectRequest(ctx, c, user, a.RequestID); !ok {
		return err
	}

	req, requester, err := h.store.RejectSubjectRequest(ctx, a.RequestID)
	if err != nil {
		if msg, handled := requestErrReply(err); handled {
			return c.EditOrSend(msg, ui.AdminPanel())
		}
		return fail(c, err)
	}
	h.notifier.DirectAsync(ctx, "notify.subject_rejected", requester.TelegramID,
		fmt.Sprintf("Your subject request %q was rejected.", req.SubjectName))
	return c.EditOrSend(fmt.Sprintf("Subject request %q rejected.", req.SubjectName), ui.AdminPanel())
}

// onRoleGroup shows the member list with role-toggle buttons.
func (h *Handlers) onRoleGroup(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}
	return h.sendRoleList(ctx, c, a.GroupID, "")
}

// onChangeRole toggles member↔curator. Demoting the last curator of a group
// is refused.
func (h *Handlers) onChangeRole(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if !user.IsAdmin() {
		return c.Send(ui.MsgNotAdmin)
	}

	membership, err := h.store.GetMembership(ctx, a.UserID, a.GroupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgNotMember)
		}
		return fail(c, err)
	}

	newRole := models.MembershipCurator
	if membership.IsCurator() {
		curators, err := h.store.CountCurators(ctx, a.GroupID)
		if err != nil {
			return fail(c, err)
		}
		if curators <= 1 {
			return h.sendRoleList(ctx, c, a.GroupID, ui.MsgSoleCuratorBlocked)
		}
		newRole = models.MembershipMember
	}
	if err := h.store.SetMembershipRole(ctx, a.UserID, a.GroupID, newRole); err != nil {
		return fail(c, err)
	}
	return h.sendRoleList(ctx, c, a.GroupID, "")
}

func (h *Handlers) sendRoleList(ctx context.Context, c tele.Context, groupID int64, note string) error {
	members, err := h.store.ListMembers(ctx, groupID)
	if err != nil {
		return fail(c, err)
	}
	text := "Tap a member to toggle curator:"
	if note != "" {
		text = note + "\n\n" + text
	}
	return c.EditOrSend(text, ui.RoleList(members, groupID))
}

// canResolveSubjectRequest gates subject approvals to admins and curators of
// the request's group.
func (h *Handlers) canResolveSubjectRequest(ctx context.Context, c tele.Context, user models.User, requestID int64) (bool, error) {
	if user.IsAdmin() {
		return true, nil
	}
	req, err := h.store.GetSubjectRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, c.Send(ui.MsgRequestNotFound)
		}
		return false, fail(c, err)
	}
	m, err := h.store.GetMembership(ctx, user.ID, req.GroupID)
	if err != nil || !m.IsCurator() {
		return false, c.Send(ui.MsgNotCurator)
	}
	return true, nil
}

// requestErrReply maps approval-path domain errors to user-facing replies.
func requestErrReply(err error) (string, bool) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ui.MsgRequestNotFound, true
	case errors.Is(err, storage.ErrConflict):
		return ui.MsgRequestResolved, true
	}
	return "", false
}
