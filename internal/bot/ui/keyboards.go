// Package ui renders the bot's texts and inline keyboards. Markups carry raw
// action strings produced by action.Encode, so every button round-trips
// through the same decode table the router uses.
package ui

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/telegram/keyboard"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/models"
)

// btn leaves Unique empty on purpose: the data must stay raw so the ordered
// prefix table can match it.
func btn(text string, a action.Action) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: text, Data: a.Encode()}
}

func markup(rows ...[]keyboard.InlineBtn) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(rows...)
}

// GroupSelect is the top-level view: the user's groups plus discovery and
// creation entries.
func GroupSelect(groups []models.Group) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(groups)+2)
	for _, g := range groups {
		rows = append(rows, []keyboard.InlineBtn{
			btn(g.Name, action.Action{Kind: action.KindSelectGroup, GroupID: g.ID}),
		})
	}
	rows = append(rows,
		[]keyboard.InlineBtn{btn("🔍 Browse groups", action.Action{Kind: action.KindPendingGroups})},
		[]keyboard.InlineBtn{btn("➕ Create group", action.Action{Kind: action.KindAddGroup})},
	)
	return markup(rows...)
}

// BrowseGroups lists joinable groups with join buttons.
func BrowseGroups(groups []models.Group) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(groups)+1)
	for _, g := range groups {
		rows = append(rows, []keyboard.InlineBtn{
			btn("➕ "+g.Name, action.Action{Kind: action.KindJoinGroup, GroupID: g.ID}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToGroupsBtn()})
	return markup(rows...)
}

// GroupMenu is the per-group hub. Curator-only entries appear only for
// curators; the button set is role-aware but every handler re-checks the role
// on press.
func GroupMenu(groupID int64, isCurator bool) *tele.ReplyMarkup {
	menu := func(sub string) action.Action {
		return action.Action{Kind: action.KindGroupMenu, Menu: sub, GroupID: groupID}
	}
	rows := [][]keyboard.InlineBtn{
		{btn("📋 Tasks", menu(action.MenuTasks)), btn("✅ Complete", menu(action.MenuComplete))},
		{btn("➕ Add task", menu(action.MenuAddTask))},
		{btn("👥 Members", action.Action{Kind: action.KindGroupMembers, GroupID: groupID})},
	}
	if isCurator {
		rows = append(rows,
			[]keyboard.InlineBtn{
				btn("📚 Subjects", menu(action.MenuSubjects)),
				btn("📣 Notify", menu(action.MenuNotify)),
			},
			[]keyboard.InlineBtn{
				btn("📊 Stats", action.Action{Kind: action.KindGroupStats, GroupID: groupID}),
				btn("📤 Export", action.Action{Kind: action.KindExportTasks, GroupID: groupID}),
			},
		)
	}
	rows = append(rows,
		[]keyboard.InlineBtn{btn("⚙️ Settings", menu(action.MenuSettings))},
		[]keyboard.InlineBtn{backToGroupsBtn()},
	)
	return markup(rows...)
}

// TaskList renders task buttons leading to details.
func TaskList(tasks []models.TaskWithSubject, groupID int64, labeler func(models.TaskWithSubject) string) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(tasks)+1)
	for _, t := range tasks {
		rows = append(rows, []keyboard.InlineBtn{
			btn(labeler(t), action.Action{Kind: action.KindTaskDetails, TaskID: t.ID}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToGroupMenuBtn(groupID)})
	return markup(rows...)
}

// CompleteList renders incomplete tasks with one-tap completion buttons.
func CompleteList(tasks []models.TaskWithSubject, groupID int64, labeler func(models.TaskWithSubject) string) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(tasks)+1)
	for _, t := range tasks {
		rows = append(rows, []keyboard.InlineBtn{
			btn(labeler(t), action.Action{Kind: action.KindCompleteTask, TaskID: t.ID}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToGroupMenuBtn(groupID)})
	return markup(rows...)
}

// TaskDetails shows a complete button unless already done.
func TaskDetails(taskID, groupID int64, completed bool) *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	if !completed {
		rows = append(rows, []keyboard.InlineBtn{
			btn("✅ Mark completed", action.Action{Kind: action.KindCompleteTask, TaskID: taskID}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToGroupMenuBtn(groupID)})
	return markup(rows...)
}

// SubjectSelect is the subject-selection step of task creation.
func SubjectSelect(subjects []models.Subject, groupID int64) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(subjects)+2)
	for _, s := range subjects {
		rows = append(rows, []keyboard.InlineBtn{
			btn(s.Name, action.Action{Kind: action.KindSelectSubject, SubjectID: s.ID, GroupID: groupID}),
		})
	}
	rows = append(rows,
		[]keyboard.InlineBtn{btn("➕ New subject", action.Action{
			Kind: action.KindAddSubject, GroupID: groupID, ReturnToTask: true,
		})},
		[]keyboard.InlineBtn{backToGroupMenuBtn(groupID)},
	)
	return markup(rows...)
}

// TaskAudience asks whether the task is group-wide or personal.
func TaskAudience(subjectID, groupID int64) *tele.ReplyMarkup {
	return markup(
		[]keyboard.InlineBtn{
			btn("👥 Whole group", action.Action{
				Kind: action.KindTaskFor, Audience: action.AudienceGroup,
				SubjectID: subjectID, GroupID: groupID,
			}),
			btn("👤 Just me", action.Action{
				Kind: action.KindTaskFor, Audience: action.AudiencePersonal,
				SubjectID: subjectID, GroupID: groupID,
			}),
		},
		[]keyboard.InlineBtn{backToGroupMenuBtn(groupID)},
	)
}

// SubjectManage lists subjects with delete buttons plus an add entry.
func SubjectManage(subjects []models.Subject, groupID int64) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(subjects)+2)
	for _, s := range subjects {
		rows = append(rows, []keyboard.InlineBtn{
			btn("🗑 "+s.Name, action.Action{
				Kind: action.KindDeleteSubject, SubjectID: s.ID, GroupID: groupID,
			}),
		})
	}
	rows = append(rows,
		[]keyboard.InlineBtn{btn("➕ Add subject", action.Action{
			Kind: action.KindAddSubject, GroupID: groupID,
		})},
		[]keyboard.InlineBtn{backToGroupMenuBtn(groupID)},
	)
	return markup(rows...)
}

// Settings shows notification toggles plus curator-only group management.
func Settings(groupID int64, globalOn, groupOn, isCurator bool) *tele.ReplyMarkup {
	rows := [][]keyboard.InlineBtn{
		{btn(toggleLabel("All notifications", globalOn), action.Action{
			Kind: action.KindToggle, Toggle: action.ToggleGlobal, GroupID: groupID,
		})},
		{btn(toggleLabel("Group notifications", groupOn), action.Action{
			Kind: action.KindToggle, Toggle: action.ToggleGroup, GroupID: groupID,
		})},
	}
	if isCurator {
		rows = append(rows, []keyboard.InlineBtn{
			btn("✏️ Edit description", action.Action{
				Kind: action.KindEditGroupDesc, GroupID: groupID,
			}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToGroupMenuBtn(groupID)})
	return markup(rows...)
}

// AdminPanel is the /admin hub.
func AdminPanel() *tele.ReplyMarkup {
	adm := func(branch string) action.Action {
		return action.Action{Kind: action.KindAdmin, Admin: branch}
	}
	return markup(
		[]keyboard.InlineBtn{btn("👑 Roles", adm(action.AdminRoles))},
		[]keyboard.InlineBtn{btn("📥 Group requests", adm(action.AdminGroupRequests))},
		[]keyboard.InlineBtn{btn("📥 Subject requests", adm(action.AdminSubjectRequests))},
	)
}

// AdminGroupPick lists every active group for role management.
func AdminGroupPick(groups []models.Group) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(groups)+1)
	for _, g := range groups {
		rows = append(rows, []keyboard.InlineBtn{
			btn(g.Name, action.Action{Kind: action.KindRoleGroup, GroupID: g.ID}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToAdminBtn()})
	return markup(rows...)
}

// RoleList renders members with role-toggle buttons.
func RoleList(members []models.Member, groupID int64) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(members)+1)
	for _, m := range members {
		label := fmt.Sprintf("%s %s", roleBadge(m.Role), m.User.DisplayName())
		rows = append(rows, []keyboard.InlineBtn{
			btn(label, action.Action{
				Kind: action.KindChangeRole, UserID: m.UserID, GroupID: groupID,
			}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToAdminBtn()})
	return markup(rows...)
}

// RequestList renders approve/reject button pairs per pending request.
func RequestList(labels []string, ids []int64, approve, reject action.Kind) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(ids)+1)
	for i, id := range ids {
		rows = append(rows, []keyboard.InlineBtn{
			btn("✅ "+labels[i], action.Action{Kind: approve, RequestID: id}),
			btn("❌", action.Action{Kind: reject, RequestID: id}),
		})
	}
	rows = append(rows, []keyboard.InlineBtn{backToAdminBtn()})
	return markup(rows...)
}

// BackToGroupMenu is a lone return button used after terminal actions.
func BackToGroupMenu(groupID int64) *tele.ReplyMarkup {
	return markup([]keyboard.InlineBtn{backToGroupMenuBtn(groupID)})
}

// BackToGroups is a lone return button to the group selection view.
func BackToGroups() *tele.ReplyMarkup {
	return markup([]keyboard.InlineBtn{backToGroupsBtn()})
}

func backToGroupsBtn() keyboard.InlineBtn {
	return btn("⬅️ Groups", action.Action{Kind: action.KindBackToGroups})
}

func backToGroupMenuBtn(groupID int64) keyboard.InlineBtn {
	return btn("⬅️ Back", action.Action{Kind: action.KindSelectGroup, GroupID: groupID})
}

func backToAdminBtn() keyboard.InlineBtn {
	return btn("⬅️ Back", action.Action{Kind: action.KindBackToAdmin})
}

func toggleLabel(name string, on bool) string {
	if on {
		return "🔔 " + name + ": on"
	}
	return "🔕 " + name + ": off"
}

func roleBadge(role string) string {
	if role == models.MembershipCurator {
		return "⭐"
	}
	return "👤"
}
