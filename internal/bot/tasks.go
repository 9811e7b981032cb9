package bot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/storage"
)

// onGroupMenu fans out the group hub sub-actions.
func (h *Handlers) onGroupMenu(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	membership, ok, err := h.requireMember(ctx, c, user, a.GroupID)
	if !ok {
		return err
	}
	isCurator := membership.IsCurator() || user.IsAdmin()

	switch a.Menu {
	case action.MenuTasks:
		tasks, err := h.store.ListVisibleTasks(ctx, a.GroupID, user.ID)
		if err != nil {
			return fail(c, err)
		}
		if len(tasks) == 0 {
			return c.EditOrSend(ui.MsgNoTasks, ui.BackToGroupMenu(a.GroupID))
		}
		now := time.Now().In(h.cfg.Location)
		return c.EditOrSend("Tasks:", ui.TaskList(tasks, a.GroupID, func(t models.TaskWithSubject) string {
			return ui.TaskLabel(t, now)
		}))

	case action.MenuAddTask:
		subjects, err := h.store.ListActiveSubjects(ctx, a.GroupID)
		if err != nil {
			return fail(c, err)
		}
		return c.EditOrSend("Pick a subject:", ui.SubjectSelect(subjects, a.GroupID))

	case action.MenuComplete:
		tasks, err := h.store.ListIncompleteTasks(ctx, a.GroupID, user.ID)
		if err != nil {
			return fail(c, err)
		}
		if len(tasks) == 0 {
			return c.EditOrSend(ui.MsgNothingToComplete, ui.BackToGroupMenu(a.GroupID))
		}
		now := time.Now().In(h.cfg.Location)
		return c.EditOrSend("Tap a task to mark it done:", ui.CompleteList(tasks, a.GroupID, func(t models.TaskWithSubject) string {
			return ui.TaskLabel(t, now)
		}))

	case action.MenuNotify:
		if !isCurator {
			return c.Send(ui.MsgNotCurator)
		}
		return h.flows.StartSendNotification(c, a.GroupID)

	case action.MenuSubjects:
		if !isCurator {
			return c.Send(ui.MsgNotCurator)
		}
		subjects, err := h.store.ListActiveSubjects(ctx, a.GroupID)
		if err != nil {
			return fail(c, err)
		}
		return c.EditOrSend("Subjects:", ui.SubjectManage(subjects, a.GroupID))

	case action.MenuSettings:
		return h.sendSettings(ctx, c, user, a.GroupID)
	}
	return nil
}

// onCompleteTask records a per-user completion; the second press is a no-op
// reply, not a second row.
func (h *Handlers) onCompleteTask(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	task, err := h.store.GetTaskWithSubject(ctx, a.TaskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgTaskNotFound)
		}
		return fail(c, err)
	}
	if !task.ForGroup && task.CreatedBy != user.ID {
		return c.Send(ui.MsgTaskNotFound)
	}

	completion, err := h.store.GetCompletion(ctx, user.ID, task.ID)
	switch {
	case err == nil && completion.Completed:
		return c.EditOrSend(ui.MsgAlreadyCompleted, ui.BackToGroupMenu(task.GroupID))
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fail(c, err)
	}
	if err := h.store.MarkTaskCompleted(ctx, user.ID, task.ID); err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.MsgTaskCompleted, ui.BackToGroupMenu(task.GroupID))
}

func (h *Handlers) onTaskDetails(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	task, err := h.store.GetTaskWithSubject(ctx, a.TaskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgTaskNotFound)
		}
		return fail(c, err)
	}
	if !task.ForGroup && task.CreatedBy != user.ID {
		return c.Send(ui.MsgTaskNotFound)
	}

	completed := false
	if comp, err := h.store.GetCompletion(ctx, user.ID, task.ID); err == nil {
		completed = comp.Completed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fail(c, err)
	}
	now := time.Now().In(h.cfg.Location)
	return c.EditOrSend(ui.TaskDetailsText(task, completed, now),
		ui.TaskDetails(task.ID, task.GroupID, completed))
}

func (h *Handlers) onAddSubject(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	membership, ok, err := h.requireMember(ctx, c, user, a.GroupID)
	if !ok {
		return err
	}
	needsApproval := !(membership.IsCurator() || user.IsAdmin())
	return h.flows.StartAddSubject(c, a.GroupID, needsApproval, a.ReturnToTask)
}

func (h *Handlers) onSelectSubject(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireMember(ctx, c, user, a.GroupID); !ok {
		return err
	}
	subject, err := h.store.GetSubjectByID(ctx, a.SubjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgSubjectNotFound)
		}
		return fail(c, err)
	}
	return c.EditOrSend(fmt.Sprintf("Task under %s — for whom?", subject.Name),
		ui.TaskAudience(subject.ID, a.GroupID))
}

// onTaskFor seeds the task-creation flow. Non-curator submissions become
// pending tasks; that is decided here, at flow start.
func (h *Handlers) onTaskFor(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	membership, ok, err := h.requireMember(ctx, c, user, a.GroupID)
	if !ok {
		return err
	}
	forGroup := a.Audience == action.AudienceGroup
	needsApproval := !(membership.IsCurator() || user.IsAdmin())
	return h.flows.StartAddTask(c, a.GroupID, a.SubjectID, forGroup, needsApproval)
}

// onExportTasks sends the group's visible tasks as a CSV attachment.
func (h *Handlers) onExportTasks(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireCurator(ctx, c, user, a.GroupID); !ok {
		return err
	}
	tasks, err := h.store.ListVisibleTasks(ctx, a.GroupID, user.ID)
	if err != nil {
		return fail(c, err)
	}

	buf, err := tasksCSV(tasks)
	if err != nil {
		return fail(c, err)
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(buf)),
		FileName: fmt.Sprintf("tasks_group_%d.csv", a.GroupID),
		MIME:     "text/csv",
	}
	return c.Send(doc)
}

func (h *Handlers) onGroupStats(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireCurator(ctx, c, user, a.GroupID); !ok {
		return err
	}
	stats, err := h.store.TaskStats(ctx, a.GroupID)
	if err != nil {
		return fail(c, err)
	}
	members, err := h.store.ListMembers(ctx, a.GroupID)
	if err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.StatsText(stats, len(members)), ui.BackToGroupMenu(a.GroupID))
}

// onDeleteSubject soft-deletes: tasks keep their subject reference.
func (h *Handlers) onDeleteSubject(c tele.Context, a action.Action) error {
	ctx := tghelpers.BuildContext(c)
	user, err := h.actingUser(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if _, ok, err := h.requireCurator(ctx, c, user, a.GroupID); !ok {
		return err
	}
	if err := h.store.SetSubjectStatus(ctx, a.SubjectID, models.StatusRejected); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Send(ui.MsgSubjectNotFound)
		}
		return fail(c, err)
	}
	subjects, err := h.store.ListActiveSubjects(ctx, a.GroupID)
	if err != nil {
		return fail(c, err)
	}
	return c.EditOrSend(ui.MsgSubjectDeleted, ui.SubjectManage(subjects, a.GroupID))
}

// tasksCSV renders one header plus one row per task.
func tasksCSV(tasks []models.TaskWithSubject) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "title", "subject", "deadline", "audience", "status"}); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		audience := "personal"
		if t.ForGroup {
			audience = "group"
		}
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			t.SubjectName,
			tghelpers.FormatDeadline(t.Deadline),
			audience,
			t.Status,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
