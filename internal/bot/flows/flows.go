// Package flows implements the multi-step conversation handlers. Each flow is
// a short FSM whose state lives in the in-memory session manager as
// "action:step"; accumulated input sits in the session temp map and every
// step+data advance happens atomically under Mutate.
package flows

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/logger"
	tghelpers "github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/core/telegram/state"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/notify"
	"github.com/m3rciful/groupbot/internal/storage"
)

// Flow states, one per step.
const (
	StateGroupName    = state.State("adding_group:name")
	StateGroupDesc    = state.State("adding_group:description")
	StateSubjectName  = state.State("adding_subject:name")
	StateTaskTitle    = state.State("adding_task:title")
	StateTaskDesc     = state.State("adding_task:description")
	StateTaskDeadline = state.State("adding_task:deadline")
	StateNotifyText   = state.State("sending_notification:message")
	StateEditDesc     = state.State("editing_group_description:description")
)

// Session temp keys shared across steps of one flow.
const (
	keyGroupID      = "group_id"
	keySubjectID    = "subject_id"
	keyForGroup     = "for_group"
	keyNeedApproval = "needs_approval"
	keyReturnToTask = "return_to_task"
	keyGroupName    = "group_name"
	keyTaskTitle    = "task_title"
	keyTaskDesc     = "task_description"
)

// Store is the persistence surface the flows need.
type Store interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error)
	GetGroupByID(ctx context.Context, id int64) (models.Group, error)
	GetMembership(ctx context.Context, userID, groupID int64) (models.Membership, error)
	GroupNameTaken(ctx context.Context, name string) (bool, error)
	CreateGroupWithCurator(ctx context.Context, name, description string, createdBy int64) (models.Group, error)
	CreateGroupRequest(ctx context.Context, name, description string, userID int64) (models.GroupRequest, error)
	ListActiveSubjects(ctx context.Context, groupID int64) ([]models.Subject, error)
	CreateSubject(ctx context.Context, name string, groupID, createdBy int64, status string) (models.Subject, error)
	CreateSubjectRequest(ctx context.Context, name string, groupID, userID int64) (models.SubjectRequest, error)
	CreateTask(ctx context.Context, nt storage.NewTask) (models.Task, error)
	ListMembers(ctx context.Context, groupID int64) ([]models.Member, error)
	UpdateGroupDescription(ctx context.Context, groupID int64, description string) error
}

// Config carries flow policy knobs.
type Config struct {
	// ApprovalRequired switches group creation from self-service to the
	// request/approval pipeline.
	ApprovalRequired bool
	// AdminTelegramID receives new group requests when approval is required.
	AdminTelegramID int64
	// Location interprets DD.MM.YYYY deadline input.
	Location *time.Location
}

// Flows owns the conversation step handlers.
type Flows struct {
	store    Store
	sessions state.Manager
	notifier *notify.Notifier
	cfg      Config
}

func New(store Store, sessions state.Manager, notifier *notify.Notifier, cfg Config) *Flows {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Flows{store: store, sessions: sessions, notifier: notifier, cfg: cfg}
}

// Register wires every flow step into the FSM dispatcher.
func (f *Flows) Register() {
	state.RegisterHandler(StateGroupName, f.handleGroupName)
	state.RegisterHandler(StateGroupDesc, f.handleGroupDesc)
	state.RegisterHandler(StateSubjectName, f.handleSubjectName)
	state.RegisterHandler(StateTaskTitle, f.handleTaskTitle)
	state.RegisterHandler(StateTaskDesc, f.handleTaskDesc)
	state.RegisterHandler(StateTaskDeadline, f.handleTaskDeadline)
	state.RegisterHandler(StateNotifyText, f.handleNotifyText)
	state.RegisterHandler(StateEditDesc, f.handleEditDesc)
}

// Flow entry points. Role gating happens at the calling handler; these only
// seed state.

func (f *Flows) StartAddGroup(c tele.Context) error {
	uid := c.Sender().ID
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.State = StateGroupName
		s.TempData = map[string]interface{}{}
	})
	return tghelpers.SendText(c, ui.PromptGroupName)
}

func (f *Flows) StartAddSubject(c tele.Context, groupID int64, needsApproval, returnToTask bool) error {
	uid := c.Sender().ID
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.State = StateSubjectName
		s.TempData = map[string]interface{}{
			keyGroupID:      groupID,
			keyNeedApproval: needsApproval,
			keyReturnToTask: returnToTask,
		}
	})
	return tghelpers.SendText(c, ui.PromptSubjectName)
}

func (f *Flows) StartAddTask(c tele.Context, groupID, subjectID int64, forGroup, needsApproval bool) error {
	uid := c.Sender().ID
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.State = StateTaskTitle
		s.TempData = map[string]interface{}{
			keyGroupID:      groupID,
			keySubjectID:    subjectID,
			keyForGroup:     forGroup,
			keyNeedApproval: needsApproval,
		}
	})
	return tghelpers.SendText(c, ui.PromptTaskTitle)
}

func (f *Flows) StartSendNotification(c tele.Context, groupID int64) error {
	uid := c.Sender().ID
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.State = StateNotifyText
		s.TempData = map[string]interface{}{keyGroupID: groupID}
	})
	return tghelpers.SendText(c, ui.PromptNotification)
}

func (f *Flows) StartEditDescription(c tele.Context, groupID int64) error {
	uid := c.Sender().ID
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.State = StateEditDesc
		s.TempData = map[string]interface{}{keyGroupID: groupID}
	})
	return tghelpers.SendText(c, ui.PromptDescription)
}

// Step handlers.

func (f *Flows) handleGroupName(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	name := strings.TrimSpace(c.Text())
	if name == "" {
		return tghelpers.SendText(c, ui.PromptGroupName)
	}
	taken, err := f.store.GroupNameTaken(ctx, name)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	if taken {
		// Validation failure: same step, no store mutation.
		return tghelpers.SendText(c, ui.PromptGroupNameTaken)
	}
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.TempData[keyGroupName] = name
		s.State = StateGroupDesc
	})
	return tghelpers.SendText(c, ui.PromptGroupDescription)
}

func (f *Flows) handleGroupDesc(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	desc := optionalText(c.Text())
	name, ok := f.sessions.GetTempString(uid, keyGroupName)
	if !ok {
		return f.fail(ctx, c, nil)
	}
	user, err := tghelpers.CurrentUser[models.User](ctx, f.store, uid)
	if err != nil {
		return f.fail(ctx, c, err)
	}

	if f.cfg.ApprovalRequired {
		req, err := f.store.CreateGroupRequest(ctx, name, desc, user.ID)
		if err != nil {
			return f.fail(ctx, c, err)
		}
		f.sessions.Clear(uid)
		if f.cfg.AdminTelegramID != 0 {
			f.notifier.DirectAsync(ctx, "notify.group_request", f.cfg.AdminTelegramID,
				"New group request: "+req.GroupName)
		}
		return tghelpers.SendText(c,
			"Group request submitted. You will be notified once it is reviewed.")
	}

	group, err := f.store.CreateGroupWithCurator(ctx, name, desc, user.ID)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	f.sessions.Clear(uid)
	return c.Send(ui.GroupMenuText(group), ui.GroupMenu(group.ID, true))
}

func (f *Flows) handleSubjectName(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	name := strings.TrimSpace(c.Text())
	if name == "" {
		return tghelpers.SendText(c, ui.PromptSubjectName)
	}
	groupID, ok := f.sessions.GetTempInt64(uid, keyGroupID)
	if !ok {
		return f.fail(ctx, c, nil)
	}
	needsApproval, _ := f.sessions.GetTempBool(uid, keyNeedApproval)
	returnToTask, _ := f.sessions.GetTempBool(uid, keyReturnToTask)

	user, err := tghelpers.CurrentUser[models.User](ctx, f.store, uid)
	if err != nil {
		return f.fail(ctx, c, err)
	}

	if needsApproval {
		if _, err := f.store.CreateSubjectRequest(ctx, name, groupID, user.ID); err != nil {
			return f.fail(ctx, c, err)
		}
		f.sessions.Clear(uid)
		return tghelpers.SendText(c,
			"Subject request submitted for curator approval.")
	}

	if _, err := f.store.CreateSubject(ctx, name, groupID, user.ID, models.StatusActive); err != nil {
		return f.fail(ctx, c, err)
	}
	f.sessions.Clear(uid)

	if returnToTask {
		subjects, err := f.store.ListActiveSubjects(ctx, groupID)
		if err != nil {
			return f.fail(ctx, c, err)
		}
		return c.Send("Subject added. Pick one for the task:", ui.SubjectSelect(subjects, groupID))
	}
	return f.sendGroupMenu(ctx, c, uid, groupID, "Subject added.")
}

func (f *Flows) handleTaskTitle(c tele.Context) error {
	uid := c.Sender().ID
	title := strings.TrimSpace(c.Text())
	if title == "" {
		return tghelpers.SendText(c, ui.PromptTaskTitle)
	}
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.TempData[keyTaskTitle] = title
		s.State = StateTaskDesc
	})
	return tghelpers.SendText(c, ui.PromptTaskDescription)
}

func (f *Flows) handleTaskDesc(c tele.Context) error {
	uid := c.Sender().ID
	desc := optionalText(c.Text())
	f.sessions.Mutate(uid, func(s *state.Session) {
		s.TempData[keyTaskDesc] = desc
		s.State = StateTaskDeadline
	})
	return tghelpers.SendText(c, ui.PromptTaskDeadline)
}

func (f *Flows) handleTaskDeadline(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID

	deadline, ok := tghelpers.ParseDeadline(c.Text(), f.cfg.Location)
	if !ok || deadline.Before(time.Now().In(f.cfg.Location)) {
		// Re-prompt at the same step; no regression, no mutation.
		return tghelpers.SendText(c, ui.PromptBadDeadline)
	}

	groupID, ok1 := f.sessions.GetTempInt64(uid, keyGroupID)
	subjectID, ok2 := f.sessions.GetTempInt64(uid, keySubjectID)
	title, ok3 := f.sessions.GetTempString(uid, keyTaskTitle)
	if !ok1 || !ok2 || !ok3 {
		return f.fail(ctx, c, nil)
	}
	desc, _ := f.sessions.GetTempString(uid, keyTaskDesc)
	forGroup, _ := f.sessions.GetTempBool(uid, keyForGroup)
	// Captured at flow start; the final status depends on it alone.
	needsApproval, _ := f.sessions.GetTempBool(uid, keyNeedApproval)

	user, err := tghelpers.CurrentUser[models.User](ctx, f.store, uid)
	if err != nil {
		return f.fail(ctx, c, err)
	}

	status := models.StatusActive
	if needsApproval {
		status = models.StatusPending
	}
	task, err := f.store.CreateTask(ctx, storage.NewTask{
		Title:       title,
		Description: desc,
		SubjectID:   subjectID,
		GroupID:     groupID,
		Deadline:    deadline,
		CreatedBy:   user.ID,
		ForGroup:    forGroup,
		Status:      status,
	})
	if err != nil {
		return f.fail(ctx, c, err)
	}
	f.sessions.Clear(uid)
	return f.sendGroupMenu(ctx, c, uid, groupID,
		ui.TaskCreatedText(task.Title, task.Deadline, task.ForGroup, status == models.StatusPending))
}

func (f *Flows) handleNotifyText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return tghelpers.SendText(c, ui.PromptNotification)
	}
	groupID, ok := f.sessions.GetTempInt64(uid, keyGroupID)
	if !ok {
		return f.fail(ctx, c, nil)
	}
	members, err := f.store.ListMembers(ctx, groupID)
	if err != nil {
		return f.fail(ctx, c, err)
	}

	recipients := make([]models.User, 0, len(members))
	for _, m := range members {
		if m.User.TelegramID == uid {
			continue // sender gets the report instead
		}
		if m.User.GroupNotificationsEnabled(groupID) {
			recipients = append(recipients, m.User)
		}
	}
	sent, failed := f.notifier.Broadcast(ctx, recipients, "📣 "+text)
	logger.TG.InfoContext(ctx, "group broadcast",
		slog.String("event", "flows.notify"),
		slog.Int64("group_id", groupID),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)
	f.sessions.Clear(uid)
	return f.sendGroupMenu(ctx, c, uid, groupID, ui.BroadcastReport(sent, failed))
}

func (f *Flows) handleEditDesc(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	desc := optionalText(c.Text())
	groupID, ok := f.sessions.GetTempInt64(uid, keyGroupID)
	if !ok {
		return f.fail(ctx, c, nil)
	}
	if err := f.store.UpdateGroupDescription(ctx, groupID, desc); err != nil {
		return f.fail(ctx, c, err)
	}
	f.sessions.Clear(uid)

	group, err := f.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	user, err := tghelpers.CurrentUser[models.User](ctx, f.store, uid)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	membership, err := f.store.GetMembership(ctx, user.ID, groupID)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	return c.Send(ui.SettingsText(group), ui.Settings(groupID,
		user.NotificationsEnabled,
		user.GroupNotificationsEnabled(groupID),
		membership.IsCurator()))
}

// sendGroupMenu re-renders the group hub after a terminal flow step.
func (f *Flows) sendGroupMenu(ctx context.Context, c tele.Context, telegramID, groupID int64, note string) error {
	group, err := f.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return f.fail(ctx, c, err)
	}
	isCurator := false
	if user, err := tghelpers.CurrentUser[models.User](ctx, f.store, telegramID); err == nil {
		if m, err := f.store.GetMembership(ctx, user.ID, groupID); err == nil {
			isCurator = m.IsCurator()
		}
	}
	text := note
	if text != "" {
		text += "\n\n"
	}
	text += ui.GroupMenuText(group)
	return c.Send(text, ui.GroupMenu(groupID, isCurator))
}

// fail clears the flow and reports a generic error; the user restarts from
// scratch.
func (f *Flows) fail(ctx context.Context, c tele.Context, err error) error {
	if err != nil {
		logger.TG.ErrorContext(ctx, "flow step failed",
			slog.String("event", "flows.fail"),
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
	}
	f.sessions.Clear(c.Sender().ID)
	return tghelpers.SendText(c, ui.MsgSomethingWentWrong)
}

// optionalText normalizes "-" (explicit skip) and whitespace to empty.
func optionalText(s string) string {
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}
