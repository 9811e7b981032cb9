// Package bot wires commands and callback handlers onto the transport
// registry. Callback data is decoded once at the boundary into a typed
// action; handlers receive the decoded value and never re-split strings.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/logger"
	tg "github.com/m3rciful/groupbot/core/telegram"
	"github.com/m3rciful/groupbot/core/telegram/callbacks"
	"github.com/m3rciful/groupbot/core/telegram/commands"
	"github.com/m3rciful/groupbot/core/telegram/state"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/bot/flows"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/notify"
)

// Store is the persistence surface the handlers depend on.
type Store interface {
	flows.Store

	UpsertUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	SetUserRole(ctx context.Context, userID int64, role string) error
	SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error
	SetGroupNotificationSetting(ctx context.Context, userID, groupID int64, enabled bool) error

	ListActiveGroups(ctx context.Context) ([]models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int64) ([]models.Group, error)
	CreateMembership(ctx context.Context, userID, groupID int64, role string) error
	SetMembershipRole(ctx context.Context, userID, groupID int64, role string) error
	CountCurators(ctx context.Context, groupID int64) (int, error)

	GetSubjectByID(ctx context.Context, id int64) (models.Subject, error)
	SetSubjectStatus(ctx context.Context, subjectID int64, status string) error

	GetTaskWithSubject(ctx context.Context, id int64) (models.TaskWithSubject, error)
	ListVisibleTasks(ctx context.Context, groupID, userID int64) ([]models.TaskWithSubject, error)
	ListIncompleteTasks(ctx context.Context, groupID, userID int64) ([]models.TaskWithSubject, error)
	GetCompletion(ctx context.Context, userID, taskID int64) (models.TaskCompletion, error)
	MarkTaskCompleted(ctx context.Context, userID, taskID int64) error
	TaskStats(ctx context.Context, groupID int64) ([]models.TaskStat, error)

	ListPendingGroupRequests(ctx context.Context) ([]models.GroupRequest, error)
	ApproveGroupRequest(ctx context.Context, requestID int64) (models.Group, models.User, error)
	RejectGroupRequest(ctx context.Context, requestID int64) (models.GroupRequest, models.User, error)
	GetSubjectRequest(ctx context.Context, id int64) (models.SubjectRequest, error)
	ListPendingSubjectRequests(ctx context.Context) ([]models.SubjectRequest, error)
	ApproveSubjectRequest(ctx context.Context, requestID int64) (models.Subject, models.SubjectRequest, models.User, error)
	RejectSubjectRequest(ctx context.Context, requestID int64) (models.SubjectRequest, models.User, error)
}

// Config carries handler policy knobs.
type Config struct {
	// AdminTelegramID is elevated to the global admin role on first /start.
	AdminTelegramID int64
	// Location renders and classifies deadlines.
	Location *time.Location
}

// Handlers owns every command and callback handler.
type Handlers struct {
	store    Store
	sessions state.Manager
	flows    *flows.Flows
	notifier *notify.Notifier
	cfg      Config
}

func New(store Store, sessions state.Manager, fl *flows.Flows, notifier *notify.Notifier, cfg Config) *Handlers {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Handlers{store: store, sessions: sessions, flows: fl, notifier: notifier, cfg: cfg}
}

type actionHandler func(tele.Context, action.Action) error

// callbackHandlers binds every action kind to its handler. Registration walks
// the action package's ordered tables, so the routing order lives in exactly
// one place.
func (h *Handlers) callbackHandlers() map[action.Kind]actionHandler {
	return map[action.Kind]actionHandler{
		action.KindAddGroup:       h.onAddGroup,
		action.KindPendingGroups:  h.onBrowseGroups,
		action.KindBackToGroups:   h.onBackToGroups,
		action.KindBackToAdmin:    h.onBackToAdmin,
		action.KindSelectGroup:    h.onSelectGroup,
		action.KindGroupMenu:      h.onGroupMenu,
		action.KindAdmin:          h.onAdminBranch,
		action.KindApproveGroup:   h.onApproveGroup,
		action.KindRejectGroup:    h.onRejectGroup,
		action.KindJoinGroup:      h.onJoinGroup,
		action.KindCompleteTask:   h.onCompleteTask,
		action.KindAddSubject:     h.onAddSubject,
		action.KindSelectSubject:  h.onSelectSubject,
		action.KindTaskFor:        h.onTaskFor,
		action.KindTaskDetails:    h.onTaskDetails,
		action.KindExportTasks:    h.onExportTasks,
		action.KindRoleGroup:      h.onRoleGroup,
		action.KindChangeRole:     h.onChangeRole,
		action.KindGroupMembers:   h.onGroupMembers,
		action.KindNotifySettings: h.onNotifySettings,
		action.KindToggle:         h.onToggle,
		action.KindGroupStats:     h.onGroupStats,
		action.KindEditGroupDesc:  h.onEditGroupDesc,
		action.KindDeleteSubject:  h.onDeleteSubject,
		action.KindApproveSubject: h.onApproveSubject,
		action.KindRejectSubject:  h.onRejectSubject,
	}
}

// RegisterRoutes registers commands plus the full callback table. Exact keys
// go in first, prefixes follow in the contract order.
func (h *Handlers) RegisterRoutes(reg *tg.Registry) error {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.cmdStart,
		Description: "Open the group list",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.cmdCancel,
		Description: "Cancel the current action",
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.cmdAdmin,
		Description: "Open the admin panel",
		Hidden:      true,
	})

	table := h.callbackHandlers()
	for _, k := range action.ExactKinds() {
		fn, ok := table[k]
		if !ok {
			return fmt.Errorf("bot: no handler for action %q", k)
		}
		if err := reg.RegisterCallback(string(k), h.dispatch(fn)); err != nil {
			return err
		}
	}
	for _, k := range action.PrefixKinds() {
		fn, ok := table[k]
		if !ok {
			return fmt.Errorf("bot: no handler for action %q", k)
		}
		if err := reg.RegisterCallbackPrefix(string(k), h.dispatch(fn)); err != nil {
			return err
		}
	}

	// Unknown or malformed actions are dropped without a user-visible error.
	reg.SetCallbackNotFound(func(c tele.Context) error { return nil })
	return nil
}

// dispatch decodes raw callback data and passes the typed action on. Decode
// failures are logged and swallowed.
func (h *Handlers) dispatch(fn actionHandler) tele.HandlerFunc {
	return func(c tele.Context) error {
		data := callbacks.Data(c)
		a, err := action.Parse(data)
		if err != nil {
			logger.TG.Debug("callback dropped",
				slog.String("event", "callback.drop"),
				slog.String("cb_key", data),
				slog.String("err", err.Error()),
			)
			return nil
		}
		return fn(c, a)
	}
}

// fail reports a generic failure to the user and propagates the error to the
// router summary log.
func fail(c tele.Context, err error) error {
	_ = c.Send(ui.MsgSomethingWentWrong)
	return err
}
