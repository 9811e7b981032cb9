// Package action defines the callback wire format: raw button data strings
// with underscore-delimited positional parameters. The match table is ordered
// and first-match-wins, so overlapping prefixes resolve deterministically.
// Decoding happens once at the router boundary; handlers receive a typed
// Action instead of re-splitting strings.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one action family.
type Kind string

// Exact actions.
const (
	KindAddGroup      Kind = "add_group"
	KindPendingGroups Kind = "pending_groups"
	KindBackToGroups  Kind = "back_to_groups"
	KindBackToAdmin   Kind = "back_to_admin"
)

// Prefix actions. The constant value is the wire prefix.
const (
	KindSelectGroup      Kind = "select_group_"
	KindGroupMenu        Kind = "group_menu_"
	KindAdmin            Kind = "admin_"
	KindApproveGroup     Kind = "approve_group_"
	KindRejectGroup      Kind = "reject_group_"
	KindJoinGroup        Kind = "join_group_"
	KindCompleteTask     Kind = "complete_task_"
	KindAddSubject       Kind = "add_subject_"
	KindSelectSubject    Kind = "select_subject_"
	KindTaskFor          Kind = "task_for_"
	KindTaskDetails      Kind = "task_details_"
	KindExportTasks      Kind = "export_tasks_"
	KindRoleGroup        Kind = "role_group_"
	KindChangeRole       Kind = "change_role_"
	KindGroupMembers     Kind = "group_members_"
	KindNotifySettings   Kind = "notification_settings_"
	KindToggle           Kind = "toggle_"
	KindGroupStats       Kind = "group_stats_"
	KindEditGroupDesc    Kind = "edit_group_description_"
	KindDeleteSubject    Kind = "delete_subject_"
	KindApproveSubject   Kind = "approve_subject_"
	KindRejectSubject    Kind = "reject_subject_"
)

// ErrUnknown is returned for data matching no table entry.
var ErrUnknown = errors.New("action: unknown")

// Group menu sub-actions.
const (
	MenuTasks    = "tasks"
	MenuAddTask  = "addtask"
	MenuComplete = "complete"
	MenuNotify   = "notify"
	MenuSubjects = "subjects"
	MenuSettings = "settings"
)

// Admin panel sub-actions.
const (
	AdminRoles           = "roles"
	AdminGroupRequests   = "group_requests"
	AdminSubjectRequests = "subject_requests"
)

// Task audience values for task_for_.
const (
	AudienceGroup    = "group"
	AudiencePersonal = "me"
)

// Toggle targets.
const (
	ToggleGlobal = "global_notifications"
	ToggleGroup  = "group_notifications"
)

// Action is the decoded form of one callback. Fields are populated per kind;
// unused ids stay zero.
type Action struct {
	Kind Kind

	GroupID   int64
	SubjectID int64
	TaskID    int64
	UserID    int64
	RequestID int64

	// Menu holds the group_menu_ sub-action, Admin the admin_ branch,
	// Audience the task_for_ scope, Toggle the toggle_ target.
	Menu     string
	Admin    string
	Audience string
	Toggle   string

	// ReturnToTask marks add_subject_<gid>_task.
	ReturnToTask bool
}

// exactKinds lists parameterless actions checked before any prefix.
var exactKinds = []Kind{
	KindAddGroup,
	KindPendingGroups,
	KindBackToGroups,
	KindBackToAdmin,
}

// prefixKinds is the ordered prefix table. Order is a routing contract:
// first match wins, and several prefixes overlap (complete_task_ must be
// hit before a broader task_-style prefix could shadow it).
var prefixKinds = []Kind{
	KindSelectGroup,
	KindGroupMenu,
	KindAdmin,
	KindApproveGroup,
	KindRejectGroup,
	KindJoinGroup,
	KindCompleteTask,
	KindAddSubject,
	KindSelectSubject,
	KindTaskFor,
	KindTaskDetails,
	KindExportTasks,
	KindRoleGroup,
	KindChangeRole,
	KindGroupMembers,
	KindNotifySettings,
	KindToggle,
	KindGroupStats,
	KindEditGroupDesc,
	KindDeleteSubject,
	KindApproveSubject,
	KindRejectSubject,
}

// ExactKinds returns the parameterless actions in match order.
func ExactKinds() []Kind {
	return append([]Kind(nil), exactKinds...)
}

// PrefixKinds returns the prefix table in match order.
func PrefixKinds() []Kind {
	return append([]Kind(nil), prefixKinds...)
}

// Parse decodes raw callback data into a typed Action.
func Parse(data string) (Action, error) {
	for _, k := range exactKinds {
		if data == string(k) {
			return Action{Kind: k}, nil
		}
	}
	for _, k := range prefixKinds {
		if strings.HasPrefix(data, string(k)) {
			return parseParams(k, strings.TrimPrefix(data, string(k)))
		}
	}
	return Action{}, ErrUnknown
}

func parseParams(k Kind, rest string) (Action, error) {
	a := Action{Kind: k}
	switch k {
	case KindSelectGroup, KindJoinGroup, KindExportTasks, KindRoleGroup,
		KindGroupMembers, KindNotifySettings, KindGroupStats, KindEditGroupDesc:
		id, err := segInt64(rest)
		if err != nil {
			return Action{}, err
		}
		a.GroupID = id

	case KindCompleteTask, KindTaskDetails:
		id, err := segInt64(rest)
		if err != nil {
			return Action{}, err
		}
		a.TaskID = id

	case KindApproveGroup, KindRejectGroup, KindApproveSubject, KindRejectSubject:
		id, err := segInt64(rest)
		if err != nil {
			return Action{}, err
		}
		a.RequestID = id

	case KindGroupMenu:
		// group_menu_<action>_<gid>
		menu, gidPart, ok := strings.Cut(rest, "_")
		if !ok {
			return Action{}, segmentError(k, rest)
		}
		gid, err := segInt64(gidPart)
		if err != nil {
			return Action{}, err
		}
		switch menu {
		case MenuTasks, MenuAddTask, MenuComplete, MenuNotify, MenuSubjects, MenuSettings:
		default:
			return Action{}, segmentError(k, rest)
		}
		a.Menu = menu
		a.GroupID = gid

	case KindAdmin:
		switch rest {
		case AdminRoles, AdminGroupRequests, AdminSubjectRequests:
			a.Admin = rest
		default:
			return Action{}, segmentError(k, rest)
		}

	case KindAddSubject:
		// add_subject_<gid> or add_subject_<gid>_task
		gidPart, suffix, hasSuffix := strings.Cut(rest, "_")
		gid, err := segInt64(gidPart)
		if err != nil {
			return Action{}, err
		}
		if hasSuffix {
			if suffix != "task" {
				return Action{}, segmentError(k, rest)
			}
			a.ReturnToTask = true
		}
		a.GroupID = gid

	case KindSelectSubject:
		// select_subject_<sid>_<gid>
		sid, gid, err := segTwoInt64(k, rest)
		if err != nil {
			return Action{}, err
		}
		a.SubjectID, a.GroupID = sid, gid

	case KindDeleteSubject:
		sid, gid, err := segTwoInt64(k, rest)
		if err != nil {
			return Action{}, err
		}
		a.SubjectID, a.GroupID = sid, gid

	case KindChangeRole:
		// change_role_<uid>_<gid>
		uid, gid, err := segTwoInt64(k, rest)
		if err != nil {
			return Action{}, err
		}
		a.UserID, a.GroupID = uid, gid

	case KindTaskFor:
		// task_for_<scope>_<sid>_<gid>
		scope, idPart, ok := strings.Cut(rest, "_")
		if !ok {
			return Action{}, segmentError(k, rest)
		}
		if scope != AudienceGroup && scope != AudiencePersonal {
			return Action{}, segmentError(k, rest)
		}
		sid, gid, err := segTwoInt64(k, idPart)
		if err != nil {
			return Action{}, err
		}
		a.Audience = scope
		a.SubjectID, a.GroupID = sid, gid

	case KindToggle:
		// toggle_global_notifications_<gid> / toggle_group_notifications_<gid>
		switch {
		case strings.HasPrefix(rest, ToggleGlobal+"_"):
			a.Toggle = ToggleGlobal
			rest = strings.TrimPrefix(rest, ToggleGlobal+"_")
		case strings.HasPrefix(rest, ToggleGroup+"_"):
			a.Toggle = ToggleGroup
			rest = strings.TrimPrefix(rest, ToggleGroup+"_")
		default:
			return Action{}, segmentError(k, rest)
		}
		gid, err := segInt64(rest)
		if err != nil {
			return Action{}, err
		}
		a.GroupID = gid

	default:
		return Action{}, ErrUnknown
	}
	return a, nil
}

// Encode renders an Action back into wire form. Keyboards go through this so
// buttons and the parser cannot drift apart.
func (a Action) Encode() string {
	switch a.Kind {
	case KindAddGroup, KindPendingGroups, KindBackToGroups, KindBackToAdmin:
		return string(a.Kind)
	case KindSelectGroup, KindJoinGroup, KindExportTasks, KindRoleGroup,
		KindGroupMembers, KindNotifySettings, KindGroupStats, KindEditGroupDesc:
		return fmt.Sprintf("%s%d", a.Kind, a.GroupID)
	case KindCompleteTask, KindTaskDetails:
		return fmt.Sprintf("%s%d", a.Kind, a.TaskID)
	case KindApproveGroup, KindRejectGroup, KindApproveSubject, KindRejectSubject:
		return fmt.Sprintf("%s%d", a.Kind, a.RequestID)
	case KindGroupMenu:
		return fmt.Sprintf("%s%s_%d", a.Kind, a.Menu, a.GroupID)
	case KindAdmin:
		return string(a.Kind) + a.Admin
	case KindAddSubject:
		if a.ReturnToTask {
			return fmt.Sprintf("%s%d_task", a.Kind, a.GroupID)
		}
		return fmt.Sprintf("%s%d", a.Kind, a.GroupID)
	case KindSelectSubject, KindDeleteSubject:
		return fmt.Sprintf("%s%d_%d", a.Kind, a.SubjectID, a.GroupID)
	case KindChangeRole:
		return fmt.Sprintf("%s%d_%d", a.Kind, a.UserID, a.GroupID)
	case KindTaskFor:
		return fmt.Sprintf("%s%s_%d_%d", a.Kind, a.Audience, a.SubjectID, a.GroupID)
	case KindToggle:
		return fmt.Sprintf("%s%s_%d", a.Kind, a.Toggle, a.GroupID)
	}
	return ""
}

func segInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("action: bad id segment %q: %w", s, err)
	}
	return v, nil
}

func segTwoInt64(k Kind, rest string) (int64, int64, error) {
	first, second, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, segmentError(k, rest)
	}
	a, err := segInt64(first)
	if err != nil {
		return 0, 0, err
	}
	b, err := segInt64(second)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func segmentError(k Kind, rest string) error {
	return fmt.Errorf("action: malformed %s payload %q", strings.TrimSuffix(string(k), "_"), rest)
}
