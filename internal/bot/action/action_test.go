package action

import (
	"errors"
	"strings"
	"testing"
)

func TestParseExact(t *testing.T) {
	for _, k := range ExactKinds() {
		a, err := Parse(string(k))
		if err != nil {
			t.Fatalf("Parse(%q): %v", k, err)
		}
		if a.Kind != k {
			t.Errorf("Parse(%q) kind = %q", k, a.Kind)
		}
	}
}

func TestParsePrefixed(t *testing.T) {
	cases := []struct {
		data string
		want Action
	}{
		{"select_group_42", Action{Kind: KindSelectGroup, GroupID: 42}},
		{"join_group_7", Action{Kind: KindJoinGroup, GroupID: 7}},
		{"complete_task_99", Action{Kind: KindCompleteTask, TaskID: 99}},
		{"task_details_3", Action{Kind: KindTaskDetails, TaskID: 3}},
		{"approve_group_5", Action{Kind: KindApproveGroup, RequestID: 5}},
		{"reject_subject_11", Action{Kind: KindRejectSubject, RequestID: 11}},
		{"group_menu_tasks_8", Action{Kind: KindGroupMenu, Menu: MenuTasks, GroupID: 8}},
		{"group_menu_addtask_8", Action{Kind: KindGroupMenu, Menu: MenuAddTask, GroupID: 8}},
		{"admin_roles", Action{Kind: KindAdmin, Admin: AdminRoles}},
		{"admin_group_requests", Action{Kind: KindAdmin, Admin: AdminGroupRequests}},
		{"add_subject_4", Action{Kind: KindAddSubject, GroupID: 4}},
		{"add_subject_4_task", Action{Kind: KindAddSubject, GroupID: 4, ReturnToTask: true}},
		{"select_subject_2_9", Action{Kind: KindSelectSubject, SubjectID: 2, GroupID: 9}},
		{"delete_subject_2_9", Action{Kind: KindDeleteSubject, SubjectID: 2, GroupID: 9}},
		{"change_role_15_3", Action{Kind: KindChangeRole, UserID: 15, GroupID: 3}},
		{"task_for_group_2_9", Action{Kind: KindTaskFor, Audience: AudienceGroup, SubjectID: 2, GroupID: 9}},
		{"task_for_me_2_9", Action{Kind: KindTaskFor, Audience: AudiencePersonal, SubjectID: 2, GroupID: 9}},
		{"toggle_global_notifications_6", Action{Kind: KindToggle, Toggle: ToggleGlobal, GroupID: 6}},
		{"toggle_group_notifications_6", Action{Kind: KindToggle, Toggle: ToggleGroup, GroupID: 6}},
		{"export_tasks_12", Action{Kind: KindExportTasks, GroupID: 12}},
		{"edit_group_description_12", Action{Kind: KindEditGroupDesc, GroupID: 12}},
		{"notification_settings_12", Action{Kind: KindNotifySettings, GroupID: 12}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.data)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.data, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.data, got, tc.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"select_group_abc",
		"group_menu_8",
		"group_menu_bogus_8",
		"admin_bogus",
		"task_for_everyone_2_9",
		"task_for_group_2",
		"change_role_15",
		"toggle_something_6",
		"add_subject_4_menu",
		"",
		"unknown_thing_1",
	}
	for _, data := range cases {
		if _, err := Parse(data); err == nil {
			t.Errorf("Parse(%q): want error", data)
		}
	}
	if _, err := Parse("no_such_action"); !errors.Is(err, ErrUnknown) {
		t.Errorf("unknown action: got %v, want ErrUnknown", err)
	}
}

// Overlapping prefixes must resolve by table order, not by accident of
// longest match.
func TestParseOrderShadowing(t *testing.T) {
	// group_members_ would also match nothing earlier; group_menu_ must not
	// swallow it.
	a, err := Parse("group_members_5")
	if err != nil {
		t.Fatalf("group_members_5: %v", err)
	}
	if a.Kind != KindGroupMembers {
		t.Errorf("group_members_5 kind = %q", a.Kind)
	}

	// add_group is exact and must win over any add_* prefix scan.
	a, err = Parse("add_group")
	if err != nil {
		t.Fatalf("add_group: %v", err)
	}
	if a.Kind != KindAddGroup {
		t.Errorf("add_group kind = %q", a.Kind)
	}

	// toggle_ stays behind notification_settings_ in the table; a settings
	// payload must never decode as a toggle.
	a, err = Parse("notification_settings_3")
	if err != nil {
		t.Fatalf("notification_settings_3: %v", err)
	}
	if a.Kind != KindNotifySettings {
		t.Errorf("notification_settings_3 kind = %q", a.Kind)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	actions := []Action{
		{Kind: KindAddGroup},
		{Kind: KindBackToAdmin},
		{Kind: KindSelectGroup, GroupID: 42},
		{Kind: KindCompleteTask, TaskID: 99},
		{Kind: KindApproveSubject, RequestID: 11},
		{Kind: KindGroupMenu, Menu: MenuSettings, GroupID: 8},
		{Kind: KindAdmin, Admin: AdminSubjectRequests},
		{Kind: KindAddSubject, GroupID: 4, ReturnToTask: true},
		{Kind: KindSelectSubject, SubjectID: 2, GroupID: 9},
		{Kind: KindChangeRole, UserID: 15, GroupID: 3},
		{Kind: KindTaskFor, Audience: AudiencePersonal, SubjectID: 2, GroupID: 9},
		{Kind: KindToggle, Toggle: ToggleGroup, GroupID: 6},
	}
	for _, a := range actions {
		data := a.Encode()
		if data == "" {
			t.Errorf("%+v encoded empty", a)
			continue
		}
		got, err := Parse(data)
		if err != nil {
			t.Errorf("Parse(Encode(%+v)) = %q: %v", a, data, err)
			continue
		}
		if got != a {
			t.Errorf("round trip %+v -> %q -> %+v", a, data, got)
		}
	}
}

// Every prefix constant must end with the delimiter, or TrimPrefix would eat
// into the payload.
func TestPrefixConstantsEndWithDelimiter(t *testing.T) {
	for _, k := range PrefixKinds() {
		if !strings.HasSuffix(string(k), "_") {
			t.Errorf("prefix %q does not end with underscore", k)
		}
	}
}
