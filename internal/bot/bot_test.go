package bot

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/groupbot/core/telegram"
	"github.com/m3rciful/groupbot/core/telegram/sender"
	"github.com/m3rciful/groupbot/core/telegram/state"
	"github.com/m3rciful/groupbot/internal/bot/action"
	"github.com/m3rciful/groupbot/internal/bot/flows"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/notify"
	"github.com/m3rciful/groupbot/internal/storage"
)

type fakeCtx struct {
	tele.Context
	user  *tele.User
	text  string
	store map[string]interface{}
	sent  []string
}

func newFakeCtx(userID int64) *fakeCtx {
	return &fakeCtx{user: &tele.User{ID: userID}, store: map[string]interface{}{}}
}

func (f *fakeCtx) Sender() *tele.User  { return f.user }
func (f *fakeCtx) Chat() *tele.Chat    { return &tele.Chat{ID: f.user.ID} }
func (f *fakeCtx) Update() tele.Update { return tele.Update{} }
func (f *fakeCtx) Text() string        { return f.text }

func (f *fakeCtx) Send(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return nil
}

func (f *fakeCtx) EditOrSend(what interface{}, opts ...interface{}) error {
	return f.Send(what, opts...)
}

func (f *fakeCtx) Get(key string) interface{}    { return f.store[key] }
func (f *fakeCtx) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeCtx) lastSent(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

type memKey struct{ userID, groupID int64 }

// botStore is an in-memory Store with mutation counters for the handler tests.
type botStore struct {
	users       map[int64]models.User // by telegram id
	groups      map[int64]models.Group
	memberships map[memKey]models.Membership
	tasks       map[int64]models.TaskWithSubject
	completions map[memKey]models.TaskCompletion // userID, taskID
	members     []models.Member
	curators    int

	membershipInserts int
	completionMarks   int
	roleChanges       int
}

func newBotStore() *botStore {
	return &botStore{
		users:       map[int64]models.User{},
		groups:      map[int64]models.Group{10: {ID: 10, Name: "CS101", Status: models.StatusActive}},
		memberships: map[memKey]models.Membership{},
		tasks:       map[int64]models.TaskWithSubject{},
		completions: map[memKey]models.TaskCompletion{},
	}
}

func (s *botStore) addUser(telegramID int64, role string) models.User {
	u := models.User{
		ID:                   telegramID + 1000,
		TelegramID:           telegramID,
		Role:                 role,
		NotificationsEnabled: true,
		Settings:             models.Settings{},
	}
	s.users[telegramID] = u
	return u
}

func (s *botStore) addMembership(userID, groupID int64, role string) {
	s.memberships[memKey{userID, groupID}] = models.Membership{UserID: userID, GroupID: groupID, Role: role}
}

// flows.Store

func (s *botStore) GetUserByTelegramID(_ context.Context, telegramID int64) (models.User, error) {
	u, ok := s.users[telegramID]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *botStore) GetGroupByID(_ context.Context, id int64) (models.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, storage.ErrNotFound
	}
	return g, nil
}

func (s *botStore) GetMembership(_ context.Context, userID, groupID int64) (models.Membership, error) {
	m, ok := s.memberships[memKey{userID, groupID}]
	if !ok {
		return models.Membership{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *botStore) GroupNameTaken(context.Context, string) (bool, error) { return false, nil }

func (s *botStore) CreateGroupWithCurator(_ context.Context, name, _ string, _ int64) (models.Group, error) {
	return models.Group{ID: 99, Name: name}, nil
}

func (s *botStore) CreateGroupRequest(_ context.Context, name, _ string, _ int64) (models.GroupRequest, error) {
	return models.GroupRequest{ID: 1, GroupName: name}, nil
}

func (s *botStore) ListActiveSubjects(context.Context, int64) ([]models.Subject, error) {
	return nil, nil
}

func (s *botStore) CreateSubject(_ context.Context, name string, groupID, _ int64, status string) (models.Subject, error) {
	return models.Subject{ID: 5, Name: name, GroupID: groupID, Status: status}, nil
}

func (s *botStore) CreateSubjectRequest(_ context.Context, name string, _, _ int64) (models.SubjectRequest, error) {
	return models.SubjectRequest{ID: 1, SubjectName: name}, nil
}

func (s *botStore) CreateTask(_ context.Context, nt storage.NewTask) (models.Task, error) {
	return models.Task{ID: 7, Title: nt.Title, Status: nt.Status}, nil
}

func (s *botStore) ListMembers(context.Context, int64) ([]models.Member, error) {
	return s.members, nil
}

func (s *botStore) UpdateGroupDescription(context.Context, int64, string) error { return nil }

// bot.Store

func (s *botStore) UpsertUser(_ context.Context, telegramID int64, _, _, _ string) (models.User, error) {
	if u, ok := s.users[telegramID]; ok {
		return u, nil
	}
	return s.addUser(telegramID, models.RoleUser), nil
}

func (s *botStore) GetUserByID(_ context.Context, id int64) (models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (s *botStore) SetUserRole(context.Context, int64, string) error           { return nil }
func (s *botStore) SetNotificationsEnabled(context.Context, int64, bool) error { return nil }
func (s *botStore) SetGroupNotificationSetting(context.Context, int64, int64, bool) error {
	return nil
}

func (s *botStore) ListActiveGroups(context.Context) ([]models.Group, error) {
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out, nil
}

func (s *botStore) ListGroupsForUser(context.Context, int64) ([]models.Group, error) {
	return nil, nil
}

func (s *botStore) CreateMembership(_ context.Context, userID, groupID int64, role string) error {
	s.membershipInserts++
	s.addMembership(userID, groupID, role)
	return nil
}

func (s *botStore) SetMembershipRole(_ context.Context, userID, groupID int64, role string) error {
	s.roleChanges++
	s.addMembership(userID, groupID, role)
	return nil
}

func (s *botStore) CountCurators(context.Context, int64) (int, error) { return s.curators, nil }

func (s *botStore) GetSubjectByID(_ context.Context, id int64) (models.Subject, error) {
	return models.Subject{ID: id, Name: "math", GroupID: 10, Status: models.StatusActive}, nil
}

func (s *botStore) SetSubjectStatus(context.Context, int64, string) error { return nil }

func (s *botStore) GetTaskWithSubject(_ context.Context, id int64) (models.TaskWithSubject, error) {
	t, ok := s.tasks[id]
	if !ok {
		return models.TaskWithSubject{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *botStore) ListVisibleTasks(context.Context, int64, int64) ([]models.TaskWithSubject, error) {
	return nil, nil
}

func (s *botStore) ListIncompleteTasks(context.Context, int64, int64) ([]models.TaskWithSubject, error) {
	return nil, nil
}

func (s *botStore) GetCompletion(_ context.Context, userID, taskID int64) (models.TaskCompletion, error) {
	c, ok := s.completions[memKey{userID, taskID}]
	if !ok {
		return models.TaskCompletion{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *botStore) MarkTaskCompleted(_ context.Context, userID, taskID int64) error {
	s.completionMarks++
	s.completions[memKey{userID, taskID}] = models.TaskCompletion{UserID: userID, TaskID: taskID, Completed: true}
	return nil
}

func (s *botStore) TaskStats(context.Context, int64) ([]models.TaskStat, error) { return nil, nil }

func (s *botStore) ListPendingGroupRequests(context.Context) ([]models.GroupRequest, error) {
	return nil, nil
}

func (s *botStore) ApproveGroupRequest(context.Context, int64) (models.Group, models.User, error) {
	return models.Group{}, models.User{}, storage.ErrNotFound
}

func (s *botStore) RejectGroupRequest(context.Context, int64) (models.GroupRequest, models.User, error) {
	return models.GroupRequest{}, models.User{}, storage.ErrNotFound
}

func (s *botStore) GetSubjectRequest(context.Context, int64) (models.SubjectRequest, error) {
	return models.SubjectRequest{}, storage.ErrNotFound
}

func (s *botStore) ListPendingSubjectRequests(context.Context) ([]models.SubjectRequest, error) {
	return nil, nil
}

func (s *botStore) ApproveSubjectRequest(context.Context, int64) (models.Subject, models.SubjectRequest, models.User, error) {
	return models.Subject{}, models.SubjectRequest{}, models.User{}, storage.ErrNotFound
}

func (s *botStore) RejectSubjectRequest(context.Context, int64) (models.SubjectRequest, models.User, error) {
	return models.SubjectRequest{}, models.User{}, storage.ErrNotFound
}

func newHandlers(t *testing.T, store *botStore) (*Handlers, state.Manager) {
	t.Helper()
	sessions := state.NewMemoryManager()
	disp := sender.NewDispatcher(sender.Options{Workers: 1})
	t.Cleanup(disp.Close)
	notifier := notify.New(disp)
	fl := flows.New(store, sessions, notifier, flows.Config{Location: time.UTC})
	fl.Register()
	return New(store, sessions, fl, notifier, Config{Location: time.UTC}), sessions
}

func TestJoinGroupIdempotent(t *testing.T) {
	store := newBotStore()
	h, _ := newHandlers(t, store)
	a := action.Action{Kind: action.KindJoinGroup, GroupID: 10}

	c := newFakeCtx(1)
	if err := h.onJoinGroup(c, a); err != nil {
		t.Fatal(err)
	}
	if store.membershipInserts != 1 {
		t.Fatalf("membership inserts = %d, want 1", store.membershipInserts)
	}

	c2 := newFakeCtx(1)
	if err := h.onJoinGroup(c2, a); err != nil {
		t.Fatal(err)
	}
	if store.membershipInserts != 1 {
		t.Errorf("second join inserted a row, inserts = %d", store.membershipInserts)
	}
	if c2.lastSent(t) != ui.MsgAlreadyMember {
		t.Errorf("second join reply = %q", c2.lastSent(t))
	}
}

func TestCompleteTaskIdempotent(t *testing.T) {
	store := newBotStore()
	store.tasks[7] = models.TaskWithSubject{Task: models.Task{
		ID: 7, Title: "essay", GroupID: 10, ForGroup: true, Status: models.StatusActive,
	}}
	h, _ := newHandlers(t, store)
	a := action.Action{Kind: action.KindCompleteTask, TaskID: 7}

	c := newFakeCtx(1)
	if err := h.onCompleteTask(c, a); err != nil {
		t.Fatal(err)
	}
	if store.completionMarks != 1 {
		t.Fatalf("completion marks = %d, want 1", store.completionMarks)
	}
	if c.lastSent(t) != ui.MsgTaskCompleted {
		t.Errorf("first reply = %q", c.lastSent(t))
	}

	c2 := newFakeCtx(1)
	if err := h.onCompleteTask(c2, a); err != nil {
		t.Fatal(err)
	}
	if store.completionMarks != 1 {
		t.Errorf("second press wrote again, marks = %d", store.completionMarks)
	}
	if c2.lastSent(t) != ui.MsgAlreadyCompleted {
		t.Errorf("second reply = %q", c2.lastSent(t))
	}
}

func TestPersonalTaskHiddenFromOthers(t *testing.T) {
	store := newBotStore()
	creator := store.addUser(1, models.RoleUser)
	store.tasks[7] = models.TaskWithSubject{Task: models.Task{
		ID: 7, GroupID: 10, ForGroup: false, CreatedBy: creator.ID, Status: models.StatusActive,
	}}
	h, _ := newHandlers(t, store)

	c := newFakeCtx(2)
	if err := h.onTaskDetails(c, action.Action{Kind: action.KindTaskDetails, TaskID: 7}); err != nil {
		t.Fatal(err)
	}
	// Existence is not revealed to non-creators.
	if c.lastSent(t) != ui.MsgTaskNotFound {
		t.Errorf("reply = %q, want not-found", c.lastSent(t))
	}
}

func TestCuratorGateOnNotify(t *testing.T) {
	store := newBotStore()
	u := store.addUser(1, models.RoleUser)
	store.addMembership(u.ID, 10, models.MembershipMember)
	h, sessions := newHandlers(t, store)

	c := newFakeCtx(1)
	a := action.Action{Kind: action.KindGroupMenu, GroupID: 10, Menu: action.MenuNotify}
	if err := h.onGroupMenu(c, a); err != nil {
		t.Fatal(err)
	}
	if c.lastSent(t) != ui.MsgNotCurator {
		t.Errorf("reply = %q", c.lastSent(t))
	}
	if sessions.InProgress(1) {
		t.Error("notification flow started for a non-curator")
	}
}

func TestAdminGateOnPanel(t *testing.T) {
	store := newBotStore()
	h, _ := newHandlers(t, store)

	c := newFakeCtx(1)
	if err := h.cmdAdmin(c); err != nil {
		t.Fatal(err)
	}
	if c.lastSent(t) != ui.MsgNotAdmin {
		t.Errorf("reply = %q", c.lastSent(t))
	}
}

func TestSoleCuratorDemotionBlocked(t *testing.T) {
	store := newBotStore()
	store.addUser(1, models.RoleAdmin)
	curator := store.addUser(2, models.RoleUser)
	store.addMembership(curator.ID, 10, models.MembershipCurator)
	store.curators = 1
	h, _ := newHandlers(t, store)

	c := newFakeCtx(1)
	a := action.Action{Kind: action.KindChangeRole, UserID: curator.ID, GroupID: 10}
	if err := h.onChangeRole(c, a); err != nil {
		t.Fatal(err)
	}
	if store.roleChanges != 0 {
		t.Errorf("role changes = %d, want 0", store.roleChanges)
	}
	if got := c.lastSent(t); !strings.HasPrefix(got, ui.MsgSoleCuratorBlocked) {
		t.Errorf("reply = %q, want sole-curator note", got)
	}

	// With a second curator the demotion goes through.
	store.curators = 2
	c2 := newFakeCtx(1)
	if err := h.onChangeRole(c2, a); err != nil {
		t.Fatal(err)
	}
	if store.roleChanges != 1 {
		t.Errorf("role changes = %d, want 1", store.roleChanges)
	}
	if m := store.memberships[memKey{curator.ID, 10}]; m.Role != models.MembershipMember {
		t.Errorf("role after demotion = %q", m.Role)
	}
}

func TestRegisterRoutesCoversEveryAction(t *testing.T) {
	store := newBotStore()
	h, _ := newHandlers(t, store)

	reg := tg.NewRegistry()
	if err := h.RegisterRoutes(reg); err != nil {
		t.Fatal(err)
	}

	// Every encodable action must resolve to a registered route.
	samples := []action.Action{
		{Kind: action.KindAddGroup},
		{Kind: action.KindSelectGroup, GroupID: 5},
		{Kind: action.KindGroupMenu, GroupID: 5, Menu: action.MenuTasks},
		{Kind: action.KindTaskFor, GroupID: 5, SubjectID: 3, Audience: action.AudienceGroup},
		{Kind: action.KindToggle, GroupID: 5, Toggle: action.ToggleGroup},
		{Kind: action.KindChangeRole, UserID: 2, GroupID: 5},
	}
	for _, a := range samples {
		data := a.Encode()
		if _, _, ok := reg.ResolveCallback(data); !ok {
			t.Errorf("no route for %q", data)
		}
	}
}

func TestTasksCSV(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tasks := []models.TaskWithSubject{
		{
			Task: models.Task{
				ID: 1, Title: "essay, part 2", GroupID: 10,
				Deadline: deadline, ForGroup: true, Status: models.StatusActive,
			},
			SubjectName: "literature",
		},
		{
			Task: models.Task{
				ID: 2, Title: "lab", GroupID: 10,
				Deadline: deadline, ForGroup: false, Status: models.StatusPending,
			},
			SubjectName: "physics",
		},
	}
	out, err := tasksCSV(tasks)
	if err != nil {
		t.Fatal(err)
	}
	want := "id,title,subject,deadline,audience,status\n" +
		"1,\"essay, part 2\",literature,01.05.2026,group,active\n" +
		"2,lab,physics,01.05.2026,personal,pending\n"
	if !bytes.Equal(out, []byte(want)) {
		t.Errorf("csv =\n%s\nwant\n%s", out, want)
	}
}
