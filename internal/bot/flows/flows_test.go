package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/groupbot/core/telegram/state"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
	"github.com/m3rciful/groupbot/internal/notify"
	"github.com/m3rciful/groupbot/internal/storage"
)

// fakeCtx implements the slice of tele.Context the flow handlers touch.
// Unimplemented methods panic via the embedded nil interface, which is what
// we want: a handler reaching beyond this surface is a test failure.
type fakeCtx struct {
	tele.Context
	user  *tele.User
	text  string
	store map[string]interface{}
	sent  []string
}

func newFakeCtx(userID int64, text string) *fakeCtx {
	return &fakeCtx{
		user:  &tele.User{ID: userID},
		text:  text,
		store: map[string]interface{}{},
	}
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

func (f *fakeCtx) Get(key string) interface{}    { return f.store[key] }
func (f *fakeCtx) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeCtx) lastSent(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

type flowStore struct {
	nameTaken     bool
	failNameCheck bool

	group      models.Group
	membership models.Membership
	subjects   []models.Subject
	members    []models.Member

	createdGroups   []string
	groupRequests   []string
	createdSubjects []string
	subjectRequests []string
	createdTasks    []storage.NewTask
	descUpdates     []string
}

func newFlowStore() *flowStore {
	return &flowStore{
		group:      models.Group{ID: 10, Name: "CS101", Status: models.StatusActive},
		membership: models.Membership{Role: models.MembershipCurator},
	}
}

func (s *flowStore) GetUserByTelegramID(_ context.Context, telegramID int64) (models.User, error) {
	return models.User{
		ID:                   telegramID + 1000,
		TelegramID:           telegramID,
		NotificationsEnabled: true,
		Settings:             models.Settings{},
	}, nil
}

func (s *flowStore) GetGroupByID(_ context.Context, id int64) (models.Group, error) {
	return s.group, nil
}

func (s *flowStore) GetMembership(_ context.Context, userID, groupID int64) (models.Membership, error) {
	return s.membership, nil
}

func (s *flowStore) GroupNameTaken(_ context.Context, name string) (bool, error) {
	if s.failNameCheck {
		return false, errors.New("db down")
	}
	return s.nameTaken, nil
}

func (s *flowStore) CreateGroupWithCurator(_ context.Context, name, description string, createdBy int64) (models.Group, error) {
	s.createdGroups = append(s.createdGroups, name)
	return models.Group{ID: 10, Name: name, Status: models.StatusActive}, nil
}

func (s *flowStore) CreateGroupRequest(_ context.Context, name, description string, userID int64) (models.GroupRequest, error) {
	s.groupRequests = append(s.groupRequests, name)
	return models.GroupRequest{ID: 1, GroupName: name, Status: models.StatusPending}, nil
}

func (s *flowStore) ListActiveSubjects(_ context.Context, groupID int64) ([]models.Subject, error) {
	return s.subjects, nil
}

func (s *flowStore) CreateSubject(_ context.Context, name string, groupID, createdBy int64, status string) (models.Subject, error) {
	s.createdSubjects = append(s.createdSubjects, name)
	return models.Subject{ID: 5, Name: name, GroupID: groupID, Status: status}, nil
}

func (s *flowStore) CreateSubjectRequest(_ context.Context, name string, groupID, userID int64) (models.SubjectRequest, error) {
	s.subjectRequests = append(s.subjectRequests, name)
	return models.SubjectRequest{ID: 1, SubjectName: name, Status: models.StatusPending}, nil
}

func (s *flowStore) CreateTask(_ context.Context, nt storage.NewTask) (models.Task, error) {
	s.createdTasks = append(s.createdTasks, nt)
	return models.Task{
		ID:       7,
		Title:    nt.Title,
		Deadline: nt.Deadline,
		ForGroup: nt.ForGroup,
		Status:   nt.Status,
	}, nil
}

func (s *flowStore) ListMembers(_ context.Context, groupID int64) ([]models.Member, error) {
	return s.members, nil
}

func (s *flowStore) UpdateGroupDescription(_ context.Context, groupID int64, description string) error {
	s.descUpdates = append(s.descUpdates, description)
	return nil
}

func newFlows(store *flowStore, cfg Config) (*Flows, state.Manager) {
	sessions := state.NewMemoryManager()
	f := New(store, sessions, notify.New(nil), cfg)
	f.Register()
	return f, sessions
}

func step(t *testing.T, sessions state.Manager, userID int64, text string) *fakeCtx {
	t.Helper()
	c := newFakeCtx(userID, text)
	if err := sessions.ManagerHandler(c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAddGroupSelfService(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{Location: time.UTC})

	start := newFakeCtx(1, "")
	if err := f.StartAddGroup(start); err != nil {
		t.Fatal(err)
	}
	if got := sessions.GetState(1); got != StateGroupName {
		t.Fatalf("state after start = %q", got)
	}

	step(t, sessions, 1, "CS101")
	if got := sessions.GetState(1); got != StateGroupDesc {
		t.Fatalf("state after name = %q", got)
	}

	step(t, sessions, 1, "-")
	if len(store.createdGroups) != 1 || store.createdGroups[0] != "CS101" {
		t.Errorf("created groups = %v", store.createdGroups)
	}
	if len(store.groupRequests) != 0 {
		t.Errorf("no request expected in self-service mode, got %v", store.groupRequests)
	}
	if sessions.InProgress(1) {
		t.Error("session not cleared after terminal step")
	}
}

func TestAddGroupApprovalRequired(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{ApprovalRequired: true, Location: time.UTC})

	if err := f.StartAddGroup(newFakeCtx(2, "")); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 2, "Physics")
	step(t, sessions, 2, "evening group")

	if len(store.groupRequests) != 1 || store.groupRequests[0] != "Physics" {
		t.Errorf("group requests = %v", store.groupRequests)
	}
	if len(store.createdGroups) != 0 {
		t.Errorf("direct creation must not happen under approval, got %v", store.createdGroups)
	}
}

func TestGroupNameTakenRepromptsWithoutAdvancing(t *testing.T) {
	store := newFlowStore()
	store.nameTaken = true
	f, sessions := newFlows(store, Config{Location: time.UTC})

	if err := f.StartAddGroup(newFakeCtx(3, "")); err != nil {
		t.Fatal(err)
	}
	c := step(t, sessions, 3, "CS101")

	if got := sessions.GetState(3); got != StateGroupName {
		t.Errorf("state = %q, want unchanged name step", got)
	}
	if len(store.createdGroups)+len(store.groupRequests) != 0 {
		t.Error("validation failure must not touch the store")
	}
	if c.lastSent(t) != ui.PromptGroupNameTaken {
		t.Errorf("reply = %q", c.lastSent(t))
	}
}

func TestTaskDeadlineValidation(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{Location: time.UTC})

	if err := f.StartAddTask(newFakeCtx(4, ""), 10, 5, true, false); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 4, "essay")
	step(t, sessions, 4, "-")

	for _, bad := range []string{"tomorrow", "5.1.2030", "01.01.2020"} {
		c := step(t, sessions, 4, bad)
		if got := sessions.GetState(4); got != StateTaskDeadline {
			t.Fatalf("state after %q = %q, want deadline step", bad, got)
		}
		if len(store.createdTasks) != 0 {
			t.Fatalf("task created from invalid input %q", bad)
		}
		if c.lastSent(t) != ui.PromptBadDeadline {
			t.Errorf("reply to %q = %q", bad, c.lastSent(t))
		}
	}

	step(t, sessions, 4, "31.12.2099")
	if len(store.createdTasks) != 1 {
		t.Fatal("task not created from valid deadline")
	}
	nt := store.createdTasks[0]
	if nt.Title != "essay" || !nt.ForGroup || nt.SubjectID != 5 || nt.GroupID != 10 {
		t.Errorf("task = %+v", nt)
	}
	if nt.Status != models.StatusActive {
		t.Errorf("status = %q, want active without approval", nt.Status)
	}
	if sessions.InProgress(4) {
		t.Error("session not cleared after task creation")
	}
}

func TestTaskPendingWhenApprovalNeeded(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{Location: time.UTC})

	if err := f.StartAddTask(newFakeCtx(5, ""), 10, 5, false, true); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 5, "lab report")
	step(t, sessions, 5, "chapter 3")
	step(t, sessions, 5, "31.12.2099")

	if len(store.createdTasks) != 1 {
		t.Fatal("task not created")
	}
	if got := store.createdTasks[0].Status; got != models.StatusPending {
		t.Errorf("status = %q, want pending when approval was needed at flow start", got)
	}
}

func TestSubjectApprovalRouting(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{Location: time.UTC})

	// Curator path: subject lands directly.
	if err := f.StartAddSubject(newFakeCtx(6, ""), 10, false, false); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 6, "Algebra")
	if len(store.createdSubjects) != 1 || len(store.subjectRequests) != 0 {
		t.Errorf("curator path: subjects=%v requests=%v", store.createdSubjects, store.subjectRequests)
	}

	// Member path: only a request is recorded.
	if err := f.StartAddSubject(newFakeCtx(7, ""), 10, true, false); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 7, "Geometry")
	if len(store.createdSubjects) != 1 || len(store.subjectRequests) != 1 {
		t.Errorf("member path: subjects=%v requests=%v", store.createdSubjects, store.subjectRequests)
	}
}

func TestStoreFailureClearsFlow(t *testing.T) {
	store := newFlowStore()
	store.failNameCheck = true
	f, sessions := newFlows(store, Config{Location: time.UTC})

	if err := f.StartAddGroup(newFakeCtx(8, "")); err != nil {
		t.Fatal(err)
	}
	c := step(t, sessions, 8, "CS101")

	if sessions.InProgress(8) {
		t.Error("session must be cleared after a store failure")
	}
	if c.lastSent(t) != ui.MsgSomethingWentWrong {
		t.Errorf("reply = %q", c.lastSent(t))
	}
}

type captureSender struct {
	to []int64
}

func (cs *captureSender) Send(to tele.Recipient, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	u := to.(*tele.User)
	cs.to = append(cs.to, u.ID)
	return &tele.Message{}, nil
}

func TestNotifyExcludesSenderAndOptOuts(t *testing.T) {
	store := newFlowStore()
	mem := func(telegramID int64) models.Member {
		return models.Member{User: models.User{
			ID:                   telegramID + 1000,
			TelegramID:           telegramID,
			NotificationsEnabled: true,
			Settings:             models.Settings{},
		}}
	}
	optedOut := mem(303)
	optedOut.User.Settings[models.GroupNotificationsKey(10)] = false
	store.members = []models.Member{mem(11), mem(202), optedOut}

	sessions := state.NewMemoryManager()
	notifier := notify.New(nil)
	cs := &captureSender{}
	notifier.Bind(cs)
	f := New(store, sessions, notifier, Config{Location: time.UTC})
	f.Register()

	// Sender 11 is a member of the group and must not receive their own
	// broadcast.
	if err := f.StartSendNotification(newFakeCtx(11, ""), 10); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 11, "lecture moved to 14:00")

	if len(cs.to) != 1 || cs.to[0] != 202 {
		t.Errorf("delivered to %v, want [202]", cs.to)
	}
}

func TestEditDescription(t *testing.T) {
	store := newFlowStore()
	f, sessions := newFlows(store, Config{Location: time.UTC})

	if err := f.StartEditDescription(newFakeCtx(9, ""), 10); err != nil {
		t.Fatal(err)
	}
	step(t, sessions, 9, "new description")

	if len(store.descUpdates) != 1 || store.descUpdates[0] != "new description" {
		t.Errorf("description updates = %v", store.descUpdates)
	}
	if sessions.InProgress(9) {
		t.Error("session not cleared")
	}
}
