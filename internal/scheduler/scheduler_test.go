package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/groupbot/internal/models"
)

type fakeStore struct {
	tasks   []models.TaskWithSubject
	members map[int64][]models.Member
	users   map[int64]models.User
}

func (f *fakeStore) ListTasksDueBetween(_ context.Context, from, to time.Time) ([]models.TaskWithSubject, error) {
	var out []models.TaskWithSubject
	for _, t := range f.tasks {
		if !t.Deadline.Before(from) && !t.Deadline.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMembers(_ context.Context, groupID int64) ([]models.Member, error) {
	return f.members[groupID], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, errors.New("no such user")
	}
	return u, nil
}

type fakeSender struct {
	sent    []int64
	failFor map[int64]bool
}

func (f *fakeSender) Direct(_ context.Context, telegramID int64, _ string, _ ...interface{}) error {
	if f.failFor[telegramID] {
		return errors.New("blocked")
	}
	f.sent = append(f.sent, telegramID)
	return nil
}

func member(userID, telegramID int64) models.Member {
	return models.Member{
		Membership: models.Membership{UserID: userID, Role: models.MembershipMember},
		User: models.User{
			ID:                   userID,
			TelegramID:           telegramID,
			NotificationsEnabled: true,
			Settings:             models.Settings{},
		},
	}
}

func groupTask(id, groupID int64, deadline time.Time) models.TaskWithSubject {
	return models.TaskWithSubject{
		Task: models.Task{
			ID:       id,
			Title:    "task",
			GroupID:  groupID,
			Deadline: deadline,
			ForGroup: true,
			Status:   models.StatusActive,
		},
		SubjectName: "math",
	}
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		now  time.Time
		hour int
		want time.Time
	}{
		// Before the hour: fires today.
		{time.Date(2026, 2, 10, 7, 30, 0, 0, loc), 9, time.Date(2026, 2, 10, 9, 0, 0, 0, loc)},
		// After the hour: fires tomorrow.
		{time.Date(2026, 2, 10, 10, 0, 0, 0, loc), 9, time.Date(2026, 2, 11, 9, 0, 0, 0, loc)},
		// Exactly at the hour: fires tomorrow, never immediately.
		{time.Date(2026, 2, 10, 9, 0, 0, 0, loc), 9, time.Date(2026, 2, 11, 9, 0, 0, 0, loc)},
		{time.Date(2026, 2, 10, 23, 59, 0, 0, loc), 0, time.Date(2026, 2, 11, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		if got := NextRun(tc.now, tc.hour); !got.Equal(tc.want) {
			t.Errorf("NextRun(%v, %d) = %v, want %v", tc.now, tc.hour, got, tc.want)
		}
	}
}

func TestRunOnceWindowClasses(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{
		tasks: []models.TaskWithSubject{
			groupTask(1, 10, now.Add(2*24*time.Hour)),  // inside both windows
			groupTask(2, 10, now.Add(5*24*time.Hour)),  // week window only
			groupTask(3, 10, now.Add(-24*time.Hour)),   // past, never reminded
			groupTask(4, 10, now.Add(10*24*time.Hour)), // beyond the week window
		},
		members: map[int64][]models.Member{
			10: {member(1, 101)},
		},
	}
	sender := &fakeSender{}
	s := New(store, sender, Config{Hour: 9, Location: time.UTC})

	s.RunOnce(context.Background(), now)

	// Task 1 is due in 2 days: one send from the week pass plus one from the
	// urgent pass. Task 2 gets the week pass only.
	if got := len(sender.sent); got != 3 {
		t.Fatalf("total sends = %d, want 3 (%v)", got, sender.sent)
	}
	for _, id := range sender.sent {
		if id != 101 {
			t.Errorf("unexpected recipient %d", id)
		}
	}
}

func TestRunOnceRespectsGroupOptOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	optedOut := member(2, 202)
	optedOut.User.Settings[models.GroupNotificationsKey(10)] = false
	globalOff := member(3, 303)
	globalOff.User.NotificationsEnabled = false

	store := &fakeStore{
		tasks: []models.TaskWithSubject{
			groupTask(1, 10, now.Add(5*24*time.Hour)),
		},
		members: map[int64][]models.Member{
			10: {member(1, 101), optedOut, globalOff},
		},
	}
	sender := &fakeSender{}
	s := New(store, sender, Config{Hour: 9, Location: time.UTC})

	s.RunOnce(context.Background(), now)

	if len(sender.sent) != 1 || sender.sent[0] != 101 {
		t.Errorf("sent to %v, want [101] only", sender.sent)
	}
}

func TestRunOncePersonalTaskGoesToCreatorOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := groupTask(1, 10, now.Add(5*24*time.Hour))
	task.ForGroup = false
	task.CreatedBy = 2

	store := &fakeStore{
		tasks: []models.TaskWithSubject{task},
		members: map[int64][]models.Member{
			10: {member(1, 101), member(2, 202)},
		},
		users: map[int64]models.User{
			2: member(2, 202).User,
		},
	}
	sender := &fakeSender{}
	s := New(store, sender, Config{Hour: 9, Location: time.UTC})

	s.RunOnce(context.Background(), now)

	if len(sender.sent) != 1 || sender.sent[0] != 202 {
		t.Errorf("sent to %v, want creator 202 only", sender.sent)
	}
}

func TestRunOnceIsolatesSendFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{
		tasks: []models.TaskWithSubject{
			groupTask(1, 10, now.Add(5*24*time.Hour)),
		},
		members: map[int64][]models.Member{
			10: {member(1, 101), member(2, 202), member(3, 303)},
		},
	}
	sender := &fakeSender{failFor: map[int64]bool{202: true}}
	s := New(store, sender, Config{Hour: 9, Location: time.UTC})

	s.RunOnce(context.Background(), now)

	// A failed recipient must not stop the rest of the batch.
	if len(sender.sent) != 2 {
		t.Errorf("sent to %v, want the two working recipients", sender.sent)
	}
}

func TestNewClampsHour(t *testing.T) {
	s := New(&fakeStore{}, &fakeSender{}, Config{Hour: 99})
	if s.cfg.Hour != 9 {
		t.Errorf("hour = %d, want default 9", s.cfg.Hour)
	}
}
