// Package scheduler runs the daily deadline-reminder job. There is no cron
// dependency; the trigger is a timer loop that sleeps until the next
// configured local hour and fires once per day.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/internal/bot/ui"
	"github.com/m3rciful/groupbot/internal/models"
)

// Reminder windows. A task inside the urgent window is inside the week
// window too and receives a send from both classes; the double send is the
// intended behavior, not a bug to deduplicate.
const (
	weekWindow   = 7 * 24 * time.Hour
	urgentWindow = 3 * 24 * time.Hour
)

// Store is the persistence surface the reminder job needs.
type Store interface {
	ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]models.TaskWithSubject, error)
	ListMembers(ctx context.Context, groupID int64) ([]models.Member, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

// Sender delivers one reminder to one user.
type Sender interface {
	Direct(ctx context.Context, telegramID int64, text string, opts ...interface{}) error
}

// Config controls the firing schedule.
type Config struct {
	// Hour is the local hour of day (0-23) the job fires at.
	Hour int
	// Location resolves the local day boundary.
	Location *time.Location
}

// Scheduler owns the daily reminder loop.
type Scheduler struct {
	store  Store
	sender Sender
	cfg    Config
}

func New(store Store, sender Sender, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Hour < 0 || cfg.Hour > 23 {
		cfg.Hour = 9
	}
	return &Scheduler{store: store, sender: sender, cfg: cfg}
}

// Run fires the job once per day at the configured hour until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().In(s.cfg.Location)
		next := NextRun(now, s.cfg.Hour)
		logger.SCHED.InfoContext(ctx, "reminder job scheduled",
			slog.String("event", "scheduler.next"),
			slog.Time("at", next),
		)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.RunOnce(ctx, time.Now().In(s.cfg.Location))
	}
}

// NextRun returns the next occurrence of the given local hour after now.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// RunOnce executes one firing: the week class first, then the urgent class.
// Failures are isolated per task and per recipient; the batch always runs to
// completion.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	sentWeek, failedWeek := s.runClass(ctx, now, false)
	sentUrgent, failedUrgent := s.runClass(ctx, now, true)
	logger.SCHED.InfoContext(ctx, "reminder job finished",
		slog.String("event", "scheduler.run"),
		slog.Int("sent", sentWeek+sentUrgent),
		slog.Int("failed", failedWeek+failedUrgent),
	)
}

func (s *Scheduler) runClass(ctx context.Context, now time.Time, urgent bool) (sent, failed int) {
	window := weekWindow
	if urgent {
		window = urgentWindow
	}
	tasks, err := s.store.ListTasksDueBetween(ctx, now, now.Add(window))
	if err != nil {
		logger.SCHED.ErrorContext(ctx, "reminder query failed",
			slog.String("event", "scheduler.query"),
			slog.Bool("urgent", urgent),
			slog.String("err", err.Error()),
		)
		return 0, 0
	}

	for _, task := range tasks {
		recipients, err := s.recipients(ctx, task)
		if err != nil {
			failed++
			logger.SCHED.ErrorContext(ctx, "recipient resolution failed",
				slog.String("event", "scheduler.recipients"),
				slog.Int64("task_id", task.ID),
				slog.String("err", err.Error()),
			)
			continue
		}
		text := ui.ReminderText(task, urgent, now)
		for _, u := range recipients {
			if err := s.sender.Direct(ctx, u.TelegramID, text); err != nil {
				failed++
				logger.SCHED.WarnContext(ctx, "reminder send failed",
					slog.String("event", "scheduler.send"),
					slog.Int64("task_id", task.ID),
					slog.Int64("user_id", u.TelegramID),
					slog.String("err", err.Error()),
				)
				continue
			}
			sent++
		}
	}
	return sent, failed
}

// recipients resolves who gets reminded for one task: group tasks go to every
// member with notifications on for that group, personal tasks to the creator
// only.
func (s *Scheduler) recipients(ctx context.Context, task models.TaskWithSubject) ([]models.User, error) {
	if !task.ForGroup {
		creator, err := s.store.GetUserByID(ctx, task.CreatedBy)
		if err != nil {
			return nil, err
		}
		if !creator.GroupNotificationsEnabled(task.GroupID) {
			return nil, nil
		}
		return []models.User{creator}, nil
	}

	members, err := s.store.ListMembers(ctx, task.GroupID)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(members))
	for _, m := range members {
		if m.User.GroupNotificationsEnabled(task.GroupID) {
			users = append(users, m.User)
		}
	}
	return users, nil
}
