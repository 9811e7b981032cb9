package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/internal/models"
	"log/slog"
)

// NewTask carries the fields collected by the task-creation flow.
type NewTask struct {
	Title       string
	Description string
	SubjectID   int64
	GroupID     int64
	Deadline    time.Time
	CreatedBy   int64
	ForGroup    bool
	Status      string
}

// CreateTask inserts a task produced by a completed creation flow.
func (s *Storage) CreateTask(ctx context.Context, nt NewTask) (models.Task, error) {
	var t models.Task
	err := s.db.GetContext(ctx, &t, `
		INSERT INTO tasks (title, description, subject_id, group_id, deadline, created_by, for_group, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		nt.Title, nt.Description, nt.SubjectID, nt.GroupID, nt.Deadline, nt.CreatedBy, nt.ForGroup, nt.Status)
	if err != nil {
		logger.SVCTasks.ErrorContext(ctx, "task create failed",
			slog.String("event", "tasks.create"),
			slog.Int64("group_id", nt.GroupID),
			slog.String("err", err.Error()),
		)
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	logger.SVCTasks.InfoContext(ctx, "task created",
		slog.String("event", "tasks.create"),
		slog.Int64("task_id", t.ID),
		slog.Int64("group_id", t.GroupID),
	)
	return t, nil
}

// GetTaskWithSubject loads a task joined with its subject name.
func (s *Storage) GetTaskWithSubject(ctx context.Context, id int64) (models.TaskWithSubject, error) {
	var t models.TaskWithSubject
	err := s.db.GetContext(ctx, &t, `
		SELECT t.*, s.name AS subject_name
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.id = $1`,
		id)
	if err != nil {
		return models.TaskWithSubject{}, mapNotFound(err)
	}
	return t, nil
}

// ListVisibleTasks returns the group tasks the user may see: group-wide tasks
// plus the user's own personal ones, soonest deadline first.
func (s *Storage) ListVisibleTasks(ctx context.Context, groupID, userID int64) ([]models.TaskWithSubject, error) {
	var tasks []models.TaskWithSubject
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT t.*, s.name AS subject_name
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.group_id = $1 AND (t.for_group OR t.created_by = $2)
		ORDER BY t.deadline`,
		groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListIncompleteTasks returns visible active tasks the user has not completed.
func (s *Storage) ListIncompleteTasks(ctx context.Context, groupID, userID int64) ([]models.TaskWithSubject, error) {
	var tasks []models.TaskWithSubject
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT t.*, s.name AS subject_name
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.group_id = $1
		  AND t.status = 'active'
		  AND (t.for_group OR t.created_by = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM user_tasks ut
			WHERE ut.task_id = t.id AND ut.user_id = $2 AND ut.completed
		  )
		ORDER BY t.deadline`,
		groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("list incomplete tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksDueBetween returns active tasks with deadline inside [from, to],
// used by the reminder scheduler.
func (s *Storage) ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]models.TaskWithSubject, error) {
	var tasks []models.TaskWithSubject
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT t.*, s.name AS subject_name
		FROM tasks t
		JOIN subjects s ON s.id = t.subject_id
		WHERE t.status = 'active' AND t.deadline BETWEEN $1 AND $2
		ORDER BY t.deadline`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return tasks, nil
}

// GetCompletion returns the user's completion row for a task.
func (s *Storage) GetCompletion(ctx context.Context, userID, taskID int64) (models.TaskCompletion, error) {
	var c models.TaskCompletion
	err := s.db.GetContext(ctx, &c,
		`SELECT * FROM user_tasks WHERE user_id = $1 AND task_id = $2`, userID, taskID)
	if err != nil {
		return models.TaskCompletion{}, mapNotFound(err)
	}
	return c, nil
}

// MarkTaskCompleted records the user's completion of a task. Repeated calls
// keep a single row per (user, task).
func (s *Storage) MarkTaskCompleted(ctx context.Context, userID, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tasks (user_id, task_id, completed, completed_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id, task_id)
		DO UPDATE SET completed = TRUE, completed_at = COALESCE(user_tasks.completed_at, now())`,
		userID, taskID)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	return nil
}

// TaskStats aggregates per-task completion counts for a group's group-wide
// active tasks.
func (s *Storage) TaskStats(ctx context.Context, groupID int64) ([]models.TaskStat, error) {
	var stats []models.TaskStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT t.id AS task_id, t.title,
		       count(ut.user_id) FILTER (WHERE ut.completed) AS completed
		FROM tasks t
		LEFT JOIN user_tasks ut ON ut.task_id = t.id
		WHERE t.group_id = $1 AND t.for_group AND t.status = 'active'
		GROUP BY t.id, t.title
		ORDER BY t.deadline`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	return stats, nil
}
