package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/internal/models"
	"log/slog"
)

// GetSubjectByID loads one subject by primary key.
func (s *Storage) GetSubjectByID(ctx context.Context, id int64) (models.Subject, error) {
	var sub models.Subject
	err := s.db.GetContext(ctx, &sub, `SELECT * FROM subjects WHERE id = $1`, id)
	if err != nil {
		return models.Subject{}, mapNotFound(err)
	}
	return sub, nil
}

// ListActiveSubjects returns the group's active subjects ordered by name.
func (s *Storage) ListActiveSubjects(ctx context.Context, groupID int64) ([]models.Subject, error) {
	var subjects []models.Subject
	err := s.db.SelectContext(ctx, &subjects,
		`SELECT * FROM subjects WHERE group_id = $1 AND status = 'active' ORDER BY name`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// CreateSubject inserts a subject with the given status.
func (s *Storage) CreateSubject(ctx context.Context, name string, groupID, createdBy int64, status string) (models.Subject, error) {
	sub, err := insertSubjectTx(ctx, s.db, name, groupID, createdBy, status)
	if err != nil {
		logger.SVCSubjects.ErrorContext(ctx, "subject create failed",
			slog.String("event", "subjects.create"),
			slog.Int64("group_id", groupID),
			slog.String("err", err.Error()),
		)
		return models.Subject{}, err
	}
	return sub, nil
}

// SetSubjectStatus soft-deletes or reactivates a subject. Tasks keep their
// subject reference either way.
func (s *Storage) SetSubjectStatus(ctx context.Context, subjectID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET status = $2, updated_at = now() WHERE id = $1`,
		subjectID, status)
	if err != nil {
		return fmt.Errorf("set subject status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func insertSubjectTx(ctx context.Context, q sqlx.ExtContext, name string, groupID, createdBy int64, status string) (models.Subject, error) {
	var sub models.Subject
	err := sqlx.GetContext(ctx, q, &sub, `
		INSERT INTO subjects (name, group_id, created_by, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		name, groupID, createdBy, status)
	if err != nil {
		return models.Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	return sub, nil
}
