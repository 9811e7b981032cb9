package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/internal/models"
	"log/slog"
)

// CreateGroupRequest files a pending group-creation request.
func (s *Storage) CreateGroupRequest(ctx context.Context, name, description string, userID int64) (models.GroupRequest, error) {
	var r models.GroupRequest
	err := s.db.GetContext(ctx, &r, `
		INSERT INTO group_requests (group_name, description, user_id)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING *`,
		name, description, userID)
	if err != nil {
		return models.GroupRequest{}, fmt.Errorf("insert group request: %w", err)
	}
	return r, nil
}

// ListPendingGroupRequests returns open group requests, newest first.
func (s *Storage) ListPendingGroupRequests(ctx context.Context) ([]models.GroupRequest, error) {
	var reqs []models.GroupRequest
	err := s.db.SelectContext(ctx, &reqs,
		`SELECT * FROM group_requests WHERE status = 'pending' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list group requests: %w", err)
	}
	return reqs, nil
}

// ApproveGroupRequest atomically creates the group, grants the requester the
// curator membership, and marks the request approved. A request that is not
// pending anymore yields ErrConflict and no side effects.
func (s *Storage) ApproveGroupRequest(ctx context.Context, requestID int64) (models.Group, models.User, error) {
	var (
		group     models.Group
		requester models.User
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		req, err := lockGroupRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		group, err = insertGroupTx(ctx, tx, req.GroupName, req.Description.String, req.UserID)
		if err != nil {
			return err
		}
		if err := insertMembershipTx(ctx, tx, req.UserID, group.ID, models.MembershipCurator); err != nil {
			return fmt.Errorf("insert curator membership: %w", err)
		}
		if err := setGroupRequestStatusTx(ctx, tx, requestID, models.StatusApproved); err != nil {
			return err
		}
		requester, err = getUserTx(ctx, tx, req.UserID)
		return err
	})
	if err != nil {
		logger.SVCRequests.ErrorContext(ctx, "group approval failed",
			slog.String("event", "requests.group.approve"),
			slog.Int64("request_id", requestID),
			slog.String("err", err.Error()),
		)
		return models.Group{}, models.User{}, err
	}
	logger.SVCRequests.InfoContext(ctx, "group request approved",
		slog.String("event", "requests.group.approve"),
		slog.Int64("request_id", requestID),
		slog.Int64("group_id", group.ID),
	)
	return group, requester, nil
}

// RejectGroupRequest marks a pending request rejected and returns it together
// with the requester for notification.
func (s *Storage) RejectGroupRequest(ctx context.Context, requestID int64) (models.GroupRequest, models.User, error) {
	var (
		req       models.GroupRequest
		requester models.User
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = lockGroupRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := setGroupRequestStatusTx(ctx, tx, requestID, models.StatusRejected); err != nil {
			return err
		}
		req.Status = models.StatusRejected
		requester, err = getUserTx(ctx, tx, req.UserID)
		return err
	})
	if err != nil {
		return models.GroupRequest{}, models.User{}, err
	}
	return req, requester, nil
}

// CreateSubjectRequest files a pending subject request.
func (s *Storage) CreateSubjectRequest(ctx context.Context, name string, groupID, userID int64) (models.SubjectRequest, error) {
	var r models.SubjectRequest
	err := s.db.GetContext(ctx, &r, `
		INSERT INTO subject_requests (subject_name, group_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING *`,
		name, groupID, userID)
	if err != nil {
		return models.SubjectRequest{}, fmt.Errorf("insert subject request: %w", err)
	}
	return r, nil
}

// ListPendingSubjectRequests returns open subject requests, newest first.
func (s *Storage) ListPendingSubjectRequests(ctx context.Context) ([]models.SubjectRequest, error) {
	var reqs []models.SubjectRequest
	err := s.db.SelectContext(ctx, &reqs,
		`SELECT * FROM subject_requests WHERE status = 'pending' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list subject requests: %w", err)
	}
	return reqs, nil
}

// GetSubjectRequest loads one subject request, used for role gating before
// resolution.
func (s *Storage) GetSubjectRequest(ctx context.Context, id int64) (models.SubjectRequest, error) {
	var req models.SubjectRequest
	err := s.db.GetContext(ctx, &req, `SELECT * FROM subject_requests WHERE id = $1`, id)
	if err != nil {
		return models.SubjectRequest{}, mapNotFound(err)
	}
	return req, nil
}

// ApproveSubjectRequest atomically creates the subject and marks the request
// approved.
func (s *Storage) ApproveSubjectRequest(ctx context.Context, requestID int64) (models.Subject, models.SubjectRequest, models.User, error) {
	var (
		subject   models.Subject
		req       models.SubjectRequest
		requester models.User
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = lockSubjectRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		subject, err = insertSubjectTx(ctx, tx, req.SubjectName, req.GroupID, req.UserID, models.StatusActive)
		if err != nil {
			return err
		}
		if err := setSubjectRequestStatusTx(ctx, tx, requestID, models.StatusApproved); err != nil {
			return err
		}
		req.Status = models.StatusApproved
		requester, err = getUserTx(ctx, tx, req.UserID)
		return err
	})
	if err != nil {
		logger.SVCRequests.ErrorContext(ctx, "subject approval failed",
			slog.String("event", "requests.subject.approve"),
			slog.Int64("request_id", requestID),
			slog.String("err", err.Error()),
		)
		return models.Subject{}, models.SubjectRequest{}, models.User{}, err
	}
	return subject, req, requester, nil
}

// RejectSubjectRequest marks a pending subject request rejected.
func (s *Storage) RejectSubjectRequest(ctx context.Context, requestID int64) (models.SubjectRequest, models.User, error) {
	var (
		req       models.SubjectRequest
		requester models.User
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = lockSubjectRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := setSubjectRequestStatusTx(ctx, tx, requestID, models.StatusRejected); err != nil {
			return err
		}
		req.Status = models.StatusRejected
		requester, err = getUserTx(ctx, tx, req.UserID)
		return err
	})
	if err != nil {
		return models.SubjectRequest{}, models.User{}, err
	}
	return req, requester, nil
}

func lockGroupRequestTx(ctx context.Context, tx *sqlx.Tx, id int64) (models.GroupRequest, error) {
	var req models.GroupRequest
	err := tx.GetContext(ctx, &req,
		`SELECT * FROM group_requests WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GroupRequest{}, ErrNotFound
		}
		return models.GroupRequest{}, fmt.Errorf("load group request: %w", err)
	}
	if req.Status != models.StatusPending {
		return models.GroupRequest{}, ErrConflict
	}
	return req, nil
}

func lockSubjectRequestTx(ctx context.Context, tx *sqlx.Tx, id int64) (models.SubjectRequest, error) {
	var req models.SubjectRequest
	err := tx.GetContext(ctx, &req,
		`SELECT * FROM subject_requests WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SubjectRequest{}, ErrNotFound
		}
		return models.SubjectRequest{}, fmt.Errorf("load subject request: %w", err)
	}
	if req.Status != models.StatusPending {
		return models.SubjectRequest{}, ErrConflict
	}
	return req, nil
}

func setGroupRequestStatusTx(ctx context.Context, tx *sqlx.Tx, id int64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE group_requests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update group request status: %w", err)
	}
	return nil
}

func setSubjectRequestStatusTx(ctx context.Context, tx *sqlx.Tx, id int64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE subject_requests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update subject request status: %w", err)
	}
	return nil
}
