package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/groupbot/core/logger"
	"github.com/m3rciful/groupbot/internal/models"
	"log/slog"
)

// GetGroupByID loads one group by primary key.
func (s *Storage) GetGroupByID(ctx context.Context, id int64) (models.Group, error) {
	var g models.Group
	err := s.db.GetContext(ctx, &g, `SELECT * FROM groups WHERE id = $1`, id)
	if err != nil {
		return models.Group{}, mapNotFound(err)
	}
	return g, nil
}

// GroupNameTaken reports whether an active group or a pending creation
// request already claims the name. Matching is case-sensitive and exact.
func (s *Storage) GroupNameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, `
		SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1)
		    OR EXISTS (SELECT 1 FROM group_requests WHERE group_name = $1 AND status = 'pending')`,
		name)
	if err != nil {
		return false, fmt.Errorf("group name lookup: %w", err)
	}
	return taken, nil
}

// ListActiveGroups returns every active group ordered by name.
func (s *Storage) ListActiveGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.SelectContext(ctx, &groups,
		`SELECT * FROM groups WHERE status = 'active' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// ListGroupsForUser returns active groups the user is a member of.
func (s *Storage) ListGroupsForUser(ctx context.Context, userID int64) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.SelectContext(ctx, &groups, `
		SELECT g.* FROM groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 AND g.status = 'active'
		ORDER BY g.name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return groups, nil
}

// CreateGroupWithCurator creates an active group and its curator membership
// for the creator in one transaction. Used by self-service group creation.
func (s *Storage) CreateGroupWithCurator(ctx context.Context, name, description string, createdBy int64) (models.Group, error) {
	var g models.Group
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		g, err = insertGroupTx(ctx, tx, name, description, createdBy)
		if err != nil {
			return err
		}
		return insertMembershipTx(ctx, tx, createdBy, g.ID, models.MembershipCurator)
	})
	if err != nil {
		logger.SVCGroups.ErrorContext(ctx, "group create failed",
			slog.String("event", "groups.create"),
			slog.String("err", err.Error()),
		)
		return models.Group{}, err
	}
	logger.SVCGroups.InfoContext(ctx, "group created",
		slog.String("event", "groups.create"),
		slog.Int64("group_id", g.ID),
	)
	return g, nil
}

// UpdateGroupDescription overwrites the description unconditionally.
func (s *Storage) UpdateGroupDescription(ctx context.Context, groupID int64, description string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups SET description = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		groupID, description)
	if err != nil {
		return fmt.Errorf("update group description: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMembership returns the membership row for (user, group).
func (s *Storage) GetMembership(ctx context.Context, userID, groupID int64) (models.Membership, error) {
	var m models.Membership
	err := s.db.GetContext(ctx, &m,
		`SELECT * FROM user_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	if err != nil {
		return models.Membership{}, mapNotFound(err)
	}
	return m, nil
}

// CreateMembership adds a user to a group with the given role.
func (s *Storage) CreateMembership(ctx context.Context, userID, groupID int64, role string) error {
	if err := insertMembershipTx(ctx, s.db, userID, groupID, role); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// ListMembers returns the group's members with user rows attached.
func (s *Storage) ListMembers(ctx context.Context, groupID int64) ([]models.Member, error) {
	var members []models.Member
	err := s.db.SelectContext(ctx, &members, `
		SELECT ug.user_id, ug.group_id, ug.role, ug.joined_at,
		       u.id AS "user.id", u.telegram_id AS "user.telegram_id",
		       u.username AS "user.username", u.first_name AS "user.first_name",
		       u.last_name AS "user.last_name", u.role AS "user.role",
		       u.notifications_enabled AS "user.notifications_enabled",
		       u.settings AS "user.settings",
		       u.created_at AS "user.created_at", u.updated_at AS "user.updated_at"
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = $1
		ORDER BY ug.joined_at`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// SetMembershipRole updates the per-group role.
func (s *Storage) SetMembershipRole(ctx context.Context, userID, groupID int64, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_groups SET role = $3 WHERE user_id = $1 AND group_id = $2`,
		userID, groupID, role)
	if err != nil {
		return fmt.Errorf("set membership role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCurators reports how many curators a group currently has.
func (s *Storage) CountCurators(ctx context.Context, groupID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM user_groups WHERE group_id = $1 AND role = 'curator'`, groupID)
	if err != nil {
		return 0, fmt.Errorf("count curators: %w", err)
	}
	return n, nil
}

func insertGroupTx(ctx context.Context, q sqlx.ExtContext, name, description string, createdBy int64) (models.Group, error) {
	var g models.Group
	err := sqlx.GetContext(ctx, q, &g, `
		INSERT INTO groups (name, description, status, created_by)
		VALUES ($1, NULLIF($2, ''), 'active', $3)
		RETURNING *`,
		name, description, createdBy)
	if err != nil {
		return models.Group{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func insertMembershipTx(ctx context.Context, q sqlx.ExtContext, userID, groupID int64, role string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		userID, groupID, role, time.Now())
	return err
}
