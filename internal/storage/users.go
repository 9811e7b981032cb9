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

// UpsertUser creates the user on first contact or refreshes the profile
// fields Telegram reported with this update.
func (s *Storage) UpsertUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
			last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
			updated_at = now()
		RETURNING *`,
		telegramID, username, firstName, lastName,
	)
	if err != nil {
		logger.SVCUsers.ErrorContext(ctx, "upsert failed",
			slog.String("event", "users.upsert"),
			slog.Int64("user_id", telegramID),
			slog.String("err", err.Error()),
		)
		return models.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetUserByTelegramID resolves the acting user from the chat identity.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return models.User{}, mapNotFound(err)
	}
	return u, nil
}

// GetUserByID loads a user row by primary key.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return models.User{}, mapNotFound(err)
	}
	return u, nil
}

// SetUserRole assigns the global role. Used only by the admin bootstrap.
func (s *Storage) SetUserRole(ctx context.Context, userID int64, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, userID, role)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetNotificationsEnabled flips the global notification toggle.
func (s *Storage) SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET notifications_enabled = $2, updated_at = now() WHERE id = $1`,
		userID, enabled)
	if err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGroupNotificationSetting stores the per-group opt-out in the settings map.
func (s *Storage) SetGroupNotificationSetting(ctx context.Context, userID, groupID int64, enabled bool) error {
	key := models.GroupNotificationsKey(groupID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET settings = jsonb_set(settings, ARRAY[$2], to_jsonb($3::boolean), true),
		    updated_at = now()
		WHERE id = $1`,
		userID, key, enabled)
	if err != nil {
		return fmt.Errorf("set group notification setting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func getUserTx(ctx context.Context, q sqlx.QueryerContext, id int64) (models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}
