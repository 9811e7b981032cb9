package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Global user roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Per-group membership roles.
const (
	MembershipMember  = "member"
	MembershipCurator = "curator"
)

// Entity statuses shared by groups, subjects, and tasks.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Settings is a free-form per-user settings map stored as JSONB.
// The only key in use today is the per-group notification opt-out.
type Settings map[string]interface{}

// Value implements driver.Valuer for JSONB storage.
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB storage.
func (s *Settings) Scan(src interface{}) error {
	if src == nil {
		*s = Settings{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("settings: unsupported scan type %T", src)
	}
	if len(data) == 0 {
		*s = Settings{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// GroupNotificationsKey names the settings entry holding the per-group
// notification opt-out for the given group.
func GroupNotificationsKey(groupID int64) string {
	return fmt.Sprintf("group_%d_notifications", groupID)
}

// User is a Telegram identity known to the bot. Created on first contact,
// never deleted.
type User struct {
	ID                   int64          `db:"id"`
	TelegramID           int64          `db:"telegram_id"`
	Username             sql.NullString `db:"username"`
	FirstName            sql.NullString `db:"first_name"`
	LastName             sql.NullString `db:"last_name"`
	Role                 string         `db:"role"`
	NotificationsEnabled bool           `db:"notifications_enabled"`
	Settings             Settings       `db:"settings"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

// IsAdmin reports whether the user holds the global admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName returns the best human-readable name available.
func (u *User) DisplayName() string {
	if u.FirstName.Valid && u.FirstName.String != "" {
		return u.FirstName.String
	}
	if u.Username.Valid && u.Username.String != "" {
		return "@" + u.Username.String
	}
	return fmt.Sprintf("user %d", u.TelegramID)
}

// GroupNotificationsEnabled reports whether reminders and broadcasts for the
// given group may be sent to this user. The per-group key only suppresses
// delivery when it is explicitly set to false.
func (u *User) GroupNotificationsEnabled(groupID int64) bool {
	if !u.NotificationsEnabled {
		return false
	}
	v, ok := u.Settings[GroupNotificationsKey(groupID)]
	if !ok {
		return true
	}
	enabled, isBool := v.(bool)
	if !isBool {
		return true
	}
	return enabled
}

// Group is a coordination space owned by its curators.
type Group struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Status      string         `db:"status"`
	CreatedBy   int64          `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Membership ties a user to a group with a per-group role.
type Membership struct {
	UserID   int64     `db:"user_id"`
	GroupID  int64     `db:"group_id"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

// IsCurator reports whether the membership grants curator permissions.
func (m *Membership) IsCurator() bool {
	return m.Role == MembershipCurator
}

// Member is a membership joined with its user row, used for member lists and
// notification fan-out.
type Member struct {
	Membership
	User User `db:"user"`
}

// Subject groups tasks inside one group.
type Subject struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	GroupID   int64     `db:"group_id"`
	CreatedBy int64     `db:"created_by"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Task is an assignment with a deadline. ForGroup tasks are visible to every
// member; personal tasks only to their creator.
type Task struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	SubjectID   int64          `db:"subject_id"`
	GroupID     int64          `db:"group_id"`
	Deadline    time.Time      `db:"deadline"`
	CreatedBy   int64          `db:"created_by"`
	ForGroup    bool           `db:"for_group"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// TaskWithSubject carries the subject name alongside the task for rendering.
type TaskWithSubject struct {
	Task
	SubjectName string `db:"subject_name"`
}

// TaskCompletion records one user's completion of one task.
type TaskCompletion struct {
	UserID      int64        `db:"user_id"`
	TaskID      int64        `db:"task_id"`
	Completed   bool         `db:"completed"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// TaskStat aggregates completion counts for one group task.
type TaskStat struct {
	TaskID    int64  `db:"task_id"`
	Title     string `db:"title"`
	Completed int    `db:"completed"`
}

// GroupRequest is a pending proposal to create a group. Terminal once
// approved or rejected.
type GroupRequest struct {
	ID          int64          `db:"id"`
	GroupName   string         `db:"group_name"`
	Description sql.NullString `db:"description"`
	UserID      int64          `db:"user_id"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// SubjectRequest is a pending proposal to add a subject to a group.
type SubjectRequest struct {
	ID          int64     `db:"id"`
	SubjectName string    `db:"subject_name"`
	GroupID     int64     `db:"group_id"`
	UserID      int64     `db:"user_id"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// NullString builds a sql.NullString that is NULL for empty input.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
