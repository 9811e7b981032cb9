package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/groupbot/core/telegram/helpers"
	"github.com/m3rciful/groupbot/internal/models"
)

// Static replies.
const (
	MsgChooseGroup        = "Choose a group:"
	MsgBrowseGroups       = "Groups you can join:"
	MsgNoJoinableGroups   = "No groups to join right now."
	MsgAdminPanel         = "Admin panel:"
	MsgNotAdmin           = "This section is for administrators only."
	MsgNotCurator         = "Only group curators can do that."
	MsgNotMember          = "You are not a member of this group."
	MsgGroupNotFound      = "Group not found."
	MsgTaskNotFound       = "Task not found."
	MsgSubjectNotFound    = "Subject not found."
	MsgRequestNotFound    = "Request not found."
	MsgRequestResolved    = "This request was already resolved."
	MsgAlreadyMember      = "You are already a member of this group."
	MsgJoined             = "You joined the group."
	MsgAlreadyCompleted   = "Already completed."
	MsgTaskCompleted      = "Task marked as completed. 🎉"
	MsgNoTasks            = "No tasks here yet."
	MsgNothingToComplete  = "Nothing left to complete. 🎉"
	MsgNoSubjects         = "No subjects yet. Create one first."
	MsgNoPendingRequests  = "No pending requests."
	MsgSomethingWentWrong = "Something went wrong, please try again."
	MsgFlowCancelled      = "Cancelled."
	MsgSubjectDeleted     = "Subject removed. Existing tasks keep it."
	MsgSoleCuratorBlocked = "Cannot demote the only curator of the group."

	// Flow prompts.
	PromptGroupName        = "Enter a name for the new group:"
	PromptGroupNameTaken   = "That name is already taken, try another:"
	PromptGroupDescription = "Enter a description (or \"-\" to skip):"
	PromptSubjectName      = "Enter the subject name:"
	PromptTaskTitle        = "Enter the task title:"
	PromptTaskDescription  = "Enter the task description (or \"-\" to skip):"
	PromptTaskDeadline     = "Enter the deadline as DD.MM.YYYY:"
	PromptBadDeadline      = "That doesn't look like a valid future date. Use DD.MM.YYYY:"
	PromptNotification     = "Enter the message to send to the group:"
	PromptDescription      = "Enter the new group description:"
)

// GroupMenuText renders the group hub header.
func GroupMenuText(g models.Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 %s\n", g.Name)
	if g.Description.Valid && g.Description.String != "" {
		fmt.Fprintf(&b, "%s\n", g.Description.String)
	}
	return b.String()
}

// TaskLabel renders a one-line task button label with a deadline badge.
func TaskLabel(t models.TaskWithSubject, now time.Time) string {
	return fmt.Sprintf("%s %s — %s", deadlineBadge(t.Deadline, now), t.Title, t.SubjectName)
}

// TaskDetailsText renders the full task card.
func TaskDetailsText(t models.TaskWithSubject, completed bool, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", deadlineBadge(t.Deadline, now), t.Title)
	fmt.Fprintf(&b, "Subject: %s\n", t.SubjectName)
	if t.Description.Valid && t.Description.String != "" {
		fmt.Fprintf(&b, "%s\n", t.Description.String)
	}
	fmt.Fprintf(&b, "Deadline: %s (%s)\n", helpers.FormatDeadline(t.Deadline), daysLeftText(t.Deadline, now))
	if t.ForGroup {
		b.WriteString("Audience: whole group\n")
	} else {
		b.WriteString("Audience: personal\n")
	}
	if completed {
		b.WriteString("Status: ✅ completed by you\n")
	} else {
		b.WriteString("Status: ⏳ not completed\n")
	}
	return b.String()
}

// TaskCreatedText confirms a finished task flow, summarizing deadline and
// audience.
func TaskCreatedText(title string, deadline time.Time, forGroup, pending bool) string {
	audience := "just you"
	if forGroup {
		audience = "the whole group"
	}
	text := fmt.Sprintf("Task %q created for %s, due %s.", title, audience, helpers.FormatDeadline(deadline))
	if pending {
		text += " It awaits curator approval."
	}
	return text
}

// SettingsText renders the settings header.
func SettingsText(g models.Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚙️ Settings — %s\n", g.Name)
	if g.Description.Valid && g.Description.String != "" {
		fmt.Fprintf(&b, "Description: %s\n", g.Description.String)
	}
	return b.String()
}

// MembersText renders the member list with role badges.
func MembersText(members []models.Member) string {
	var b strings.Builder
	b.WriteString("👥 Members:\n")
	for _, m := range members {
		fmt.Fprintf(&b, "%s %s\n", roleBadge(m.Role), m.User.DisplayName())
	}
	return b.String()
}

// StatsText renders per-task completion counts.
func StatsText(stats []models.TaskStat, memberCount int) string {
	if len(stats) == 0 {
		return "No group tasks to report on."
	}
	var b strings.Builder
	b.WriteString("📊 Completion:\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "• %s — %d/%d\n", s.Title, s.Completed, memberCount)
	}
	return b.String()
}

// BroadcastReport summarizes a curator broadcast fan-out.
func BroadcastReport(sent, failed int) string {
	if failed == 0 {
		return fmt.Sprintf("Sent to %d members.", sent)
	}
	return fmt.Sprintf("Sent to %d members, %d failed.", sent, failed)
}

// ReminderText is one deadline reminder message.
func ReminderText(t models.TaskWithSubject, urgent bool, now time.Time) string {
	head := "📅 Deadline this week"
	if urgent {
		head = "⏰ Deadline soon"
	}
	return fmt.Sprintf("%s: %q (%s) is due %s — %s.",
		head, t.Title, t.SubjectName, helpers.FormatDeadline(t.Deadline), daysLeftText(t.Deadline, now))
}

func deadlineBadge(deadline time.Time, now time.Time) string {
	days := helpers.DaysLeft(deadline, now)
	switch {
	case days < 0:
		return "⚫"
	case days <= 1:
		return "🔴"
	case days <= 3:
		return "🟠"
	default:
		return "🟢"
	}
}

func daysLeftText(deadline, now time.Time) string {
	days := helpers.DaysLeft(deadline, now)
	switch {
	case days < 0:
		return "overdue"
	case days == 0:
		return "today"
	case days == 1:
		return "in 1 day"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
