package model

import (
	"strings"
	"time"
)

// User is keyed by normalized email address. The active pointer fields are
// the routing source of truth for inbound mail: they are written atomically
// with attempt creation and conditionally cleared when the referenced attempt
// reaches a terminal status.
type User struct {
	Email            string    `gorm:"primarykey" json:"email"`
	DisplayName      *string   `json:"display_name,omitempty"`
	ActiveScenarioID *string   `json:"active_scenario_id"`
	ActiveAttemptID  *string   `json:"active_attempt_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FirstName returns the first word of the display name, used for
// {student_name} personalisation in starter emails.
func (u *User) FirstName() string {
	if u == nil || u.DisplayName == nil {
		return ""
	}
	fields := strings.Fields(*u.DisplayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeEmail lowercases and trims an address so that the same mailbox
// always maps to the same user document.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
