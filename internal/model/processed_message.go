package model

import "time"

// ProcessedMessage records a mail message ID that has been fully handled.
// Push notifications are delivered at-least-once; exact duplicates are
// dropped here before reaching the state machine. Rows are purged after a
// TTL, which is safe because the terminal-state no-op in the state machine
// still catches late duplicates.
type ProcessedMessage struct {
	MessageID   string    `gorm:"primarykey" json:"message_id"`
	ProcessedAt time.Time `gorm:"not null;index" json:"processed_at"`
}
