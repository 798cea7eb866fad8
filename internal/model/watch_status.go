package model

import "time"

const (
	WatchRenewing  = "renewing"
	WatchCompleted = "completed"
)

// WatchStatus is a singleton row coordinating renewal of the Gmail push
// subscription across concurrently running instances. The renewal protocol
// is a two-phase claim: a transaction flips Status to "renewing" (only one
// caller wins), the winner calls the external watch API, then confirms with
// "completed" and the new expiry. A crashed winner's claim goes stale after
// the claim timeout.
type WatchStatus struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	ClaimedAt *time.Time `json:"claimed_at"`
	RenewedAt *time.Time `json:"renewed_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
