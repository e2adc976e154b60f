package model

import "time"

// Notification is a user-facing event message. Notifications are pure
// observability state: they never affect sync correctness.
type Notification struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification types written by the sync engine and janitor.
const (
	NotifySyncFailed = "sync_failed"
	NotifySyncPurged = "sync_purged"
)

// SyncLogEntry is one row of the append-only sync audit trail.
type SyncLogEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
