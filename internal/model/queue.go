package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of mutation a queue entry represents.
type Action string

const (
	// ActionCreate inserts a new record on the remote service.
	ActionCreate Action = "create"
	// ActionUpdate overwrites an existing remote record.
	ActionUpdate Action = "update"
	// ActionDelete removes a remote record.
	ActionDelete Action = "delete"
)

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	// QueuePending means the entry is waiting for the next drain cycle.
	QueuePending QueueStatus = "pending"
	// QueueFailed means the entry exhausted its retry ceiling and needs
	// a manual retry to re-enter the drain.
	QueueFailed QueueStatus = "failed"
)

// MaxAttempts is the retry ceiling: once an entry has failed this many
// drains it is promoted to QueueFailed and excluded from future drains.
const MaxAttempts = 3

// MutationPayload is the JSON body stored in a queue entry's data column.
//
// ProductID is the target record's identifier and may be provisional; the
// orchestrator resolves it against the identity map before dispatching.
// Product carries the full optimistic local state for create and update
// actions and is nil for deletes.
type MutationPayload struct {
	ProductID string   `json:"product_id"`
	Product   *Product `json:"product,omitempty"`
}

// QueueEntry is one not-yet-confirmed write against the remote service.
type QueueEntry struct {
	ID             int64           `json:"id"`
	EntityType     string          `json:"entity_type"`
	Action         Action          `json:"action"`
	ProductID      string          `json:"product_id"`
	Data           json.RawMessage `json:"data"`
	Status         QueueStatus     `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payload decodes the entry's data column.
func (e *QueueEntry) Payload() (*MutationPayload, error) {
	var p MutationPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode queue payload: %w", err)
	}
	if p.ProductID == "" {
		return nil, fmt.Errorf("queue payload has no product_id")
	}
	return &p, nil
}
