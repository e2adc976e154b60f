// Package model defines the data structures shared by the stockpile local
// store, the sync engine, and the CLI.
package model

import (
	"fmt"
	"time"
)

// SyncStatus tracks where a locally stored record stands relative to the
// remote catalogue service.
type SyncStatus string

const (
	// StatusSynced means the record matches the last known server state.
	StatusSynced SyncStatus = "synced"
	// StatusPending means a local change has not yet reached the server.
	StatusPending SyncStatus = "pending"
	// StatusPendingDelete means a local delete has not yet reached the server.
	StatusPendingDelete SyncStatus = "pending_delete"
	// StatusFailed means the record's queued mutation exhausted its retries.
	StatusFailed SyncStatus = "failed"
)

// Product is a catalogue entry held in the local store.
//
// The ID is either a server-assigned identifier or a provisional
// "local-" prefixed identifier generated while offline. Records carrying a
// provisional ID have never been acknowledged by the remote service.
type Product struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SKU        string     `json:"sku,omitempty"`
	Category   string     `json:"category,omitempty"`
	Quantity   int        `json:"quantity"`
	PriceCents int64      `json:"price_cents"`
	Notes      string     `json:"notes,omitempty"`
	SyncStatus SyncStatus `json:"sync_status"`
	Deleted    bool       `json:"deleted,omitempty"`
	CachedAt   time.Time  `json:"cached_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks that the product has valid field values.
func (p *Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(p.Name))
	}
	if p.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative (got %d)", p.Quantity)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("price_cents must not be negative (got %d)", p.PriceCents)
	}
	switch p.SyncStatus {
	case StatusSynced, StatusPending, StatusPendingDelete, StatusFailed:
	default:
		return fmt.Errorf("invalid sync_status %q", p.SyncStatus)
	}
	return nil
}

// Clone returns a deep copy of the product.
func (p *Product) Clone() *Product {
	c := *p
	return &c
}
