// Package catalog is the UI-facing surface of the local catalogue: CRUD
// calls that commit optimistically to the local store, enqueue the matching
// remote mutation, and return immediately.
//
// Every mutation feels instantaneous because the remote half happens later,
// on a drain. The record write always precedes the queue write; if the
// queue write fails the record stays pending and a later reconciliation
// pass can re-enqueue it, which is safer than trying to roll back across
// collections.
package catalog

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/store"
)

// entityProduct is the entity_type recorded on product queue entries.
const entityProduct = "product"

// Service exposes catalogue operations to the CLI and importer.
type Service struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Service. If logger is nil, a default logger writing to
// stderr is used.
func New(st *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[catalog] ", log.LstdFlags)
	}
	return &Service{store: st, logger: logger}
}

// Create commits a new product locally under a provisional id and queues
// its remote insert. The returned product carries the provisional id until
// a drain reconciles it.
func (s *Service) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	now := time.Now().UTC()

	rec := p.Clone()
	rec.ID = identity.NewID()
	rec.SyncStatus = model.StatusPending
	rec.Deleted = false
	rec.CachedAt = now
	rec.UpdatedAt = now

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid product: %w", err)
	}

	if err := s.store.PutProduct(ctx, rec); err != nil {
		return nil, err
	}

	payload := &model.MutationPayload{ProductID: rec.ID, Product: rec}
	if _, err := s.store.Enqueue(ctx, entityProduct, model.ActionCreate, payload, identity.NewIdempotencyKey()); err != nil {
		return nil, err
	}

	s.logger.Printf("Created %s (%s) locally", rec.ID, rec.Name)
	return rec, nil
}

// Update merges changes into the local record and queues the remote
// update. The target may still carry a provisional id; the drain resolves
// it once the create has gone through.
func (s *Service) Update(ctx context.Context, p *model.Product) (*model.Product, error) {
	existing, err := s.store.GetProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	rec := p.Clone()
	rec.SyncStatus = model.StatusPending
	rec.Deleted = false
	rec.CachedAt = existing.CachedAt
	rec.UpdatedAt = time.Now().UTC()

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid product: %w", err)
	}

	if err := s.store.PutProduct(ctx, rec); err != nil {
		return nil, err
	}

	payload := &model.MutationPayload{ProductID: rec.ID, Product: rec}
	if _, err := s.store.Enqueue(ctx, entityProduct, model.ActionUpdate, payload, ""); err != nil {
		return nil, err
	}

	s.logger.Printf("Updated %s (%s) locally", rec.ID, rec.Name)
	return rec, nil
}

// Delete removes a product. A record that has never been acknowledged by
// the server is dropped outright together with its queued mutations, since
// there is nothing remote to delete. Anything else is tombstoned and a
// remote delete is queued; the tombstone keeps the intent durable until
// the drain confirms it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return err
	}

	if identity.IsProvisional(id) {
		_, mapped, err := s.store.LookupMapping(ctx, id)
		if err != nil {
			return err
		}
		if !mapped {
			if err := s.store.DeleteQueueForProduct(ctx, id); err != nil {
				return err
			}
			if err := s.store.DeleteProduct(ctx, id); err != nil {
				return err
			}
			s.logger.Printf("Dropped never-synced %s locally", id)
			return nil
		}
	}

	if err := s.store.MarkProductDeleted(ctx, id); err != nil {
		return err
	}

	payload := &model.MutationPayload{ProductID: id}
	if _, err := s.store.Enqueue(ctx, entityProduct, model.ActionDelete, payload, ""); err != nil {
		return err
	}

	s.logger.Printf("Deleted %s locally, remote delete queued", id)
	return nil
}

// Get returns a single visible product.
func (s *Service) Get(ctx context.Context, id string) (*model.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// List returns visible products matching the filter.
func (s *Service) List(ctx context.Context, filter store.ProductFilter) ([]*model.Product, error) {
	return s.store.ListProducts(ctx, filter)
}

// PendingCount returns the number of queued mutations waiting to sync.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountQueue(ctx, model.QueuePending)
}

// FailedCount returns the number of terminally failed mutations.
func (s *Service) FailedCount(ctx context.Context) (int, error) {
	return s.store.CountQueue(ctx, model.QueueFailed)
}

// PendingEntries returns the queued mutations in drain order.
func (s *Service) PendingEntries(ctx context.Context) ([]model.QueueEntry, error) {
	return s.store.ListPending(ctx)
}

// FailedEntries returns the terminally failed mutations.
func (s *Service) FailedEntries(ctx context.Context) ([]model.QueueEntry, error) {
	return s.store.ListFailed(ctx)
}

// RetryFailed puts a terminally failed entry back into the pending queue
// with a fresh attempt budget, and moves its record back to pending.
func (s *Service) RetryFailed(ctx context.Context, queueID int64) error {
	if err := s.store.RetryEntry(ctx, queueID); err != nil {
		return err
	}

	entries, err := s.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == queueID {
			if err := s.store.SetProductSyncStatus(ctx, e.ProductID, model.StatusPending); err != nil {
				return err
			}
			break
		}
	}

	s.logger.Printf("Entry %d re-queued for sync", queueID)
	return nil
}

// Notifications returns the notification feed, newest first.
func (s *Service) Notifications(ctx context.Context, unreadOnly bool) ([]model.Notification, error) {
	return s.store.ListNotifications(ctx, unreadOnly)
}

// MarkNotificationRead flags one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id int64) error {
	return s.store.MarkNotificationRead(ctx, id)
}

// ClearNotifications empties the notification feed.
func (s *Service) ClearNotifications(ctx context.Context) error {
	return s.store.ClearNotifications(ctx)
}

// SyncLog returns the most recent audit rows.
func (s *Service) SyncLog(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	return s.store.ListSyncLog(ctx, limit)
}
