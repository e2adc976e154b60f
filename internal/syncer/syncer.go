// Package syncer drains the mutation queue against the remote catalogue
// service.
//
// One drain cycle snapshots the pending queue, dispatches each entry in
// creation order, and settles it: confirmed entries are deleted, failed
// ones accumulate attempts until the retry ceiling promotes them to a
// terminal failed status. Entries whose payload references a provisional
// id with no mapping yet are skipped for the cycle and retried on the
// next one, attempts untouched.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/store"
)

// Remote is the slice of the backend API the drain loop dispatches to.
// *remote.Client satisfies it; tests substitute failure-injecting fakes.
type Remote interface {
	Insert(ctx context.Context, p *model.Product, idempotencyKey string) (*model.Product, error)
	Update(ctx context.Context, id string, p *model.Product) (*model.Product, error)
	Delete(ctx context.Context, id string) error
}

// Reasons a SyncAll call can decline to run.
const (
	ReasonOffline        = "offline"
	ReasonPaused         = "paused"
	ReasonAlreadyRunning = "already_running"
)

// Result summarizes one SyncAll invocation.
type Result struct {
	// Ran is false when the cycle refused to start; Reason says why.
	Ran    bool
	Reason string

	Synced  int
	Failed  int
	Skipped int
}

// Syncer is the sync orchestrator. It holds no durable state of its own:
// everything it needs to resume after a crash is reconstructed from the
// store's pending queue.
type Syncer struct {
	store  *store.Store
	ids    *identity.Reconciler
	remote Remote
	logger *log.Logger

	online  atomic.Bool
	paused  atomic.Bool
	syncing atomic.Bool

	events *subscribers
}

// New creates a Syncer. If logger is nil, a default logger writing to
// stderr is used. The syncer starts offline; the connectivity monitor (or
// the caller) flips it online via SetOnline.
func New(st *store.Store, ids *identity.Reconciler, rem Remote, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	return &Syncer{
		store:  st,
		ids:    ids,
		remote: rem,
		logger: logger,
		events: newSubscribers(),
	}
}

// Subscribe registers a lifecycle event listener. The returned channel is
// buffered; events are dropped, not blocked on, when the listener lags.
func (s *Syncer) Subscribe() (int, <-chan Event) {
	return s.events.add()
}

// Unsubscribe removes a listener and closes its channel.
func (s *Syncer) Unsubscribe(id int) {
	s.events.remove(id)
}

// SetOnline records the connectivity state observed by the monitor.
func (s *Syncer) SetOnline(online bool) {
	s.online.Store(online)
}

// Online reports the last observed connectivity state.
func (s *Syncer) Online() bool {
	return s.online.Load()
}

// Syncing reports whether a drain cycle is currently active.
func (s *Syncer) Syncing() bool {
	return s.syncing.Load()
}

// Paused reports whether the orchestrator is globally paused.
func (s *Syncer) Paused() bool {
	return s.paused.Load()
}

// Pause stops the orchestrator from starting new entries. An in-flight
// network call is not aborted; the active drain suspends at the next entry
// boundary and leaves the remainder pending.
func (s *Syncer) Pause() {
	s.paused.Store(true)
}

// Resume re-enables draining and emits sync_resumed.
func (s *Syncer) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.events.emit(Event{Type: EventSyncResumed})
	}
}

// SyncAll runs one drain cycle over a snapshot of the pending queue.
//
// Entries enqueued mid-drain wait for the next invocation, which keeps the
// cycle bounded and progress totals stable. Only one drain may be active
// at a time: a call arriving while one runs returns immediately with an
// already-running result instead of queuing a second drain.
func (s *Syncer) SyncAll(ctx context.Context) (Result, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return Result{Reason: ReasonAlreadyRunning}, nil
	}
	defer s.syncing.Store(false)

	if !s.online.Load() {
		return Result{Reason: ReasonOffline}, nil
	}
	if s.paused.Load() {
		return Result{Reason: ReasonPaused}, nil
	}

	s.events.emit(Event{Type: EventSyncStart})

	entries, err := s.store.ListPending(ctx)
	if err != nil {
		s.events.emit(Event{Type: EventSyncError, Message: err.Error()})
		return Result{Ran: true}, fmt.Errorf("failed to snapshot pending queue: %w", err)
	}

	res := Result{Ran: true}
	total := len(entries)

	for i, entry := range entries {
		if ctx.Err() != nil {
			s.events.emit(Event{Type: EventSyncError, Message: ctx.Err().Error()})
			s.logSyncCycle(res, "aborted")
			return res, ctx.Err()
		}
		if s.paused.Load() {
			s.logger.Printf("Drain paused with %d of %d entries remaining", total-i, total)
			s.events.emit(Event{Type: EventSyncPaused, Current: i, Total: total})
			s.logSyncCycle(res, "paused")
			return res, nil
		}

		switch outcome := s.processEntry(ctx, &entry); outcome {
		case outcomeSynced:
			res.Synced++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}

		s.events.emit(Event{Type: EventProgress, Current: i + 1, Total: total})
	}

	s.logger.Printf("Drain complete: synced=%d failed=%d skipped=%d", res.Synced, res.Failed, res.Skipped)
	s.events.emit(Event{
		Type:    EventSyncComplete,
		Synced:  res.Synced,
		Failed:  res.Failed,
		Skipped: res.Skipped,
	})
	s.logSyncCycle(res, "completed")

	return res, nil
}

type entryOutcome int

const (
	outcomeSynced entryOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// processEntry dispatches one queue entry. Failures are settled per entry
// so one bad mutation never blocks the rest of the queue.
func (s *Syncer) processEntry(ctx context.Context, entry *model.QueueEntry) entryOutcome {
	payload, err := entry.Payload()
	if err != nil {
		// Undecodable payloads can never succeed; burn attempts until the
		// ceiling parks them for manual inspection.
		return s.settleFailure(ctx, entry, err)
	}

	var dispatchErr error
	switch entry.Action {
	case model.ActionCreate:
		dispatchErr = s.dispatchCreate(ctx, entry, payload)
	case model.ActionUpdate:
		dispatchErr = s.dispatchUpdate(ctx, entry, payload)
	case model.ActionDelete:
		dispatchErr = s.dispatchDelete(ctx, entry, payload)
	default:
		dispatchErr = fmt.Errorf("unknown queue action %q", entry.Action)
	}

	if dispatchErr == nil {
		return outcomeSynced
	}
	if errors.Is(dispatchErr, identity.ErrUnresolved) {
		// Not a failure: the create this entry depends on hasn't drained
		// yet. Leave the entry pending with its attempt counter untouched.
		s.logger.Printf("Entry %d skipped: %v", entry.ID, dispatchErr)
		return outcomeSkipped
	}
	if store.IsStorage(dispatchErr) {
		// The remote call may have succeeded but local bookkeeping failed.
		// Leave the entry pending; the idempotency checks make the replay
		// safe on the next drain.
		s.logger.Printf("Entry %d deferred on storage error: %v", entry.ID, dispatchErr)
		return outcomeSkipped
	}
	return s.settleFailure(ctx, entry, dispatchErr)
}

// dispatchCreate pushes a create to the remote service, records the
// identity mapping, and swaps the provisional record for the canonical
// server one.
func (s *Syncer) dispatchCreate(ctx context.Context, entry *model.QueueEntry, payload *model.MutationPayload) error {
	if payload.Product == nil {
		return fmt.Errorf("create payload has no product")
	}
	tempID := payload.ProductID

	// A mapping recorded for this provisional id means the remote insert
	// already happened (crash after success, before the queue cleanup).
	// Re-dispatching would duplicate the record remotely, so finish the
	// local half only.
	if realID, ok, err := s.ids.Lookup(ctx, tempID); err != nil {
		return err
	} else if ok {
		s.logger.Printf("Entry %d: create for %s already reconciled to %s, finishing locally", entry.ID, tempID, realID)
		confirmed := payload.Product.Clone()
		confirmed.ID = realID
		return s.finishCreate(ctx, entry, tempID, confirmed)
	}

	serverProduct, err := s.remote.Insert(ctx, payload.Product, entry.IdempotencyKey)
	if err != nil {
		return err
	}

	if err := s.ids.RecordMapping(ctx, tempID, serverProduct.ID); err != nil {
		return err
	}
	s.logger.Printf("Reconciled %s -> %s", tempID, serverProduct.ID)

	return s.finishCreate(ctx, entry, tempID, serverProduct)
}

// finishCreate replaces the provisional record with the server-confirmed
// one and settles the queue entry. The mapping is already durable, so every
// step here is a safe replay.
func (s *Syncer) finishCreate(ctx context.Context, entry *model.QueueEntry, tempID string, confirmed *model.Product) error {
	now := time.Now().UTC()
	confirmed.SyncStatus = model.StatusSynced
	confirmed.Deleted = false
	if confirmed.CachedAt.IsZero() {
		confirmed.CachedAt = now
	}
	if confirmed.UpdatedAt.IsZero() {
		confirmed.UpdatedAt = now
	}

	if err := s.store.PutProduct(ctx, confirmed); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, tempID); err != nil {
		return err
	}
	return s.store.MarkSynced(ctx, entry.ID)
}

// dispatchUpdate pushes an update keyed by the resolved real id and merges
// the canonical server response over the local record.
func (s *Syncer) dispatchUpdate(ctx context.Context, entry *model.QueueEntry, payload *model.MutationPayload) error {
	if payload.Product == nil {
		return fmt.Errorf("update payload has no product")
	}

	realID, err := s.ids.Resolve(ctx, payload.ProductID)
	if err != nil {
		return err
	}

	outbound := payload.Product.Clone()
	outbound.ID = realID

	serverProduct, err := s.remote.Update(ctx, realID, outbound)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	serverProduct.SyncStatus = model.StatusSynced
	serverProduct.Deleted = false
	if serverProduct.CachedAt.IsZero() {
		serverProduct.CachedAt = now
	}
	if serverProduct.UpdatedAt.IsZero() {
		serverProduct.UpdatedAt = now
	}

	if err := s.store.PutProduct(ctx, serverProduct); err != nil {
		return err
	}
	// The local row may still sit under the provisional id when this
	// update was enqueued before its create drained in an earlier cycle.
	if identity.IsProvisional(payload.ProductID) && payload.ProductID != realID {
		if err := s.store.DeleteProduct(ctx, payload.ProductID); err != nil {
			return err
		}
	}
	return s.store.MarkSynced(ctx, entry.ID)
}

// dispatchDelete pushes a delete and removes the tombstoned local record
// for good.
func (s *Syncer) dispatchDelete(ctx context.Context, entry *model.QueueEntry, payload *model.MutationPayload) error {
	realID, err := s.ids.Resolve(ctx, payload.ProductID)
	if err != nil {
		return err
	}

	if err := s.remote.Delete(ctx, realID); err != nil {
		return err
	}

	if err := s.store.DeleteProduct(ctx, payload.ProductID); err != nil {
		return err
	}
	if realID != payload.ProductID {
		if err := s.store.DeleteProduct(ctx, realID); err != nil {
			return err
		}
	}
	return s.store.MarkSynced(ctx, entry.ID)
}

// settleFailure books one failed attempt. Promotion to the terminal failed
// status marks the record and writes a notification; the entry then waits
// for a manual retry.
func (s *Syncer) settleFailure(ctx context.Context, entry *model.QueueEntry, cause error) entryOutcome {
	s.logger.Printf("Entry %d (%s %s) failed: %v", entry.ID, entry.Action, entry.ProductID, cause)

	terminal, err := s.store.MarkFailed(ctx, entry.ID, cause)
	if err != nil {
		s.logger.Printf("Failed to record attempt for entry %d: %v", entry.ID, err)
		return outcomeFailed
	}

	if terminal {
		if err := s.store.SetProductSyncStatus(ctx, entry.ProductID, model.StatusFailed); err != nil {
			s.logger.Printf("Failed to flag product %s: %v", entry.ProductID, err)
		}
		msg := fmt.Sprintf("Sync of %s for %s gave up after %d attempts: %v", entry.Action, entry.ProductID, model.MaxAttempts, cause)
		if err := s.store.AddNotification(ctx, model.NotifySyncFailed, msg); err != nil {
			s.logger.Printf("Failed to write notification: %v", err)
		}
	}

	return outcomeFailed
}

// logSyncCycle appends the cycle outcome to the audit trail.
func (s *Syncer) logSyncCycle(res Result, status string) {
	details := fmt.Sprintf("synced=%d failed=%d skipped=%d", res.Synced, res.Failed, res.Skipped)
	// The audit row is observability state; a failure to write it never
	// fails the cycle.
	if err := s.store.AppendSyncLog(context.Background(), "drain", status, details); err != nil {
		s.logger.Printf("Failed to append sync log: %v", err)
	}
}
