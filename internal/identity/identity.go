// Package identity reconciles locally generated provisional identifiers
// with server-assigned ones.
//
// While offline, every created record gets a provisional id with a
// distinguishing prefix that can never collide with remote-assigned ids.
// Once the record's create mutation is confirmed, the provisional id maps
// permanently to the server id, and any later reference to the provisional
// form (for example an update queued behind a still-unsynced create)
// resolves through that mapping.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stockpile-dev/stockpile/internal/store"
)

// provisionalPrefix tags locally generated ids. Remote ids are numeric or
// opaque server tokens; the prefix namespace is reserved for the client.
const provisionalPrefix = "local-"

// ErrUnresolved signals that a provisional id has no mapping yet. It is
// not a failure: the dependent operation must wait for the create that
// produces the mapping and be retried on a later drain.
var ErrUnresolved = errors.New("provisional id not yet reconciled")

// NewID generates a fresh provisional identifier.
func NewID() string {
	return provisionalPrefix + uuid.NewString()
}

// NewIdempotencyKey generates a client token attached to create payloads so
// a re-dispatched create cannot produce two remote records.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// IsProvisional reports whether id belongs to the provisional namespace.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// Reconciler translates identifiers against the store's identity map.
type Reconciler struct {
	store *store.Store
}

// New creates a Reconciler over the given store.
func New(st *store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// RecordMapping persists tempID -> realID. It must be called before the
// provisional record is removed from the local store, never after, so there
// is no window where neither form is resolvable.
func (r *Reconciler) RecordMapping(ctx context.Context, tempID, realID string) error {
	return r.store.RecordMapping(ctx, tempID, realID)
}

// Resolve returns the current real form of id. Non-provisional ids pass
// through unchanged. A provisional id without a mapping returns
// ErrUnresolved.
func (r *Reconciler) Resolve(ctx context.Context, id string) (string, error) {
	if !IsProvisional(id) {
		return id, nil
	}
	realID, ok, err := r.store.LookupMapping(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnresolved
	}
	return realID, nil
}

// Lookup reports whether tempID has been reconciled, and to what.
func (r *Reconciler) Lookup(ctx context.Context, tempID string) (string, bool, error) {
	return r.store.LookupMapping(ctx, tempID)
}
