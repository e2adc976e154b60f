package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
)

// Enqueue appends a pending mutation for the given product. The payload is
// stored as JSON alongside an indexed product_id so the janitor and the
// local-drop path can find entries without parsing every payload.
// idempotencyKey should be set for create actions and empty otherwise.
func (s *Store) Enqueue(ctx context.Context, entityType string, action model.Action, payload *model.MutationPayload, idempotencyKey string) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode queue payload: %w", err)
	}

	query := `
	INSERT INTO sync_queue (entity_type, action, product_id, data, status, attempts, idempotency_key, created_at)
	VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		entityType,
		string(action),
		payload.ProductID,
		string(data),
		string(model.QueuePending),
		idempotencyKey,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, storageErr("enqueue", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("enqueue", err)
	}
	return id, nil
}

// ListPending returns all pending entries in creation order. The id
// tiebreak keeps same-timestamp entries in insertion order, which is what
// guarantees a create drains before the updates that reference it.
func (s *Store) ListPending(ctx context.Context) ([]model.QueueEntry, error) {
	query := queueSelect + `
	WHERE status = ?
	ORDER BY created_at ASC, id ASC
	`
	return s.queryQueue(ctx, query, string(model.QueuePending))
}

// ListFailed returns terminally failed entries, oldest first.
func (s *Store) ListFailed(ctx context.Context) ([]model.QueueEntry, error) {
	query := queueSelect + `
	WHERE status = ?
	ORDER BY created_at ASC, id ASC
	`
	return s.queryQueue(ctx, query, string(model.QueueFailed))
}

// ListQueueOlderThan returns entries created before the cutoff regardless
// of status. Used by the janitor.
func (s *Store) ListQueueOlderThan(ctx context.Context, cutoff time.Time) ([]model.QueueEntry, error) {
	query := queueSelect + `
	WHERE created_at < ?
	ORDER BY created_at ASC, id ASC
	`
	return s.queryQueue(ctx, query, cutoff.UTC().Format(time.RFC3339Nano))
}

// ListQueueForProduct returns all entries targeting the given product id.
func (s *Store) ListQueueForProduct(ctx context.Context, productID string) ([]model.QueueEntry, error) {
	query := queueSelect + `
	WHERE product_id = ?
	ORDER BY created_at ASC, id ASC
	`
	return s.queryQueue(ctx, query, productID)
}

// MarkSynced removes a confirmed entry. No-op when the entry is already
// gone: the janitor may have purged it mid-drain and that race is benign.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	return s.DeleteQueueEntry(ctx, id)
}

// MarkFailed records a failed attempt. Once attempts reaches the ceiling
// the entry is promoted to the terminal failed status and excluded from
// future drains until manually retried. Returns whether the entry is now
// terminal. No-op (false, nil) when the entry no longer exists.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	query := `
	UPDATE sync_queue
	SET attempts = attempts + 1,
	    last_error = ?,
	    status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
	WHERE id = ?
	`
	_, err := s.conn.ExecContext(ctx, query, msg, model.MaxAttempts, string(model.QueueFailed), id)
	if err != nil {
		return false, storageErr("mark failed", err)
	}

	var status string
	err = s.conn.QueryRowContext(ctx, `SELECT status FROM sync_queue WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr("mark failed", err)
	}
	return status == string(model.QueueFailed), nil
}

// RetryEntry is the manual escape hatch for terminal failures: the entry
// goes back to pending with a fresh attempt budget.
func (s *Store) RetryEntry(ctx context.Context, id int64) error {
	query := `
	UPDATE sync_queue
	SET status = ?, attempts = 0, last_error = NULL
	WHERE id = ?
	`
	res, err := s.conn.ExecContext(ctx, query, string(model.QueuePending), id)
	if err != nil {
		return storageErr("retry entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("retry entry", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteQueueEntry removes an entry by id. Idempotent.
func (s *Store) DeleteQueueEntry(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return storageErr("delete queue entry", err)
	}
	return nil
}

// DeleteQueueForProduct removes every entry targeting the given product.
// Used when a never-synced provisional record is deleted locally: its
// queued create has nothing to reach remotely.
func (s *Store) DeleteQueueForProduct(ctx context.Context, productID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE product_id = ?`, productID); err != nil {
		return storageErr("delete queue for product", err)
	}
	return nil
}

// CountQueue returns the number of entries with the given status, straight
// from the store with no caching layer.
func (s *Store) CountQueue(ctx context.Context, status model.QueueStatus) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, storageErr("count queue", err)
	}
	return count, nil
}

const queueSelect = `
	SELECT id, entity_type, action, product_id, data, status, attempts,
	       last_error, idempotency_key, created_at
	FROM sync_queue
`

func (s *Store) queryQueue(ctx context.Context, query string, args ...interface{}) ([]model.QueueEntry, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query queue", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var action, status, data string
		var lastError sql.NullString
		var createdAt string

		err := rows.Scan(
			&e.ID,
			&e.EntityType,
			&action,
			&e.ProductID,
			&data,
			&status,
			&e.Attempts,
			&lastError,
			&e.IdempotencyKey,
			&createdAt,
		)
		if err != nil {
			return nil, storageErr("query queue", err)
		}

		e.Action = model.Action(action)
		e.Status = model.QueueStatus(status)
		e.Data = json.RawMessage(data)
		if lastError.Valid {
			e.LastError = lastError.String
		}
		e.CreatedAt = parseTime(createdAt)

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query queue", err)
	}

	return entries, nil
}
