package store

import (
	"context"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
)

// AddNotification appends a user-facing event message.
func (s *Store) AddNotification(ctx context.Context, typ, message string) error {
	query := `INSERT INTO notifications (type, message, read, created_at) VALUES (?, ?, 0, ?)`
	_, err := s.conn.ExecContext(ctx, query, typ, message, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storageErr("add notification", err)
	}
	return nil
}

// ListNotifications returns notifications, newest first. When unreadOnly is
// set, read notifications are excluded.
func (s *Store) ListNotifications(ctx context.Context, unreadOnly bool) ([]model.Notification, error) {
	query := `
	SELECT id, type, message, read, created_at
	FROM notifications
	`
	if unreadOnly {
		query += ` WHERE read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list notifications", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var read int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &read, &createdAt); err != nil {
			return nil, storageErr("list notifications", err)
		}
		n.Read = read != 0
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list notifications", err)
	}

	return out, nil
}

// MarkNotificationRead flags a notification as read. Idempotent.
func (s *Store) MarkNotificationRead(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id); err != nil {
		return storageErr("mark notification read", err)
	}
	return nil
}

// ClearNotifications removes all notifications.
func (s *Store) ClearNotifications(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return storageErr("clear notifications", err)
	}
	return nil
}

// AppendSyncLog writes one row to the append-only sync audit trail.
func (s *Store) AppendSyncLog(ctx context.Context, action, status, details string) error {
	query := `INSERT INTO sync_log (action, status, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.conn.ExecContext(ctx, query, action, status, details, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storageErr("append sync log", err)
	}
	return nil
}

// ListSyncLog returns the most recent audit rows, newest first.
func (s *Store) ListSyncLog(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	query := `
	SELECT id, action, status, details, created_at
	FROM sync_log
	ORDER BY created_at DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list sync log", err)
	}
	defer rows.Close()

	var out []model.SyncLogEntry
	for rows.Next() {
		var e model.SyncLogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.Status, &e.Details, &createdAt); err != nil {
			return nil, storageErr("list sync log", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sync log", err)
	}

	return out, nil
}
