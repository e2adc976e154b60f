package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RecordMapping persists a provisional-to-real id mapping. A mapping is
// written the instant a create is confirmed and is never updated after;
// re-recording the same pair is a no-op so a crash between the remote
// insert and the queue cleanup can safely replay.
func (s *Store) RecordMapping(ctx context.Context, tempID, realID string) error {
	query := `
	INSERT INTO id_map (temp_id, real_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(temp_id) DO NOTHING
	`
	_, err := s.conn.ExecContext(ctx, query, tempID, realID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storageErr("record mapping", err)
	}
	return nil
}

// LookupMapping returns the real id for a provisional id, or ("", false)
// when the mapping has not been recorded yet.
func (s *Store) LookupMapping(ctx context.Context, tempID string) (string, bool, error) {
	var realID string
	err := s.conn.QueryRowContext(ctx, `SELECT real_id FROM id_map WHERE temp_id = ?`, tempID).Scan(&realID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("lookup mapping", err)
	}
	return realID, true, nil
}

// CountMappings returns the number of reconciled identifiers.
func (s *Store) CountMappings(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM id_map`).Scan(&count); err != nil {
		return 0, storageErr("count mappings", err)
	}
	return count, nil
}
