package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
)

// PutProduct inserts or updates a product. Re-putting an identical record
// is a no-op change, not an error; recovery paths rely on replays being
// safe.
func (s *Store) PutProduct(ctx context.Context, p *model.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}

	query := `
	INSERT INTO products (
		id, name, sku, category, quantity, price_cents, notes,
		sync_status, deleted, cached_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		sku = excluded.sku,
		category = excluded.category,
		quantity = excluded.quantity,
		price_cents = excluded.price_cents,
		notes = excluded.notes,
		sync_status = excluded.sync_status,
		deleted = excluded.deleted,
		cached_at = excluded.cached_at,
		updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.SKU,
		p.Category,
		p.Quantity,
		p.PriceCents,
		p.Notes,
		string(p.SyncStatus),
		boolToInt(p.Deleted),
		p.CachedAt.Format(time.RFC3339Nano),
		p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("put product", err)
	}

	return nil
}

// GetProduct retrieves a single visible product by id. Tombstoned records
// are treated as absent and return ErrNotFound.
func (s *Store) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	query := `
	SELECT id, name, sku, category, quantity, price_cents, notes,
	       sync_status, deleted, cached_at, updated_at
	FROM products
	WHERE id = ? AND deleted = 0
	`

	row := s.conn.QueryRowContext(ctx, query, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	return p, nil
}

// ProductFilter configures ListProducts.
type ProductFilter struct {
	// Category filters by category (empty = all categories).
	Category string
	// SyncStatus filters by sync status (empty = all statuses).
	SyncStatus model.SyncStatus
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ListProducts retrieves visible products matching the filter, ordered by
// name. Tombstoned records are always excluded.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]*model.Product, error) {
	conditions := []string{"deleted = 0"}
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, string(filter.SyncStatus))
	}

	query := `
	SELECT id, name, sku, category, quantity, price_cents, notes,
	       sync_status, deleted, cached_at, updated_at
	FROM products
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY name ASC, id ASC
	`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}

	return products, nil
}

// MarkProductDeleted tombstones a record and moves it to pending_delete.
// The row is retained until the matching queue entry completes so the
// delete intent survives a crash or reload.
func (s *Store) MarkProductDeleted(ctx context.Context, id string) error {
	query := `
	UPDATE products
	SET deleted = 1, sync_status = ?, updated_at = ?
	WHERE id = ?
	`
	_, err := s.conn.ExecContext(ctx, query,
		string(model.StatusPendingDelete),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return storageErr("mark product deleted", err)
	}
	return nil
}

// SetProductSyncStatus updates only the sync_status column. No-op when the
// record doesn't exist.
func (s *Store) SetProductSyncStatus(ctx context.Context, id string, status model.SyncStatus) error {
	query := `UPDATE products SET sync_status = ? WHERE id = ?`
	if _, err := s.conn.ExecContext(ctx, query, string(status), id); err != nil {
		return storageErr("set product status", err)
	}
	return nil
}

// DeleteProduct permanently removes a record, tombstoned or not. Returns
// nil when the record doesn't exist (idempotent).
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return storageErr("delete product", err)
	}
	return nil
}

// CountProducts returns the number of visible products.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE deleted = 0`).Scan(&count)
	if err != nil {
		return 0, storageErr("count products", err)
	}
	return count, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	var status string
	var deleted int
	var cachedAt, updatedAt string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Category,
		&p.Quantity,
		&p.PriceCents,
		&p.Notes,
		&status,
		&deleted,
		&cachedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SyncStatus = model.SyncStatus(status)
	p.Deleted = deleted != 0
	p.CachedAt = parseTime(cachedAt)
	p.UpdatedAt = parseTime(updatedAt)

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
