// Package inventory provides InventoryStore adapters.
package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// PostgresStore reads and flags rows of an inventory table with columns
// id, name, category, expiry_date and is_spoiled.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, tableName: table}
}

func (s *PostgresStore) ListActiveItems(ctx context.Context) ([]*domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, category, expiry_date FROM "+s.tableName+" WHERE is_spoiled = FALSE ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("inventory: list active: %w", err)
	}
	defer rows.Close()

	var items []*domain.InventoryItem
	for rows.Next() {
		var (
			it       domain.InventoryItem
			id       int64
			category string
			expiry   sql.NullTime
		)
		if err := rows.Scan(&id, &it.Name, &category, &expiry); err != nil {
			return nil, fmt.Errorf("inventory: scan: %w", err)
		}
		it.ID = domain.ItemID(id)
		it.Category = domain.Category(category)
		if expiry.Valid {
			t := expiry.Time
			it.ExpiryAt = &t
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: rows: %w", err)
	}
	return items, nil
}

// MarkSpoiled is one conditional UPDATE so the read-check-write is atomic per
// row. A concurrent manual un-spoil after this write is not detected.
func (s *PostgresStore) MarkSpoiled(ctx context.Context, id domain.ItemID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+s.tableName+" SET is_spoiled = TRUE WHERE id = $1 AND is_spoiled = FALSE", int64(id))
	if err != nil {
		return false, fmt.Errorf("inventory: mark spoiled %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inventory: mark spoiled %d: %w", id, err)
	}
	return n == 1, nil
}

var _ ports.InventoryStore = (*PostgresStore)(nil)
