package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goatkit/prodmanager/internal/database"
)

// ProductPluginRepository stores which extensions handle which products.
type ProductPluginRepository struct {
	db *sql.DB
}

// NewProductPluginRepository creates a new association repository.
func NewProductPluginRepository(db *sql.DB) *ProductPluginRepository {
	return &ProductPluginRepository{db: db}
}

// Link associates productID with systemName. Linking an existing pair does nothing.
func (r *ProductPluginRepository) Link(ctx context.Context, productID int64, systemName string) error {
	q := database.Conn(ctx, r.db)

	var n int
	err := q.QueryRowContext(ctx, database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM product_plugin WHERE prod_id = ? AND plugin_sys_name = ?
	`), productID, systemName).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check link %d/%s: %w", productID, systemName, err)
	}
	if n > 0 {
		return nil
	}

	_, err = q.ExecContext(ctx, database.ConvertPlaceholders(`
		INSERT INTO product_plugin (prod_id, plugin_sys_name) VALUES (?, ?)
	`), productID, systemName)
	if err != nil {
		return fmt.Errorf("failed to link %d/%s: %w", productID, systemName, err)
	}
	return nil
}

// Unlink removes the association between productID and systemName.
func (r *ProductPluginRepository) Unlink(ctx context.Context, productID int64, systemName string) error {
	query := database.ConvertPlaceholders(`
		DELETE FROM product_plugin WHERE prod_id = ? AND plugin_sys_name = ?
	`)
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, productID, systemName); err != nil {
		return fmt.Errorf("failed to unlink %d/%s: %w", productID, systemName, err)
	}
	return nil
}

// ListSystemNamesFor returns the distinct system names linked to productID.
func (r *ProductPluginRepository) ListSystemNamesFor(ctx context.Context, productID int64) ([]string, error) {
	query := database.ConvertPlaceholders(`
		SELECT DISTINCT plugin_sys_name
		FROM product_plugin
		WHERE prod_id = ?
		ORDER BY plugin_sys_name
	`)
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins for product %d: %w", productID, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UnlinkAllFor removes every association of systemName and returns how many
// rows were deleted.
func (r *ProductPluginRepository) UnlinkAllFor(ctx context.Context, systemName string) (int64, error) {
	query := database.ConvertPlaceholders(`
		DELETE FROM product_plugin WHERE plugin_sys_name = ?
	`)
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, systemName)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink products of %s: %w", systemName, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
