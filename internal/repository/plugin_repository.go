package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/models"
)

// PluginRepository handles the plugins table that records installed extensions.
// Statements run inside the transaction carried by ctx when there is one.
type PluginRepository struct {
	db *sql.DB
}

// NewPluginRepository creates a new plugin repository.
func NewPluginRepository(db *sql.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

// Add records an installed extension.
func (r *PluginRepository) Add(ctx context.Context, name, systemName string) error {
	query := database.ConvertPlaceholders(`
		INSERT INTO plugins (plugin_name, plugin_sys_name)
		VALUES (?, ?)
	`)
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, name, systemName); err != nil {
		return fmt.Errorf("failed to add plugin %s: %w", systemName, err)
	}
	return nil
}

// Remove deletes the row of an installed extension. Missing rows are not an error.
func (r *PluginRepository) Remove(ctx context.Context, systemName string) error {
	query := database.ConvertPlaceholders(`
		DELETE FROM plugins WHERE plugin_sys_name = ?
	`)
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, systemName); err != nil {
		return fmt.Errorf("failed to remove plugin %s: %w", systemName, err)
	}
	return nil
}

// Exists reports whether systemName has an installed row.
func (r *PluginRepository) Exists(ctx context.Context, systemName string) (bool, error) {
	query := database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM plugins WHERE plugin_sys_name = ?
	`)
	var n int
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, systemName).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check plugin %s: %w", systemName, err)
	}
	return n > 0, nil
}

// List returns every installed extension ordered by system name.
func (r *PluginRepository) List(ctx context.Context) ([]models.InstalledPlugin, error) {
	query := `
		SELECT plugin_name, plugin_sys_name
		FROM plugins
		ORDER BY plugin_sys_name
	`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	var plugins []models.InstalledPlugin
	for rows.Next() {
		var p models.InstalledPlugin
		if err := rows.Scan(&p.Name, &p.SystemName); err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}
