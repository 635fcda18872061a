package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Saisurya114/wardrobe-backend/internal/model"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so catalog reads and
// writes can run inside the confirmation transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = `id, image_path, image_url, category, type, subtype,
       color_name, color_rgb, color_group, fit, formality, season,
       type_confidence, color_confidence, created_at, updated_at`

// CreateItem inserts a confirmed garment into the catalog.
func CreateItem(ctx context.Context, q Querier, item *model.InventoryItem) error {
	rgb, err := json.Marshal(item.Color.RGB)
	if err != nil {
		return fmt.Errorf("encoding color rgb: %w", err)
	}
	season, err := json.Marshal(item.Season)
	if err != nil {
		return fmt.Errorf("encoding season: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO inventory_items
		 (id, image_path, image_url, category, type, subtype,
		  color_name, color_rgb, color_group, fit, formality, season,
		  type_confidence, color_confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ImagePath, nullString(item.ImageURL),
		item.Category, item.Type, item.Subtype,
		item.Color.Name, string(rgb), item.Color.Group,
		item.Fit, item.Formality, string(season),
		item.TypeConfidence, item.ColorConfidence,
	)
	if err != nil {
		return fmt.Errorf("creating inventory item: %w", err)
	}
	return nil
}

// GetItem returns a catalog item by ID, or nil if unknown.
func GetItem(ctx context.Context, q Querier, id string) (*model.InventoryItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id)

	item, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory item: %w", err)
	}
	return item, nil
}

// ListItems returns catalog items ordered by ID with offset/limit
// pagination.
func ListItems(ctx context.Context, q Querier, offset, limit int) ([]model.InventoryItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing inventory items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListItemIDs returns all catalog IDs with the given prefix. The
// identifier allocator reads these inside the confirmation transaction.
func ListItemIDs(ctx context.Context, q Querier, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM inventory_items WHERE id LIKE ? ESCAPE '\'`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("listing inventory ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning inventory id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateItem applies a whitelisted partial update to a catalog item.
// ID and image_path are frozen after confirmation. Returns the updated
// item, or nil if the ID is unknown.
func UpdateItem(ctx context.Context, db *sql.DB, id string, update model.InventoryUpdate) (*model.InventoryItem, error) {
	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	update.Apply(item)

	rgb, err := json.Marshal(item.Color.RGB)
	if err != nil {
		return nil, fmt.Errorf("encoding color rgb: %w", err)
	}
	season, err := json.Marshal(item.Season)
	if err != nil {
		return nil, fmt.Errorf("encoding season: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE inventory_items
		 SET category = ?, type = ?, subtype = ?,
		     color_name = ?, color_rgb = ?, color_group = ?,
		     fit = ?, formality = ?, season = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		item.Category, item.Type, item.Subtype,
		item.Color.Name, string(rgb), item.Color.Group,
		item.Fit, item.Formality, string(season), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating inventory item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// DeleteItem removes a catalog row. Returns false if the ID was unknown.
// The caller is responsible for deleting the backing image.
func DeleteItem(ctx context.Context, db *sql.DB, id string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting inventory item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting inventory item: %w", err)
	}
	return n > 0, nil
}

// scanItem decodes one inventory row from any scan function.
func scanItem(scan func(...any) error) (*model.InventoryItem, error) {
	item := &model.InventoryItem{}
	var imageURL sql.NullString
	var rgbJSON, seasonJSON string

	err := scan(
		&item.ID, &item.ImagePath, &imageURL, &item.Category, &item.Type, &item.Subtype,
		&item.Color.Name, &rgbJSON, &item.Color.Group, &item.Fit, &item.Formality, &seasonJSON,
		&item.TypeConfidence, &item.ColorConfidence, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ImageURL = imageURL.String
	if err := json.Unmarshal([]byte(rgbJSON), &item.Color.RGB); err != nil {
		return nil, fmt.Errorf("decoding color rgb: %w", err)
	}
	if err := json.Unmarshal([]byte(seasonJSON), &item.Season); err != nil {
		return nil, fmt.Errorf("decoding season: %w", err)
	}
	return item, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
