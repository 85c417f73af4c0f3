package search

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLCatalog is the fallback catalog backend, querying Postgres directly.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) Search(ctx context.Context, q Query) ([]TemplateRecord, error) {
	query := `
		SELECT id, name, description, preview_image, category, created_at
		FROM templates
	`
	var (
		where []string
		args  []any
	)
	if q.Text != "" {
		args = append(args, "%"+q.Text+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR category ILIKE $%d)", n, n, n))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY name ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]TemplateRecord, 0)
	for rows.Next() {
		var item TemplateRecord
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.PreviewImage, &item.Category, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

// LoadAll reads the full catalog for reindexing into Meilisearch.
func (c *SQLCatalog) LoadAll(ctx context.Context) ([]TemplateRecord, error) {
	return c.Search(ctx, Query{})
}
