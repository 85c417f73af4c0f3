// Package search serves the template catalog listing: Meilisearch when it is
// configured and healthy, plain SQL otherwise.
package search

import "time"

// Query filters the template catalog. Category is an exact match; the "all"
// sentinel must be translated to empty by the caller. Text matches name,
// description or category, case-insensitively.
type Query struct {
	Text     string
	Category string
}

// TemplateRecord is the summary projection returned by the catalog and stored
// in the search index.
type TemplateRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PreviewImage string    `json:"previewImage"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"createdAt"`
}
