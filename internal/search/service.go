package search

import (
	"context"
	"log"
)

// Service fronts the template catalog. When Meilisearch is configured and
// healthy it serves queries from the index; otherwise it falls back to SQL.
// The SQL catalog is always the source of truth.
type Service struct {
	meili *Meili
	sql   *SQLCatalog
}

// NewService builds the catalog facade. meili may be nil when no search
// server is configured.
func NewService(m *Meili, sql *SQLCatalog) *Service {
	return &Service{meili: m, sql: sql}
}

func (s *Service) Search(ctx context.Context, q Query) ([]TemplateRecord, error) {
	if s.meili != nil && s.meili.Healthy() {
		items, err := s.meili.Search(ctx, q)
		if err == nil {
			return items, nil
		}
		log.Printf("meilisearch query failed, falling back to SQL: %v", err)
	}
	return s.sql.Search(ctx, q)
}

// Reindex rebuilds the Meilisearch index from the SQL catalog. A no-op when
// search is not configured.
func (s *Service) Reindex(ctx context.Context) error {
	if s.meili == nil {
		return nil
	}
	records, err := s.sql.LoadAll(ctx)
	if err != nil {
		return err
	}
	return s.meili.IndexTemplates(records)
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
