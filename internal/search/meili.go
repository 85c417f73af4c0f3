package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const templatesIndex = "mosaic_templates"

// Meili wraps the Meilisearch client for the template catalog. It tracks
// instance health in the background so callers can fall back to SQL when the
// search server is down.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	stop    chan struct{}
}

func NewMeili(url, masterKey string) *Meili {
	var opts []meili.Option
	if masterKey != "" {
		opts = append(opts, meili.WithAPIKey(masterKey))
	}
	m := &Meili{
		client: meili.New(url, opts...),
		stop:   make(chan struct{}),
	}
	m.healthy.Store(m.client.IsHealthy())
	go m.healthLoop()
	return m
}

// EnsureIndex creates the templates index and configures its attributes.
// Safe to call on every startup.
func (m *Meili) EnsureIndex() error {
	_, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        templatesIndex,
		PrimaryKey: "id",
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", templatesIndex, err)
	}
	idx := m.client.Index(templatesIndex)
	if _, err := idx.UpdateFilterableAttributes(&[]interface{}{"category"}); err != nil {
		return fmt.Errorf("configure filterable attributes: %w", err)
	}
	if _, err := idx.UpdateSearchableAttributes(&[]string{"name", "description", "category"}); err != nil {
		return fmt.Errorf("configure searchable attributes: %w", err)
	}
	if _, err := idx.UpdateSortableAttributes(&[]string{"name"}); err != nil {
		return fmt.Errorf("configure sortable attributes: %w", err)
	}
	return nil
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			was := m.healthy.Load()
			now := m.client.IsHealthy()
			m.healthy.Store(now)
			if was != now {
				if now {
					log.Printf("meilisearch is healthy again")
				} else {
					log.Printf("meilisearch is unreachable, falling back to SQL catalog")
				}
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.stop)
	m.client.Close()
}

// IndexTemplates upserts catalog records into the templates index.
func (m *Meili) IndexTemplates(records []TemplateRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := m.client.Index(templatesIndex).AddDocuments(records, nil); err != nil {
		return fmt.Errorf("index templates: %w", err)
	}
	return nil
}

func (m *Meili) DeleteTemplate(id string) error {
	if _, err := m.client.Index(templatesIndex).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete template %s from index: %w", id, err)
	}
	return nil
}

func (m *Meili) Search(ctx context.Context, q Query) ([]TemplateRecord, error) {
	req := &meili.SearchRequest{
		Limit: 1000,
		Sort:  []string{"name:asc"},
	}
	if q.Category != "" {
		req.Filter = []string{fmt.Sprintf("category = %q", q.Category)}
	}
	resp, err := m.client.Index(templatesIndex).SearchWithContext(ctx, q.Text, req)
	if err != nil {
		return nil, fmt.Errorf("search templates: %w", err)
	}
	items := make([]TemplateRecord, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, fmt.Errorf("encode hit: %w", err)
		}
		var item TemplateRecord
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
