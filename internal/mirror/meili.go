package mirror

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxMatters  = "praxis_matters"
	idxContacts = "praxis_contacts"
	idxTasks    = "praxis_tasks"
	idxInvoices = "praxis_invoices"
	idxUsers    = "praxis_users"
)

var typeIndexes = map[RecordType]string{
	RecordMatter:  idxMatters,
	RecordContact: idxContacts,
	RecordTask:    idxTasks,
	RecordInvoice: idxInvoices,
	RecordUser:    idxUsers,
}

// Meili implements Mirror via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The mirror
// starts unhealthy if the initial connection fails; the health loop brings
// it back when the server recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("mirror: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, uid := range typeIndexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("mirror: create index %s (may already exist): %v", uid, err)
		}

		index := m.client.Index(uid)
		filterable := []interface{}{"status"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("mirror: update filterable attrs for %s: %v", uid, err)
		}
		searchable := []string{"title", "body"}
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("mirror: update searchable attrs for %s: %v", uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("mirror: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Upsert writes one record to its type's index.
func (m *Meili) Upsert(typ RecordType, rec Record) error {
	uid, ok := typeIndexes[typ]
	if !ok {
		return fmt.Errorf("unknown record type %q", typ)
	}
	_, err := m.client.Index(uid).AddDocuments([]Record{rec}, nil)
	return err
}

// Delete removes one record from its type's index.
func (m *Meili) Delete(typ RecordType, id string) error {
	uid, ok := typeIndexes[typ]
	if !ok {
		return fmt.Errorf("unknown record type %q", typ)
	}
	_, err := m.client.Index(uid).DeleteDocument(id, nil)
	return err
}

// Search queries all indexes (or one type) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for typ, uid := range typeIndexes {
		if q.FilterType != "" && q.FilterType != typ {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		typ := indexToRecordType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, typ))
		}
	}
	return results, total, nil
}

func indexToRecordType(uid string) RecordType {
	for typ, indexUID := range typeIndexes {
		if indexUID == uid {
			return typ
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, typ RecordType) Result {
	return Result{
		Type:    typ,
		ID:      decodeString(hit, "id"),
		Title:   firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet: firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
		Status:  decodeString(hit, "status"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
