// Package mirror is the optional document-store mirror: a best-effort
// write-through copy of matters, contacts, tasks, invoices, and users kept
// in Meilisearch for cross-entity text search. The relational store stays
// authoritative; divergence is tolerated and repaired only by a full
// reindex, never automatically.
package mirror

// RecordType tags a mirrored record / search hit.
type RecordType string

const (
	RecordMatter  RecordType = "matter"
	RecordContact RecordType = "contact"
	RecordTask    RecordType = "task"
	RecordInvoice RecordType = "invoice"
	RecordUser    RecordType = "user"
)

// Record is the flattened shape written to the mirror. Extra contains
// type-specific display fields (status, matter number, amounts).
type Record struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Status string            `json:"status"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Query is one search request across the mirrored indexes.
type Query struct {
	Text       string
	FilterType RecordType // empty = all types
	Limit      int
	Offset     int
}

// Result is one search hit.
type Result struct {
	Type    RecordType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status"`
}

// Mirror is consumed by the service layer. All write methods are
// best-effort: callers log failures and continue.
type Mirror interface {
	Healthy() bool
	Upsert(typ RecordType, rec Record) error
	Delete(typ RecordType, id string) error
	Search(q Query) ([]Result, int, error)
	Close()
}

// Disabled is the mirror used when no document store is configured.
type Disabled struct{}

func (Disabled) Healthy() bool                       { return false }
func (Disabled) Upsert(RecordType, Record) error     { return nil }
func (Disabled) Delete(RecordType, string) error     { return nil }
func (Disabled) Search(Query) ([]Result, int, error) { return nil, 0, nil }
func (Disabled) Close()                              {}
