package mirror

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestDisabledMirrorIsInert(t *testing.T) {
	var m Mirror = Disabled{}
	if m.Healthy() {
		t.Error("disabled mirror should report unhealthy")
	}
	if err := m.Upsert(RecordMatter, Record{ID: "mat_1"}); err != nil {
		t.Errorf("Upsert: %v", err)
	}
	if err := m.Delete(RecordMatter, "mat_1"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	results, total, err := m.Search(Query{Text: "anything"})
	if err != nil || total != 0 || results != nil {
		t.Errorf("Search = %v, %d, %v", results, total, err)
	}
}

func TestIndexToRecordType(t *testing.T) {
	if got := indexToRecordType(idxMatters); got != RecordMatter {
		t.Errorf("got %q", got)
	}
	if got := indexToRecordType("unknown_index"); got != "" {
		t.Errorf("got %q for unknown index", got)
	}
}

func TestHitToResultPrefersHighlights(t *testing.T) {
	mustRaw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":     mustRaw("mat_1"),
		"title":  mustRaw("Smith v. Jones"),
		"body":   mustRaw("breach of contract"),
		"status": mustRaw("open"),
		"_formatted": mustRaw(map[string]string{
			"title": "<mark>Smith</mark> v. Jones",
			"body":  "breach of <mark>contract</mark>",
		}),
	}
	r := hitToResult(hit, RecordMatter)
	if r.Title != "<mark>Smith</mark> v. Jones" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Snippet != "breach of <mark>contract</mark>" {
		t.Errorf("snippet = %q", r.Snippet)
	}
	if r.Status != "open" || r.ID != "mat_1" || r.Type != RecordMatter {
		t.Errorf("result = %+v", r)
	}
}
