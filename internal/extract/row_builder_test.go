package extract

import (
	"reflect"
	"testing"
	"time"

	"github.com/casekit/exposer/internal/metadata"
)

func mappingSet(t *testing.T, mappings ...metadata.FieldMapping) *metadata.MappingSet {
	t.Helper()
	set := metadata.NewMappingSet()
	for _, fm := range mappings {
		key := fm.PlainColumn
		if key == "" {
			key = fm.Column
		}
		set.Put(key, fm)
	}
	return set
}

func TestBuildRowValuesAssemblyOrder(t *testing.T) {
	doc := NewDocument(orderJSON)
	createdAt := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	set := mappingSet(t,
		metadata.FieldMapping{Column: "order_total", JSONPath: "$.total"},
		metadata.FieldMapping{Column: "order_priority", JSONPath: "$.meta.priority"},
	)

	row := BuildRowValues("case-1", doc, createdAt, set, nil, nil)

	wantColumns := []string{
		ColumnCaseInstanceID, "order_total", "order_priority",
		ColumnPlainPayload, ColumnCreatedAt,
	}
	if !reflect.DeepEqual(row.Columns(), wantColumns) {
		t.Fatalf("column order = %v want %v", row.Columns(), wantColumns)
	}
	if v, _ := row.Get("order_total"); v != 314.15 {
		t.Fatalf("order_total = %v", v)
	}
	if v, _ := row.Get("order_priority"); v != "HIGH" {
		t.Fatalf("order_priority = %v", v)
	}
	if v, _ := row.Get(ColumnPlainPayload); v != orderJSON {
		t.Fatalf("plain_payload mismatch")
	}
	if v, _ := row.Get(ColumnCreatedAt); v != createdAt {
		t.Fatalf("created_at = %v", v)
	}
}

func TestBuildRowValuesPlainColumnWinsAndExportSkip(t *testing.T) {
	doc := NewDocument(orderJSON)
	skip := false
	set := mappingSet(t,
		metadata.FieldMapping{Column: "total", PlainColumn: "order_total", JSONPath: "$.total"},
		metadata.FieldMapping{Column: "hidden", JSONPath: "$.meta.priority", ExportToPlain: &skip},
	)

	row := BuildRowValues("case-1", doc, time.Time{}, set, nil, nil)
	if !row.Has("order_total") || row.Has("total") {
		t.Fatalf("plainColumn must override column: %v", row.Columns())
	}
	if row.Has("hidden") {
		t.Fatalf("exportToPlain=false mapping must be skipped")
	}
	if row.Has(ColumnCreatedAt) {
		t.Fatalf("zero creation time must not produce created_at")
	}
}

func TestBuildRowValuesDefaultOnEmpty(t *testing.T) {
	doc := NewDocument(`{"status": "", "tags": []}`)
	set := mappingSet(t,
		metadata.FieldMapping{Column: "priority", JSONPath: "$.nothing.here", Default: "HIGH"},
		metadata.FieldMapping{Column: "tags", JSONPath: "$.tags", Default: "[]"},
		metadata.FieldMapping{Column: "missing", JSONPath: "$.also.nothing"},
	)

	row := BuildRowValues("case-2", doc, time.Time{}, set, nil, nil)
	if v, _ := row.Get("priority"); v != "HIGH" {
		t.Fatalf("default not applied: %v", v)
	}
	if v, _ := row.Get("tags"); v != "[]" {
		t.Fatalf("empty list must take its default: %v", v)
	}
	if row.Has("missing") {
		t.Fatalf("empty extraction without default must be omitted")
	}
}

func TestBuildRowValuesGapFill(t *testing.T) {
	doc := NewDocument(orderJSON)
	set := mappingSet(t,
		metadata.FieldMapping{Column: "order_total", JSONPath: "$.total"},
	)
	legacy := map[string]string{
		"order_total":    "$.meta.priority", // already mapped, must not overwrite
		"customer_id":    "$.customer.id",
		"missing_column": "$.not.in.doc.anywhere",
	}
	direct := map[string]any{
		"customer_id": "SHOULD-NOT-WIN",
		"total":       314.15,
		"empty":       "{}",
	}

	row := BuildRowValues("case-3", doc, time.Time{}, set, legacy, direct)
	if v, _ := row.Get("order_total"); v != 314.15 {
		t.Fatalf("legacy mapping overwrote resolved column: %v", v)
	}
	if v, _ := row.Get("customer_id"); v != "C-1" {
		t.Fatalf("legacy gap-fill failed: %v", v)
	}
	if v, _ := row.Get("total"); v != 314.15 {
		t.Fatalf("direct fallback gap-fill failed: %v", v)
	}
	if row.Has("empty") {
		t.Fatalf("empty direct fallback must be omitted")
	}
}

func TestBuildRowValuesComplexAndSensitive(t *testing.T) {
	doc := NewDocument(`{"card": "4111-1111", "owner": "Ada", "meta": {"a": 1}}`)
	set := mappingSet(t,
		metadata.FieldMapping{Column: "card", JSONPath: "$.card", Sensitive: true},
		metadata.FieldMapping{Column: "owner", JSONPath: "$.owner", Sensitive: true, PIIMask: "###"},
		metadata.FieldMapping{Column: "meta", JSONPath: "$.meta"},
	)

	row := BuildRowValues("case-4", doc, time.Time{}, set, nil, nil)
	if v, _ := row.Get("card"); v != "****" {
		t.Fatalf("sensitive default mask = %v", v)
	}
	if v, _ := row.Get("owner"); v != "###" {
		t.Fatalf("configured mask = %v", v)
	}
	if v, _ := row.Get("meta"); v != `{"a":1}` {
		t.Fatalf("complex value serialization = %v", v)
	}
}

func TestTypeHints(t *testing.T) {
	set := mappingSet(t,
		metadata.FieldMapping{Column: "order_total", JSONPath: "$.total", Type: "DECIMAL"},
		metadata.FieldMapping{Column: "note", PlainColumn: "note_plain", JSONPath: "$.note", Type: "TEXT"},
		metadata.FieldMapping{Column: "untyped", JSONPath: "$.x"},
	)
	hints := TypeHints(set)
	want := map[string]string{"order_total": "DECIMAL", "note_plain": "TEXT"}
	if !reflect.DeepEqual(hints, want) {
		t.Fatalf("hints = %v want %v", hints, want)
	}
	if len(TypeHints(nil)) != 0 {
		t.Fatalf("nil mapping set must yield no hints")
	}
}
