package extract

import (
	"testing"
	"time"
)

const orderJSON = `{
	"@class": "Order",
	"total": 314.15,
	"meta": {"@class": "Meta", "priority": "HIGH"},
	"customer": {"@class": "Customer", "id": "C-1"},
	"items": [
		{"@class": "Item", "id": "sku-123", "qty": 2},
		{"@class": "Item", "id": "sku-456", "qty": 1}
	]
}`

func TestExtractLiteralPaths(t *testing.T) {
	doc := NewDocument(orderJSON)
	cases := []struct {
		path string
		want any
	}{
		{"$.total", 314.15},
		{"$.meta.priority", "HIGH"},
		{"$.customer.id", "C-1"},
		{"$.items[0].id", "sku-123"},
	}
	for _, tc := range cases {
		got, ok := doc.Extract(tc.path)
		if !ok {
			t.Fatalf("extract %s: not found", tc.path)
		}
		if got != tc.want {
			t.Fatalf("extract %s = %v want %v", tc.path, got, tc.want)
		}
	}
}

func TestPathCandidateEquivalence(t *testing.T) {
	doc := NewDocument(orderJSON)
	for _, path := range []string{"$.items[0].id", "$.items(0).id", "$['items'][0]['id']"} {
		got, ok := doc.Extract(path)
		if !ok || got != "sku-123" {
			t.Fatalf("extract %s = %v ok=%v, want sku-123", path, got, ok)
		}
	}
}

func TestExtractMapEntryPseudoFields(t *testing.T) {
	doc := NewDocument(`{"_key": "early", "_value": {"amount": 5}}`)
	got, ok := doc.Extract("$_key")
	if !ok || got != "early" {
		t.Fatalf("$_key = %v ok=%v", got, ok)
	}
	amount, ok := doc.Extract("$._value.amount")
	if !ok || amount != float64(5) {
		t.Fatalf("$._value.amount = %v ok=%v", amount, ok)
	}
}

func TestExtractValueWrapperInjection(t *testing.T) {
	// The configured path assumes the object directly, but the document
	// wraps it in a map entry's _value.
	doc := NewDocument(`{"_key": "bulk", "_value": {"amount": 10}}`)
	got, ok := doc.Extract("$.amount")
	if !ok || got != float64(10) {
		t.Fatalf("value wrapper injection failed: %v ok=%v", got, ok)
	}
}

func TestExtractDeepLeafSearch(t *testing.T) {
	doc := NewDocument(`{"outer": {"middle": {"priority": "LOW"}}}`)
	got, ok := doc.Extract("$.somewhere.else.priority")
	if !ok || got != "LOW" {
		t.Fatalf("deep leaf search failed: %v ok=%v", got, ok)
	}
}

func TestExtractLikelyNameVariants(t *testing.T) {
	doc := NewDocument(`{"customer": {"displayName": "Ada"}}`)
	got, ok := doc.Extract("$.customer.name")
	if !ok || got != "Ada" {
		t.Fatalf("likely-name search failed: %v ok=%v", got, ok)
	}
}

func TestExtractRuleDeepScan(t *testing.T) {
	doc := NewDocument(`{"order": {"pricing": {"rules": [{"discount": 5}]}}}`)
	got, ok := doc.Extract("$.rules")
	if !ok {
		t.Fatalf("rule deep scan found nothing")
	}
	list, isList := got.([]any)
	if !isList || len(list) != 1 {
		t.Fatalf("rule deep scan = %v", got)
	}
}

func TestExtractSpecialFallbacks(t *testing.T) {
	doc := NewDocument(`{"initiator": "ops-user", "createdAt": "2026-08-01T00:00:00Z"}`)
	got, ok := doc.ExtractWithFallbacks("requested_by", "$.requestedBy", time.Time{})
	if !ok || got != "ops-user" {
		t.Fatalf("requested_by fallback = %v ok=%v", got, ok)
	}
	created, ok := doc.ExtractWithFallbacks("create_time", "$.createTime", time.Time{})
	if !ok || created != "2026-08-01T00:00:00Z" {
		t.Fatalf("create_time fallback = %v ok=%v", created, ok)
	}

	bare := NewDocument(`{}`)
	recordCreated := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	stamped, ok := bare.ExtractWithFallbacks("create_time", "$.createTime", recordCreated)
	if !ok || stamped != recordCreated {
		t.Fatalf("record timestamp fallback = %v ok=%v", stamped, ok)
	}
}

func TestIsEmpty(t *testing.T) {
	for _, value := range []any{nil, []any{}, map[string]any{}, "[]", "{}", " [] "} {
		if !IsEmpty(value) {
			t.Fatalf("%v should be empty", value)
		}
	}
	for _, value := range []any{0, false, "", "x", []any{1}, map[string]any{"k": 1}} {
		if IsEmpty(value) {
			t.Fatalf("%v should not be empty", value)
		}
	}
}

func TestFindByClass(t *testing.T) {
	doc := NewDocument(orderJSON)
	items := doc.FindByClass("Item")
	if len(items) != 2 {
		t.Fatalf("expected 2 Item objects, got %d", len(items))
	}
	if len(doc.FindByClass("Missing")) != 0 {
		t.Fatalf("unknown class must match nothing")
	}
	if len(doc.FindByClass("order")) != 1 {
		t.Fatalf("class scan is case-insensitive and includes the root")
	}
}

func TestExtractMalformedDocument(t *testing.T) {
	doc := NewDocument(`{definitely not json`)
	if _, ok := doc.Extract("$.total"); ok {
		t.Fatalf("malformed document must not resolve")
	}
	if doc.Parsed() != nil {
		t.Fatalf("malformed document has no parsed tree")
	}
}
