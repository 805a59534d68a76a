package metadata

import (
	"context"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/models"
)

func loaderWith(defs ...*Definition) *ResourceLoader {
	loader := &ResourceLoader{byClass: map[string]*Definition{}}
	for _, def := range defs {
		loader.add(def)
	}
	return loader
}

func newTestResolver(defs ...*Definition) *Resolver {
	return NewResolver(NewEngine(NewOverrideStore(nil), loaderWith(defs...)))
}

func TestInheritancePrecedence(t *testing.T) {
	grandparent := &Definition{
		Class: "Grandparent",
		Mappings: []FieldMapping{
			{Column: "a_col", JSONPath: "$.a"},
			{Column: "b_col", JSONPath: "$.b_old"},
		},
	}
	parent := &Definition{
		Class:  "Parent",
		Parent: "Grandparent",
		Mappings: []FieldMapping{
			{Column: "b_col", JSONPath: "$.b_new"},
		},
	}
	child := &Definition{
		Class:  "Child",
		Parent: "Parent",
		Mappings: []FieldMapping{
			{Column: "a_col", Remove: true},
			{Column: "d_col", JSONPath: "$.d"},
		},
	}

	merged := newTestResolver(grandparent, parent, child).MappingsFor(context.Background(), "Child")
	if _, ok := merged.Get("a_col"); ok {
		t.Fatalf("a_col should be removed by child tombstone")
	}
	b, ok := merged.Get("b_col")
	if !ok || b.JSONPath != "$.b_new" {
		t.Fatalf("b_col should carry parent's path, got %+v ok=%v", b, ok)
	}
	if _, ok := merged.Get("d_col"); !ok {
		t.Fatalf("d_col missing from merged set")
	}
}

func TestMixinPrecedence(t *testing.T) {
	mixinA := &Definition{
		Class: "MixinA",
		Mappings: []FieldMapping{
			{Column: "shared_col", JSONPath: "$.fromA"},
			{Column: "a_only", JSONPath: "$.aOnly"},
		},
	}
	mixinB := &Definition{
		Class: "MixinB",
		Mappings: []FieldMapping{
			{Column: "shared_col", JSONPath: "$.fromB"},
		},
	}
	child := &Definition{
		Class:  "Child",
		Mixins: []string{"MixinA", "MixinB"},
		Mappings: []FieldMapping{
			{Column: "shared_col", JSONPath: "$.own"},
			{Column: "a_only", Remove: true},
		},
	}

	merged := newTestResolver(mixinA, mixinB, child).MappingsFor(context.Background(), "Child")
	shared, ok := merged.Get("shared_col")
	if !ok || shared.JSONPath != "$.own" {
		t.Fatalf("own mapping must win over mixins, got %+v ok=%v", shared, ok)
	}
	if shared.SourceClass != "Child" {
		t.Fatalf("provenance should point at Child, got %s", shared.SourceClass)
	}
	if _, ok := merged.Get("a_only"); ok {
		t.Fatalf("a_only removed by child must be absent")
	}
}

func TestParentCycleDiagnostic(t *testing.T) {
	a := &Definition{Class: "A", Parent: "B", Mappings: []FieldMapping{{Column: "x", JSONPath: "$.x"}}}
	b := &Definition{Class: "B", Parent: "A", Mappings: []FieldMapping{{Column: "y", JSONPath: "$.y"}}}

	resolver := newTestResolver(a, b)
	merged := resolver.MappingsFor(context.Background(), "A")
	if merged.Len() == 0 {
		t.Fatalf("cycle must not discard the reachable mappings")
	}
	diags := resolver.DiagnosticsFor(context.Background(), "A")
	found := false
	for _, d := range diags {
		if strings.Contains(d, "circular parent reference") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a circular parent diagnostic, got %v", diags)
	}
}

func TestMixinCycleDiagnostic(t *testing.T) {
	child := &Definition{
		Class:    "Child",
		Mixins:   []string{"Child"},
		Mappings: []FieldMapping{{Column: "x", JSONPath: "$.x"}},
	}
	resolver := newTestResolver(child)
	_ = resolver.MappingsFor(context.Background(), "Child")
	diags := resolver.DiagnosticsFor(context.Background(), "Child")
	found := false
	for _, d := range diags {
		if strings.Contains(d, "circular mixin reference") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a circular mixin diagnostic, got %v", diags)
	}
}

func TestProcessSuffixCandidates(t *testing.T) {
	candidates := BuildCandidates("orderProcess")
	want := []string{"orderProcess", "order", "Order"}
	if len(candidates) != len(want) {
		t.Fatalf("candidates = %v", candidates)
	}
	for i := range want {
		if candidates[i] != want[i] {
			t.Fatalf("candidates[%d] = %s want %s", i, candidates[i], want[i])
		}
	}

	def := &Definition{Class: "Order", Mappings: []FieldMapping{{Column: "order_total", JSONPath: "$.total"}}}
	merged := newTestResolver(def).MappingsFor(context.Background(), "OrderProcess")
	if _, ok := merged.Get("order_total"); !ok {
		t.Fatalf("process-suffixed lookup should resolve the base class")
	}
}

func TestNestedClassPathRebase(t *testing.T) {
	meta := &Definition{Class: "Meta", JSONPath: "$.meta"}
	order := &Definition{
		Class: "Order",
		Mappings: []FieldMapping{
			{Column: "order_priority", JSONPath: "$.priority", Class: "Meta"},
		},
	}
	merged := newTestResolver(meta, order).MappingsFor(context.Background(), "Order")
	fm, ok := merged.Get("order_priority")
	if !ok || fm.JSONPath != "$.meta.priority" {
		t.Fatalf("nested path rebase failed, got %+v ok=%v", fm, ok)
	}
}

func TestJoinNestedJSONPath(t *testing.T) {
	idx := 2
	cases := []struct {
		base string
		rel  string
		arr  *int
		want string
	}{
		{"$.meta", "$.priority", nil, "$.meta.priority"},
		{"$.meta", "priority", nil, "$.meta.priority"},
		{"$.items", "name", &idx, "$.items[2].name"},
		{"$.items[0]", "name", &idx, "$.items[0].name"},
		{"$.items", "[1].name", nil, "$.items[1].name"},
		{"$.rules", "(0).amount", nil, "$.rules(0).amount"},
		{"$.meta", "", nil, "$.meta"},
	}
	for _, tc := range cases {
		got := JoinNestedJSONPath(tc.base, tc.rel, tc.arr)
		if got != tc.want {
			t.Fatalf("join(%q,%q) = %q want %q", tc.base, tc.rel, got, tc.want)
		}
	}
}

func TestPlainColumnTypeConflictDiagnostic(t *testing.T) {
	parent := &Definition{
		Class: "Parent",
		Mappings: []FieldMapping{
			{Column: "amount", PlainColumn: "amount_plain", Type: "DECIMAL", JSONPath: "$.amount"},
		},
	}
	child := &Definition{
		Class:  "Child",
		Parent: "Parent",
		Mappings: []FieldMapping{
			{Column: "amount_text", PlainColumn: "amount_plain", Type: "VARCHAR(64)", JSONPath: "$.amountText"},
		},
	}
	resolver := newTestResolver(parent, child)
	_ = resolver.MappingsFor(context.Background(), "Child")
	diags := resolver.DiagnosticsFor(context.Background(), "Child")
	found := false
	for _, d := range diags {
		if strings.Contains(d, "type conflict on plainColumn amount_plain") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a type conflict diagnostic, got %v", diags)
	}
}

func TestMergeKeyFallsBackToPlainColumn(t *testing.T) {
	def := &Definition{
		Class: "Thing",
		Mappings: []FieldMapping{
			{PlainColumn: "thing_name", JSONPath: "$.name"},
		},
	}
	merged := newTestResolver(def).MappingsFor(context.Background(), "Thing")
	fm, ok := merged.Get("thing_name")
	if !ok {
		t.Fatalf("mapping should be keyed by plainColumn")
	}
	if fm.Column != "thing_name" {
		t.Fatalf("column should be backfilled from the chosen key, got %q", fm.Column)
	}
}

func TestResolverCacheEviction(t *testing.T) {
	def := &Definition{Class: "Order", Mappings: []FieldMapping{{Column: "order_total", JSONPath: "$.total"}}}
	loader := loaderWith(def)
	resolver := NewResolver(NewEngine(NewOverrideStore(nil), loader))

	first := resolver.MappingsFor(context.Background(), "Order")
	if first.Len() != 1 {
		t.Fatalf("unexpected merged size %d", first.Len())
	}

	// Mutating the backing definition is invisible until eviction.
	def.Mappings = append(def.Mappings, FieldMapping{Column: "order_state", JSONPath: "$.state"})
	if cached := resolver.MappingsFor(context.Background(), "Order"); cached.Len() != 1 {
		t.Fatalf("cache should serve the old result, got %d", cached.Len())
	}
	resolver.Evict("Order")
	if fresh := resolver.MappingsFor(context.Background(), "Order"); fresh.Len() != 2 {
		t.Fatalf("evict should force a re-resolve, got %d", fresh.Len())
	}

	resolver.EvictAll()
	if fresh := resolver.MappingsFor(context.Background(), "Order"); fresh.Len() != 2 {
		t.Fatalf("resolve after EvictAll failed, got %d", fresh.Len())
	}
}

func TestDBOverrideWinsOverFile(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.ClassDefOverride{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	fileDef := &Definition{Class: "Order", Mappings: []FieldMapping{{Column: "order_total", JSONPath: "$.fileTotal"}}}
	override := models.ClassDefOverride{
		ClassName:      "Order",
		EntityType:     "Order",
		Version:        2,
		Enabled:        true,
		JSONDefinition: datatypes.JSON(`{"class":"Order","mappings":[{"column":"order_total","jsonPath":"$.dbTotal"}]}`),
	}
	if errCreate := conn.Create(&override).Error; errCreate != nil {
		t.Fatalf("create override: %v", errCreate)
	}

	resolver := NewResolver(NewEngine(NewOverrideStore(conn), loaderWith(fileDef)))
	merged := resolver.MappingsFor(context.Background(), "Order")
	fm, ok := merged.Get("order_total")
	if !ok || fm.JSONPath != "$.dbTotal" {
		t.Fatalf("database override should shadow the file definition, got %+v ok=%v", fm, ok)
	}
}

func TestMissingMetadataIsEmptyNotError(t *testing.T) {
	resolver := newTestResolver()
	merged := resolver.MappingsFor(context.Background(), "Nope")
	if merged.Len() != 0 {
		t.Fatalf("missing metadata must yield an empty set")
	}
}
