package metadata

import (
	"context"
	"testing"
)

func TestAnnotateTagsRootAndNested(t *testing.T) {
	order := &Definition{
		Class: "Order",
		Fields: []FieldDef{
			{Name: "meta", ClassName: "Meta"},
			{Name: "items", ElementClass: "Item"},
		},
	}
	meta := &Definition{Class: "Meta"}
	item := &Definition{Class: "Item"}

	annotator := NewAnnotator(NewEngine(NewOverrideStore(nil), loaderWith(order, meta, item)))
	root := map[string]any{
		"total": 314.15,
		"meta":  map[string]any{"priority": "HIGH"},
		"items": []any{
			map[string]any{"sku": "sku-1"},
			map[string]any{"sku": "sku-2"},
		},
	}
	annotator.Annotate(context.Background(), root, "Order")

	if root[ClassKey] != "Order" {
		t.Fatalf("root @class = %v", root[ClassKey])
	}
	metaMap := root["meta"].(map[string]any)
	if metaMap[ClassKey] != "Meta" {
		t.Fatalf("meta @class = %v", metaMap[ClassKey])
	}
	for _, element := range root["items"].([]any) {
		if element.(map[string]any)[ClassKey] != "Item" {
			t.Fatalf("item element missing @class")
		}
	}
}

func TestAnnotatePreservesExistingClass(t *testing.T) {
	order := &Definition{Class: "Order", Fields: []FieldDef{{Name: "meta", ClassName: "Meta"}}}
	annotator := NewAnnotator(NewEngine(NewOverrideStore(nil), loaderWith(order)))

	root := map[string]any{
		ClassKey: "CustomOrder",
		"meta":   map[string]any{ClassKey: "LegacyMeta"},
	}
	annotator.Annotate(context.Background(), root, "Order")
	if root[ClassKey] != "CustomOrder" {
		t.Fatalf("existing root @class must be preserved")
	}
	if root["meta"].(map[string]any)[ClassKey] != "LegacyMeta" {
		t.Fatalf("existing nested @class must be preserved")
	}
}

func TestAnnotateInfersFromKeyName(t *testing.T) {
	order := &Definition{Class: "Order"}
	customer := &Definition{Class: "Customer"}
	annotator := NewAnnotator(NewEngine(NewOverrideStore(nil), loaderWith(order, customer)))

	root := map[string]any{
		"customer": map[string]any{"id": "C-1"},
		"unknown":  map[string]any{"x": 1},
	}
	annotator.Annotate(context.Background(), root, "Order")

	if root["customer"].(map[string]any)[ClassKey] != "Customer" {
		t.Fatalf("customer map should be inferred from its key name")
	}
	if _, tagged := root["unknown"].(map[string]any)[ClassKey]; tagged {
		t.Fatalf("unknown map must stay untagged")
	}
}

func TestAnnotateMapElements(t *testing.T) {
	order := &Definition{
		Class:  "Order",
		Fields: []FieldDef{{Name: "discounts", ElementClass: "Discount"}},
	}
	discount := &Definition{Class: "Discount"}
	annotator := NewAnnotator(NewEngine(NewOverrideStore(nil), loaderWith(order, discount)))

	root := map[string]any{
		"discounts": map[string]any{
			"early": map[string]any{"amount": 5},
			"bulk":  map[string]any{"amount": 10},
		},
	}
	annotator.Annotate(context.Background(), root, "Order")
	for key, value := range root["discounts"].(map[string]any) {
		if value.(map[string]any)[ClassKey] != "Discount" {
			t.Fatalf("discount entry %s missing element class tag", key)
		}
	}
}
