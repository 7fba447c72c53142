package fixer

import (
	"reflect"
	"testing"

	"docsync/internal/common/errs"
)

func TestSerializeWidget(t *testing.T) {
	m := FieldMap{"id": "id", "name": "name"}

	doc, err := m.Serialize(map[string]any{"id": int64(1), "name": "Widget", "color": "red"}, "id")
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	want := Document{"id": int64(1), "name": "Widget"}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("Serialize() = %v, want %v", doc, want)
	}
}

func TestSerializeNormalizesAbsentValues(t *testing.T) {
	doc, err := KardexProduct.Serialize(map[string]any{
		"kardex_product_id":   int64(42),
		"kardex_product_name": "Schraube M4",
		"kardex_info_1":       false,
		"kardex_info_2":       nil,
		"kardex_status":       2,
	}, "kardex_product_id")
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	if len(doc) != len(KardexProduct) {
		t.Errorf("expected every configured column, got %d of %d", len(doc), len(KardexProduct))
	}
	for _, col := range []string{"Info1", "Info2", "Info3", "Einheit"} {
		v, ok := doc[col]
		if !ok {
			t.Errorf("column %s missing", col)
			continue
		}
		if v != "" {
			t.Errorf("column %s = %#v, want empty string", col, v)
		}
	}
	if doc["STATUS"] != 2 {
		t.Errorf("STATUS = %#v, want 2", doc["STATUS"])
	}
	if doc["Artikelid"] != int64(42) {
		t.Errorf("Artikelid = %#v, want 42", doc["Artikelid"])
	}
}

func TestSerializeIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		m      FieldMap
		values map[string]any
	}{
		{"unmapped primary key", FieldMap{"name": "name"}, map[string]any{"id": 1, "name": "x"}},
		{"missing primary key", FieldMap{"id": "id"}, map[string]any{"name": "x"}},
		{"false primary key", FieldMap{"id": "id"}, map[string]any{"id": false}},
		{"zero primary key", FieldMap{"id": "id"}, map[string]any{"id": int64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.m.Serialize(tt.values, "id")
			if !errs.Is(err, errs.IncompleteDocument) {
				t.Errorf("expected IncompleteDocument, got %v", err)
			}
		})
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	values := map[string]any{"id": int64(3), "name": "Austria", "code": "AT"}
	a, _ := Country.Serialize(values, "id")
	b, _ := Country.Serialize(values, "id")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical input produced %v and %v", a, b)
	}
}

func TestRoundTrip(t *testing.T) {
	values := map[string]any{
		"kardex_product_id":    int64(7),
		"kardex_product_name":  "Mutter",
		"kardex_unit":          "Stk",
		"kardex_product_group": "C",
		"list_price":           12.5,
	}

	doc, err := KardexProduct.Serialize(values, "kardex_product_id")
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	restored, err := KardexProduct.Restore(doc)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	for local, v := range values {
		if _, mapped := KardexProduct[local]; !mapped {
			if _, ok := restored[local]; ok {
				t.Errorf("unmapped field %s should not come back", local)
			}
			continue
		}
		if restored[local] != v {
			t.Errorf("%s = %#v, want %#v", local, restored[local], v)
		}
	}
}

func TestInvertRejectsAmbiguousTable(t *testing.T) {
	m := FieldMap{"name": "title", "display_name": "title"}
	if _, err := m.Invert(); err == nil {
		t.Error("expected an error for a non-injective table")
	}
	if err := m.Validate("name"); !errs.Is(err, errs.Invalid) {
		t.Errorf("Validate() = %v, want Invalid", err)
	}
}

func TestColumnsSorted(t *testing.T) {
	got := Country.Columns()
	want := []string{"code", "id", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Columns() = %v, want %v", got, want)
	}
}

func TestPresetIsCopy(t *testing.T) {
	m, ok := Preset("country")
	if !ok {
		t.Fatal("country preset missing")
	}
	m["extra"] = "extra"
	if _, leaked := Country["extra"]; leaked {
		t.Error("modifying a preset copy changed the shared table")
	}
	if _, ok := Preset("unknown"); ok {
		t.Error("unknown preset should not resolve")
	}
}

func TestEqualIgnoresIntegerWidth(t *testing.T) {
	sent := Document{"id": int64(1), "name": "Widget", "price": 2.5}
	stored := Document{"price": 2.5, "id": int32(1), "name": "Widget"}
	if !Equal(sent, stored) {
		t.Error("documents differing only in integer width should be equal")
	}
	if Equal(sent, Document{"id": int64(1), "name": "Gadget", "price": 2.5}) {
		t.Error("different values should not be equal")
	}
	if Equal(sent, nil) {
		t.Error("a document never equals nil")
	}
}
