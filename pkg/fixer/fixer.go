// Package fixer translates local records into the document shape a remote
// system expects, driven entirely by a field-name table.
package fixer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"docsync/internal/common/errs"
)

// FieldMap maps local field names to remote field names.
type FieldMap map[string]string

// Document is a record in the remote system's schema.
type Document map[string]any

// Serialize returns a document holding exactly the configured remote fields.
// Values the local store reports as false, nil or missing are sent as "" so the
// remote schema always receives the key. The local primaryKey field must be
// mapped and set.
func (m FieldMap) Serialize(values map[string]any, primaryKey string) (Document, error) {
	if _, ok := m[primaryKey]; !ok {
		return nil, errs.New(errs.IncompleteDocument, "primary key %q is not mapped", primaryKey)
	}
	if isEmpty(values[primaryKey]) {
		return nil, errs.New(errs.IncompleteDocument, "primary key %q is empty", primaryKey)
	}

	doc := make(Document, len(m))
	for local, remote := range m {
		doc[remote] = normalize(values[local])
	}
	return doc, nil
}

// Invert returns the remote-to-local table. It fails when two local fields
// share a remote name, since the inverse would be ambiguous.
func (m FieldMap) Invert() (FieldMap, error) {
	inv := make(FieldMap, len(m))
	for local, remote := range m {
		if prev, dup := inv[remote]; dup {
			return nil, fmt.Errorf("remote field %q is mapped from both %q and %q", remote, prev, local)
		}
		inv[remote] = local
	}
	return inv, nil
}

// Restore maps a remote document back to local field names. Remote fields
// outside the table are dropped.
func (m FieldMap) Restore(doc Document) (map[string]any, error) {
	inv, err := m.Invert()
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(doc))
	for remote, v := range doc {
		if local, ok := inv[remote]; ok {
			values[local] = v
		}
	}
	return values, nil
}

// Columns returns the remote field names in sorted order.
func (m FieldMap) Columns() []string {
	return slices.Sorted(maps.Values(m))
}

// Validate checks the table is usable for a collection keyed by primaryKey.
func (m FieldMap) Validate(primaryKey string) error {
	if len(m) == 0 {
		return errs.New(errs.Invalid, "field map is empty")
	}
	if _, ok := m[primaryKey]; !ok {
		return errs.New(errs.Invalid, "primary key %q is not mapped", primaryKey)
	}
	for local, remote := range m {
		if local == "" || remote == "" {
			return errs.New(errs.Invalid, "field map contains an empty name")
		}
	}
	if _, err := m.Invert(); err != nil {
		return errs.Wrap(errs.Invalid, err, "field map is not invertible")
	}
	return nil
}

// Equal reports whether two documents carry the same values once encoded,
// so an int32 read back from the store equals the int64 that was sent.
func Equal(a, b Document) bool {
	if len(a) != len(b) {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if !x {
			return ""
		}
	}
	return v
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case int:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}
