package definition

import (
	"time"

	"docsync/internal/common/errs"
	"docsync/internal/features/remote"
	"docsync/pkg/fixer"
	"docsync/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Definition binds a local entity type to a remote collection.
type Definition struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	EntityType string             `json:"entity_type" bson:"entity_type"`
	Remote     remote.Kind        `json:"remote" bson:"remote"`
	Collection string             `json:"collection" bson:"collection"`
	// PrimaryKey is the local field holding the entity id. Defaults to "id".
	PrimaryKey string         `json:"primary_key" bson:"primary_key"`
	FieldMap   fixer.FieldMap `json:"field_map,omitempty" bson:"field_map,omitempty"`
	// Preset names a built-in field map, used when FieldMap is empty.
	Preset string `json:"preset,omitempty" bson:"preset,omitempty"`
	// Filter is a Tengo expression over `record`; empty selects every entity.
	Filter string `json:"filter,omitempty" bson:"filter,omitempty"`
	// Scope restricts the definition to one SYNC_SCOPE; empty matches any.
	Scope     string         `json:"scope,omitempty" bson:"scope,omitempty"`
	Enabled   bool           `json:"enabled" bson:"enabled"`
	Sequence  int            `json:"sequence" bson:"sequence"`
	Settings  map[string]any `json:"settings,omitempty" bson:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

// Normalize fills defaults.
func (d *Definition) Normalize() {
	if d.PrimaryKey == "" {
		d.PrimaryKey = "id"
	}
	if d.Collection == "" {
		d.Collection = utils.Slugify(d.EntityType)
	}
	if d.Name == "" {
		d.Name = d.EntityType
	}
}

// Fields returns the field map, resolving the preset when no explicit map is set.
func (d *Definition) Fields() (fixer.FieldMap, error) {
	if len(d.FieldMap) > 0 {
		return d.FieldMap, nil
	}
	if d.Preset == "" {
		return nil, errs.New(errs.Invalid, "definition %q has neither field_map nor preset", d.Name)
	}
	m, ok := fixer.Preset(d.Preset)
	if !ok {
		return nil, errs.New(errs.Invalid, "unknown preset %q", d.Preset)
	}
	return m, nil
}

// RemoteCollection returns the collection with its remote primary key field.
func (d *Definition) RemoteCollection() (remote.Collection, error) {
	fields, err := d.Fields()
	if err != nil {
		return remote.Collection{}, err
	}
	pk, ok := fields[d.PrimaryKey]
	if !ok {
		return remote.Collection{}, errs.New(errs.Invalid, "primary key %q is not mapped", d.PrimaryKey)
	}
	return remote.Collection{Name: d.Collection, PrimaryKey: pk}, nil
}

// Matches reports whether the definition applies in scope.
func (d *Definition) Matches(scope string) bool {
	return d.Scope == "" || d.Scope == scope
}

// Overlaps reports whether d and other could both match one (entity type, scope) pair.
func (d *Definition) Overlaps(other *Definition) bool {
	if d.EntityType != other.EntityType {
		return false
	}
	return d.Scope == "" || other.Scope == "" || d.Scope == other.Scope
}

// Validate checks the definition before it is stored.
func (d *Definition) Validate() error {
	if d.EntityType == "" {
		return errs.New(errs.Invalid, "entity_type is required")
	}
	if !d.Remote.Valid() {
		return errs.New(errs.Invalid, "unknown remote %q", d.Remote)
	}
	if d.Collection == "" {
		return errs.New(errs.Invalid, "collection is required")
	}
	fields, err := d.Fields()
	if err != nil {
		return err
	}
	if err := fields.Validate(d.PrimaryKey); err != nil {
		return err
	}
	if _, err := CompileFilter(d.Filter); err != nil {
		return errs.Wrap(errs.Invalid, err, "filter does not compile")
	}
	return nil
}
