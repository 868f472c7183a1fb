// Package model provides the backend-agnostic description of one resource
// type: its field set, primary key, and per-field constraints. Descriptors are
// built once at registration time and never mutated afterwards.
package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/iklobato/lightapi/domain/rest"
)

// FieldType enumerates the portable column types a field can take.
type FieldType string

const (
	Integer   FieldType = "integer"
	Float     FieldType = "float"
	Text      FieldType = "text"
	Boolean   FieldType = "boolean"
	Timestamp FieldType = "timestamp"
)

// Field describes one column of a resource.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	Unique   bool

	// Default is applied when the field is absent from a Create or Update
	// body. A nil Default with HasDefault=false means the field is required
	// unless Nullable.
	Default    any
	HasDefault bool
}

// Descriptor describes one resource type (immutable value type).
type Descriptor struct {
	Name       string
	Fields     []Field
	PrimaryKey string
}

// Record is one stored row, keyed by field name.
type Record map[string]any

// Validate checks descriptor invariants: non-empty name, unique field names,
// exactly one primary key that exists in the field set, and known field types.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return rest.Configf("", "descriptor has no name")
	}
	if len(d.Fields) == 0 {
		return rest.Configf(d.Name, "descriptor has no fields")
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return rest.Configf(d.Name, "field with empty name")
		}
		if seen[f.Name] {
			return rest.Configf(d.Name, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case Integer, Float, Text, Boolean, Timestamp:
		default:
			return rest.Configf(d.Name, "field %q has unknown type %q", f.Name, f.Type)
		}
		if f.HasDefault && !defaultMatches(f) {
			return rest.Configf(d.Name, "field %q default %v does not match type %q", f.Name, f.Default, f.Type)
		}
	}
	if d.PrimaryKey == "" {
		return rest.Configf(d.Name, "descriptor has no primary key")
	}
	if !seen[d.PrimaryKey] {
		return rest.Configf(d.Name, "primary key %q is not a declared field", d.PrimaryKey)
	}
	return nil
}

// defaultMatches reports whether a declared default carries the field type's
// native representation, the same one request bodies coerce to.
func defaultMatches(f Field) bool {
	if f.Default == nil {
		return f.Nullable
	}
	switch f.Type {
	case Integer:
		_, ok := f.Default.(int64)
		return ok
	case Float:
		_, ok := f.Default.(float64)
		return ok
	case Boolean:
		_, ok := f.Default.(bool)
		return ok
	case Text:
		_, ok := f.Default.(string)
		return ok
	case Timestamp:
		_, ok := f.Default.(time.Time)
		return ok
	}
	return false
}

// Field returns the named field, or nil.
func (d *Descriptor) Field(name string) *Field {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// KeyField returns the primary-key field.
func (d *Descriptor) KeyField() *Field {
	return d.Field(d.PrimaryKey)
}

// PathSegment returns the default mount path derived from the resource name.
func (d *Descriptor) PathSegment() string {
	return "/" + strings.ToLower(d.Name)
}

// ParseKey converts a raw path parameter into the primary key's native type.
func (d *Descriptor) ParseKey(raw string) (any, error) {
	kf := d.KeyField()
	if kf.Type == Integer {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, rest.Validationf(d.PrimaryKey, "invalid key %q", raw)
		}
		return n, nil
	}
	return raw, nil
}
