package model

import (
	"math"
	"time"

	"github.com/iklobato/lightapi/domain/rest"
)

// CheckCreate validates a Create body against the descriptor: unknown fields
// and the primary key are rejected, fields that are neither nullable nor
// defaulted must be present, and declared defaults fill the gaps. The returned
// record is fully coerced and ready for Storage.Insert.
func (d *Descriptor) CheckCreate(body Record) (Record, error) {
	return d.checkFull(body)
}

// CheckReplace validates an Update (full replace) body. Fields with declared
// defaults are optional and reset to their default when omitted; everything
// else follows CheckCreate.
func (d *Descriptor) CheckReplace(body Record) (Record, error) {
	return d.checkFull(body)
}

// CheckMerge validates a Patch body: any subset of non-key fields is accepted,
// unknown fields are rejected before anything is applied.
func (d *Descriptor) CheckMerge(body Record) (Record, error) {
	if err := d.checkKnown(body); err != nil {
		return nil, err
	}
	out := make(Record, len(body))
	for name, raw := range body {
		f := d.Field(name)
		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (d *Descriptor) checkFull(body Record) (Record, error) {
	if err := d.checkKnown(body); err != nil {
		return nil, err
	}
	out := make(Record, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == d.PrimaryKey {
			continue
		}
		raw, present := body[f.Name]
		switch {
		case present:
			v, err := coerce(&f, raw)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		case f.HasDefault:
			out[f.Name] = f.Default
		case f.Nullable:
			out[f.Name] = nil
		default:
			return nil, rest.Validationf(f.Name, "required field missing")
		}
	}
	return out, nil
}

func (d *Descriptor) checkKnown(body Record) error {
	for name := range body {
		if name == d.PrimaryKey {
			return rest.Validationf(name, "primary key is read-only")
		}
		if d.Field(name) == nil {
			return rest.Validationf(name, "unknown field")
		}
	}
	return nil
}

// coerce converts a JSON-decoded value to the field's native representation.
func coerce(f *Field, raw any) (any, error) {
	if raw == nil {
		if !f.Nullable {
			return nil, rest.Validationf(f.Name, "null not allowed")
		}
		return nil, nil
	}
	switch f.Type {
	case Integer:
		n, ok := raw.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, rest.Validationf(f.Name, "expected integer")
		}
		return int64(n), nil
	case Float:
		n, ok := raw.(float64)
		if !ok {
			return nil, rest.Validationf(f.Name, "expected number")
		}
		return n, nil
	case Boolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, rest.Validationf(f.Name, "expected boolean")
		}
		return b, nil
	case Text:
		s, ok := raw.(string)
		if !ok {
			return nil, rest.Validationf(f.Name, "expected string")
		}
		return s, nil
	case Timestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, rest.Validationf(f.Name, "expected RFC 3339 timestamp")
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, rest.Validationf(f.Name, "expected RFC 3339 timestamp")
		}
		return t.UTC(), nil
	}
	return nil, rest.Validationf(f.Name, "unknown field type %q", f.Type)
}
