// Package memory provides an in-memory implementation of the storage port.
// It is the default backend when no connection string is configured, and the
// workhorse of the test suite. Data does not survive the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Storage implements ports.Storage with maps under a mutex. Unique
// constraints are enforced with secondary indexes per unique field.
type Storage struct {
	mu     sync.RWMutex
	tables map[string]*table
	idgen  ports.IDGenerator
}

type table struct {
	desc    *model.Descriptor
	rows    map[any]model.Record
	order   []any                  // live keys, ascending
	unique  map[string]map[any]any // field -> value -> pk
	nextKey int64                  // auto-increment for integer keys
}

// New creates an empty in-memory store. The ID generator supplies keys for
// resources with a text primary key.
func New(idgen ports.IDGenerator) *Storage {
	return &Storage{tables: make(map[string]*table), idgen: idgen}
}

// Bind prepares a table for the resource.
func (s *Storage) Bind(_ context.Context, d *model.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[d.Name]; ok {
		return nil
	}
	t := &table{
		desc:   d,
		rows:   make(map[any]model.Record),
		unique: make(map[string]map[any]any),
	}
	for _, f := range d.Fields {
		if f.Unique && f.Name != d.PrimaryKey {
			t.unique[f.Name] = make(map[any]any)
		}
	}
	s.tables[d.Name] = t
	return nil
}

// Insert stores a new record under a generated key.
func (s *Storage) Insert(_ context.Context, d *model.Descriptor, fields model.Record) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(d)
	if err != nil {
		return nil, err
	}

	var key any
	if d.KeyField().Type == model.Integer {
		t.nextKey++
		key = t.nextKey
	} else {
		key = s.idgen.New()
	}

	if err := t.checkUnique(fields, key); err != nil {
		return nil, err
	}

	rec := make(model.Record, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec[d.PrimaryKey] = key

	t.rows[key] = rec
	t.insertOrdered(key)
	t.index(rec, key)
	return clone(rec), nil
}

// Get retrieves one record by key.
func (s *Storage) Get(_ context.Context, d *model.Descriptor, key any) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(d)
	if err != nil {
		return nil, err
	}
	rec, ok := t.rows[key]
	if !ok {
		return nil, rest.ErrNotFound
	}
	return clone(rec), nil
}

// List returns every record ordered by primary key ascending. Generated text
// keys do not arrive in insertion order, so the key list is kept sorted.
func (s *Storage) List(_ context.Context, d *model.Descriptor) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(d)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, clone(t.rows[key]))
	}
	return out, nil
}

// Replace overwrites every non-key field of an existing record.
func (s *Storage) Replace(_ context.Context, d *model.Descriptor, key any, fields model.Record) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(d)
	if err != nil {
		return nil, err
	}
	old, ok := t.rows[key]
	if !ok {
		return nil, rest.ErrNotFound
	}

	rec := make(model.Record, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec[d.PrimaryKey] = key

	if err := t.checkUnique(rec, key); err != nil {
		return nil, err
	}
	t.unindex(old)
	t.rows[key] = rec
	t.index(rec, key)
	return clone(rec), nil
}

// Merge mutates only the supplied fields of an existing record.
func (s *Storage) Merge(_ context.Context, d *model.Descriptor, key any, partial model.Record) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(d)
	if err != nil {
		return nil, err
	}
	old, ok := t.rows[key]
	if !ok {
		return nil, rest.ErrNotFound
	}

	rec := clone(old)
	for k, v := range partial {
		rec[k] = v
	}
	if err := t.checkUnique(rec, key); err != nil {
		return nil, err
	}
	t.unindex(old)
	t.rows[key] = rec
	t.index(rec, key)
	return clone(rec), nil
}

// Delete removes a record, reporting whether it existed.
func (s *Storage) Delete(_ context.Context, d *model.Descriptor, key any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(d)
	if err != nil {
		return false, err
	}
	rec, ok := t.rows[key]
	if !ok {
		return false, nil
	}
	t.unindex(rec)
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *Storage) Close() error { return nil }

func (s *Storage) table(d *model.Descriptor) (*table, error) {
	t, ok := s.tables[d.Name]
	if !ok {
		return nil, rest.ErrNotFound
	}
	return t, nil
}

// insertOrdered places key into the order slice, keeping it ascending.
func (t *table) insertOrdered(key any) {
	i := sort.Search(len(t.order), func(i int) bool { return keyLess(key, t.order[i]) })
	t.order = append(t.order, nil)
	copy(t.order[i+1:], t.order[i:])
	t.order[i] = key
}

// keyLess compares two keys of the same table; integer and text primary keys
// never mix within one resource.
func keyLess(a, b any) bool {
	if x, ok := a.(int64); ok {
		y, _ := b.(int64)
		return x < y
	}
	x, _ := a.(string)
	y, _ := b.(string)
	return x < y
}

func (t *table) checkUnique(rec model.Record, selfKey any) error {
	for field, idx := range t.unique {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		if owner, taken := idx[v]; taken && owner != selfKey {
			return &rest.ConstraintViolation{Field: field}
		}
	}
	return nil
}

func (t *table) index(rec model.Record, key any) {
	for field, idx := range t.unique {
		if v, ok := rec[field]; ok && v != nil {
			idx[v] = key
		}
	}
}

func (t *table) unindex(rec model.Record) {
	for field, idx := range t.unique {
		if v, ok := rec[field]; ok && v != nil {
			delete(idx, v)
		}
	}
}

func clone(rec model.Record) model.Record {
	out := make(model.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// Ensure interface compliance.
var _ ports.Storage = (*Storage)(nil)
