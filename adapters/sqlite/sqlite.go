// Package sqlite provides the embedded file-based implementation of the
// storage port. Tables are created from descriptors at Bind time; SQL text is
// derived from the descriptor, never from request data.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Storage implements ports.Storage over a SQLite database file.
type Storage struct {
	db    *sql.DB
	idgen ports.IDGenerator
}

// Open creates a new SQLite-backed store at path. WAL and a busy timeout keep
// concurrent request handling from tripping over the single writer.
func Open(path string, idgen ports.IDGenerator) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	return &Storage{db: db, idgen: idgen}, nil
}

// Bind creates the resource's table if it does not exist.
func (s *Storage) Bind(ctx context.Context, d *model.Descriptor) error {
	cols := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		cols = append(cols, columnDef(d, f))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident(d.Name), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("bind %s: %w", d.Name, err)
	}
	return nil
}

// Insert stores a new record and returns it with the generated key.
func (s *Storage) Insert(ctx context.Context, d *model.Descriptor, fields model.Record) (model.Record, error) {
	names := make([]string, 0, len(fields)+1)
	marks := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)

	// Text primary keys are generated here; integer keys by the backend.
	if d.KeyField().Type == model.Text {
		names = append(names, ident(d.PrimaryKey))
		marks = append(marks, "?")
		args = append(args, s.idgen.New())
	}
	for _, f := range d.Fields {
		if f.Name == d.PrimaryKey {
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		names = append(names, ident(f.Name))
		marks = append(marks, "?")
		args = append(args, v)
	}

	// A pk-only descriptor leaves the column list empty.
	q := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", ident(d.Name))
	if len(names) > 0 {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			ident(d.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}

	var key any
	if d.KeyField().Type == model.Integer {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		key = id
	} else {
		key = args[0]
	}
	return s.Get(ctx, d, key)
}

// Get retrieves one record by primary key.
func (s *Storage) Get(ctx context.Context, d *model.Descriptor, key any) (model.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		selectList(d), ident(d.Name), ident(d.PrimaryKey))
	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, rest.ErrNotFound
	}
	return scanRecord(d, rows)
}

// List retrieves every record ordered by primary key.
func (s *Storage) List(ctx context.Context, d *model.Descriptor) ([]model.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		selectList(d), ident(d.Name), ident(d.PrimaryKey))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		rec, err := scanRecord(d, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Replace overwrites every non-key field of an existing record.
func (s *Storage) Replace(ctx context.Context, d *model.Descriptor, key any, fields model.Record) (model.Record, error) {
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range d.Fields {
		if f.Name == d.PrimaryKey {
			continue
		}
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, ident(f.Name)+" = ?")
		args = append(args, v)
	}
	args = append(args, key)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		ident(d.Name), strings.Join(sets, ", "), ident(d.PrimaryKey))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, rest.ErrNotFound
	}
	return s.Get(ctx, d, key)
}

// Merge mutates only the supplied fields of an existing record.
func (s *Storage) Merge(ctx context.Context, d *model.Descriptor, key any, partial model.Record) (model.Record, error) {
	if len(partial) == 0 {
		return s.Get(ctx, d, key)
	}
	return s.Replace(ctx, d, key, partial)
}

// Delete removes a record, reporting whether it existed.
func (s *Storage) Delete(ctx context.Context, d *model.Descriptor, key any) (bool, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ident(d.Name), ident(d.PrimaryKey))
	res, err := s.db.ExecContext(ctx, q, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database connection.
func (s *Storage) Close() error { return s.db.Close() }

func columnDef(d *model.Descriptor, f model.Field) string {
	var b strings.Builder
	b.WriteString(ident(f.Name))
	switch f.Type {
	case model.Integer:
		b.WriteString(" INTEGER")
	case model.Float:
		b.WriteString(" REAL")
	case model.Boolean:
		b.WriteString(" BOOLEAN")
	case model.Timestamp:
		b.WriteString(" DATETIME")
	default:
		b.WriteString(" TEXT")
	}
	if f.Name == d.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if f.Type == model.Integer {
			b.WriteString(" AUTOINCREMENT")
		}
		return b.String()
	}
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func selectList(d *model.Descriptor) string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = ident(f.Name)
	}
	return strings.Join(names, ", ")
}

func scanRecord(d *model.Descriptor, rows *sql.Rows) (model.Record, error) {
	dests := make([]any, len(d.Fields))
	for i := range dests {
		dests[i] = new(any)
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}
	rec := make(model.Record, len(d.Fields))
	for i, f := range d.Fields {
		rec[f.Name] = fromSQL(f, *dests[i].(*any))
	}
	return rec, nil
}

// fromSQL converts driver values to the record's native representation.
// SQLite reports booleans as integers unless the column was declared BOOLEAN.
func fromSQL(f model.Field, v any) any {
	if v == nil {
		return nil
	}
	switch f.Type {
	case model.Boolean:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		}
	case model.Text:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

func mapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &rest.ConstraintViolation{Err: err}
	}
	return err
}

// ident quotes an identifier. Descriptor names come from registration, not
// from requests, but quoting keeps reserved words usable as field names.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Ensure interface compliance.
var _ ports.Storage = (*Storage)(nil)
