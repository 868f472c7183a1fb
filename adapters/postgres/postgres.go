// Package postgres provides the client/server SQL implementation of the
// storage port, using the pgx driver through database/sql. It mirrors the
// sqlite adapter with PostgreSQL DDL and placeholder syntax.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// Storage implements ports.Storage over a PostgreSQL connection pool.
type Storage struct {
	db    *sql.DB
	idgen ports.IDGenerator
}

// Open creates a PostgreSQL-backed store from a connection string.
func Open(dsn string, idgen ports.IDGenerator) (*Storage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
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
	args := make([]any, 0, len(fields)+1)

	if d.KeyField().Type == model.Text {
		names = append(names, ident(d.PrimaryKey))
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
		args = append(args, v)
	}

	marks := make([]string, len(names))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	// A pk-only descriptor leaves the column list empty.
	q := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
		ident(d.Name), ident(d.PrimaryKey))
	if len(names) > 0 {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			ident(d.Name), strings.Join(names, ", "), strings.Join(marks, ", "), ident(d.PrimaryKey))
	}
	var key any
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&key); err != nil {
		return nil, mapError(err)
	}
	return s.Get(ctx, d, key)
}

// Get retrieves one record by primary key.
func (s *Storage) Get(ctx context.Context, d *model.Descriptor, key any) (model.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
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
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(f.Name), len(args)))
	}
	args = append(args, key)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		ident(d.Name), strings.Join(sets, ", "), ident(d.PrimaryKey), len(args))
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
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(d.Name), ident(d.PrimaryKey))
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

// Close closes the connection pool.
func (s *Storage) Close() error { return s.db.Close() }

func columnDef(d *model.Descriptor, f model.Field) string {
	var b strings.Builder
	b.WriteString(ident(f.Name))
	if f.Name == d.PrimaryKey && f.Type == model.Integer {
		b.WriteString(" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY")
		return b.String()
	}
	switch f.Type {
	case model.Integer:
		b.WriteString(" BIGINT")
	case model.Float:
		b.WriteString(" DOUBLE PRECISION")
	case model.Boolean:
		b.WriteString(" BOOLEAN")
	case model.Timestamp:
		b.WriteString(" TIMESTAMPTZ")
	default:
		b.WriteString(" TEXT")
	}
	if f.Name == d.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
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
		v := *dests[i].(*any)
		if b, ok := v.([]byte); ok && f.Type == model.Text {
			v = string(b)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// mapError converts unique-violation errors (SQLSTATE 23505) to the shared
// constraint taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &rest.ConstraintViolation{Err: err}
	}
	return err
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Ensure interface compliance.
var _ ports.Storage = (*Storage)(nil)
