// Package dbtest provides a scripted in-memory db.Database for repository
// tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"gradeflow/internal/common/db"
)

// Call is one statement received by the fake.
type Call struct {
	Query string
	Args  []interface{}
}

// Response scripts the answer to statements containing Match.
type Response struct {
	Match        string
	Rows         [][]interface{}
	Err          error
	LastInsertID int64
	RowsAffected int64
	// Times limits how often the response is used; 0 means unlimited.
	Times int
}

// DB is a fake db.Database. Responses are matched in order by substring of
// the whitespace-normalized query.
type DB struct {
	mu        sync.Mutex
	responses []*Response
	calls     []Call
	commits   int
	rollbacks int
}

func New() *DB {
	return &DB{}
}

// On registers a response and returns it for further tuning.
func (d *DB) On(match string, rows ...[]interface{}) *Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &Response{Match: normalize(match), Rows: rows}
	d.responses = append(d.responses, r)
	return r
}

// Calls returns the recorded statements.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsMatching returns the recorded statements containing match.
func (d *DB) CallsMatching(match string) []Call {
	match = normalize(match)
	var out []Call
	for _, c := range d.Calls() {
		if strings.Contains(c.Query, match) {
			out = append(out, c)
		}
	}
	return out
}

// Commits and Rollbacks count finished transactions.
func (d *DB) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

func (d *DB) Rollbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollbacks
}

func (d *DB) respond(query string, args []interface{}) *Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := normalize(query)
	d.calls = append(d.calls, Call{Query: q, Args: args})
	for _, r := range d.responses {
		if r.Times < 0 || !strings.Contains(q, r.Match) {
			continue
		}
		if r.Times > 0 {
			r.Times--
			if r.Times == 0 {
				r.Times = -1
			}
		}
		return r
	}
	return &Response{}
}

func (d *DB) Query(_ context.Context, query string, args ...interface{}) (db.Rows, error) {
	r := d.respond(query, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return &rows{data: r.Rows, pos: -1}, nil
}

func (d *DB) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	r := d.respond(query, args)
	if r.Err != nil {
		return row{err: r.Err}
	}
	if len(r.Rows) == 0 {
		return row{err: sql.ErrNoRows}
	}
	return row{values: r.Rows[0]}
}

func (d *DB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	r := d.respond(query, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return result{id: r.LastInsertID, affected: r.RowsAffected}, nil
}

func (d *DB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := fn(&tx{db: d}); err != nil {
		d.mu.Lock()
		d.rollbacks++
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	d.commits++
	d.mu.Unlock()
	return nil
}

func (d *DB) Ping(context.Context) error { return nil }
func (d *DB) Close() error               { return nil }

type tx struct {
	db *DB
}

func (t *tx) Query(ctx context.Context, q string, args ...interface{}) (db.Rows, error) {
	return t.db.Query(ctx, q, args...)
}

func (t *tx) QueryRow(ctx context.Context, q string, args ...interface{}) db.Row {
	return t.db.QueryRow(ctx, q, args...)
}

func (t *tx) Exec(ctx context.Context, q string, args ...interface{}) (db.Result, error) {
	return t.db.Exec(ctx, q, args...)
}

func (t *tx) Commit() error   { return nil }
func (t *tx) Rollback() error { return nil }

type rows struct {
	data [][]interface{}
	pos  int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *rows) Scan(dest ...interface{}) error {
	return assign(r.data[r.pos], dest)
}

func (r *rows) Close() error { return nil }
func (r *rows) Err() error   { return nil }

type row struct {
	values []interface{}
	err    error
}

func (r row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type result struct {
	id       int64
	affected int64
}

func (r result) LastInsertId() (int64, error) { return r.id, nil }
func (r result) RowsAffected() (int64, error) { return r.affected, nil }

func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		if err := assignOne(v, dest[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

func assignOne(v, dest interface{}) error {
	switch d := dest.(type) {
	case *int64:
		n, ok := v.(int64)
		if !ok {
			if i, isInt := v.(int); isInt {
				n, ok = int64(i), true
			}
		}
		if !ok {
			return fmt.Errorf("cannot scan %T into *int64", v)
		}
		*d = n
	case *int:
		switch n := v.(type) {
		case int:
			*d = n
		case int64:
			*d = int(n)
		default:
			return fmt.Errorf("cannot scan %T into *int", v)
		}
	case *string:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into *string", v)
		}
		*d = s
	case *bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("cannot scan %T into *bool", v)
		}
		*d = b
	case *time.Time:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("cannot scan %T into *time.Time", v)
		}
		*d = t
	case *sql.NullTime:
		if v == nil {
			*d = sql.NullTime{}
			return nil
		}
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("cannot scan %T into *sql.NullTime", v)
		}
		*d = sql.NullTime{Time: t, Valid: true}
	case *sql.NullString:
		if v == nil {
			*d = sql.NullString{}
			return nil
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into *sql.NullString", v)
		}
		*d = sql.NullString{String: s, Valid: true}
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}

func normalize(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
