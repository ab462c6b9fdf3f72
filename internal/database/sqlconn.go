package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// SQLConn adapts a database/sql handle to Conn. It pins one physical
// connection with (*sql.DB).Conn so that session settings applied at open
// time stay in effect for every later statement.
//
// Used by the MySQL and SQLite drivers.
type SQLConn struct {
	db     *sql.DB
	conn   *sql.Conn
	mapErr ErrorMapper
}

// NewSQLConn takes ownership of db, pins a connection and runs each setup
// statement on it. On any failure db is closed before returning.
func NewSQLConn(ctx context.Context, db *sql.DB, mapErr ErrorMapper, setup ...string) (*SQLConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, mapErr(err, "failed to open connection")
	}

	for _, stmt := range setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, mapErr(err, "session setup failed")
		}
	}

	return &SQLConn{db: db, conn: conn, mapErr: mapErr}, nil
}

// --- Conn implementation ---

func (c *SQLConn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return c.mapErr(err, "ping failed")
	}
	return nil
}

func (c *SQLConn) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}

func (c *SQLConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.mapErr(err, "query failed")
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, c.mapErr(err, "failed to read column types")
	}
	cols := make([]Column, len(types))
	for i, t := range types {
		cols[i] = Column{Name: t.Name(), DatabaseType: strings.ToUpper(t.DatabaseTypeName())}
	}

	return &sqlRows{rows: rows, cols: cols, mapErr: c.mapErr}, nil
}

// --- sql.Rows wrapper ---

type sqlRows struct {
	rows   *sql.Rows
	cols   []Column
	mapErr ErrorMapper
}

func (r *sqlRows) Next() bool        { return r.rows.Next() }
func (r *sqlRows) Columns() []Column { return r.cols }
func (r *sqlRows) Close()            { _ = r.rows.Close() }

func (r *sqlRows) Values() ([]any, error) {
	dest := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, r.mapErr(err, "failed to scan row")
	}
	return dest, nil
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapErr(err, "error during row iteration")
	}
	return nil
}
