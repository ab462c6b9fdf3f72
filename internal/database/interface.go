package database

import "context"

// Queryer runs a statement that returns rows. Everything that only reads
// (catalog lookups, user queries) depends on this and nothing wider.
type Queryer interface {
	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Conn is the central contract for one open database connection.
// All layers above this package talk only to this interface;
// they never import the postgres, mysql or sqlite packages directly.
//
// A Conn is NOT safe for concurrent use; the connection manager
// serializes access per configuration.
type Conn interface {
	Queryer

	// Ping verifies the connection is still usable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Column describes one column of a result set.
type Column struct {
	Name string

	// DatabaseType is the engine's type name, upper-cased for MySQL and
	// SQLite ("DECIMAL", "BLOB") and as pgx reports it for PostgreSQL
	// ("numeric", "timestamptz"). Empty when the driver cannot tell.
	DatabaseType string
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Values returns the current row's values as the driver decoded them.
	Values() ([]any, error)

	// Columns returns the result set's column descriptors.
	Columns() []Column

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// ErrorMapper translates a driver's native error into *errs.Error.
type ErrorMapper func(err error, msg string) error
