// Package dialect normalises schema introspection across the three
// supported engines. Each engine has exactly one Adapter; the set is closed
// (the interface carries unexported methods) and For switches over every
// Kind, so adding an engine is a compile-visible change.
package dialect

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/errs"
)

// Kind identifies a SQL engine.
type Kind int

const (
	KindUnknown Kind = iota
	MySQL
	PostgreSQL
	SQLite
)

func (k Kind) String() string {
	switch k {
	case MySQL:
		return "mysql"
	case PostgreSQL:
		return "postgresql"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// ParseKind accepts the canonical names plus the common aliases
// "postgres" and "sqlite3". Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql":
		return MySQL, nil
	case "postgresql", "postgres":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return KindUnknown, errs.Newf(errs.ErrKindInvalidInput, "unsupported dialect %q", s)
}

// Statement is SQL ready to run plus its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// ColumnDescriptor is one field of a table's schema.
type ColumnDescriptor struct {
	Field    string  `json:"field"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	IsKey    bool    `json:"isKey"`
	Default  *string `json:"default"`
	Extra    string  `json:"extra"`
}

// Info is the result of DatabaseInfo.
type Info struct {
	Dialect  string `json:"dialect"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

// Adapter builds the metadata statements for one engine.
// Implementations: mysqlAdapter, postgresAdapter, sqliteAdapter.
type Adapter interface {
	Kind() Kind

	// DisplayName is the engine's product name ("MySQL", "PostgreSQL", "SQLite").
	DisplayName() string

	// ListTables lists user base tables of the active database/schema, ordered by name.
	ListTables() Statement

	// SearchTables is ListTables narrowed to names containing keyword, case-insensitively.
	SearchTables(keyword string) Statement

	// DescribeTable returns one row per column in ordinal order.
	DescribeTable(table string) (Statement, error)

	// CountRows returns a single-row COUNT(*) over table.
	CountRows(table string) (Statement, error)

	// DatabaseInfo returns a single row: database name, version string.
	DatabaseInfo() Statement

	// QuoteIdent validates name and wraps it in the engine's identifier quotes.
	QuoteIdent(name string) (string, error)

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string

	decodeColumn(vals []any) (ColumnDescriptor, error)
	normalizeVersion(v string) string
}

var (
	_ Adapter = mysqlAdapter{}
	_ Adapter = postgresAdapter{}
	_ Adapter = sqliteAdapter{}
)

// For returns the Adapter for k.
func For(k Kind) (Adapter, error) {
	switch k {
	case MySQL:
		return mysqlAdapter{}, nil
	case PostgreSQL:
		return postgresAdapter{}, nil
	case SQLite:
		return sqliteAdapter{}, nil
	case KindUnknown:
		return nil, errs.New(errs.ErrKindInvalidInput, "dialect not set")
	}
	return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported dialect %d", int(k)))
}

// MustFor is For for callers holding an already validated Kind.
func MustFor(k Kind) Adapter {
	a, err := For(k)
	if err != nil {
		panic(err)
	}
	return a
}

// likePattern escapes LIKE metacharacters in keyword using '!' as the
// escape character and wraps it in '%…%'. The keyword is lower-cased to
// match LOWER(name).
func likePattern(keyword string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(keyword)) + "%"
}
