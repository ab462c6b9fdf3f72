package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// TableCount pairs a table with its row count.
type TableCount struct {
	Table    string `json:"tableName"`
	RowCount int64  `json:"rowCount"`
}

// Catalog runs an Adapter's statements over a connection and decodes the
// results. The orchestration is shared; only statements and row decoding
// differ per engine.
type Catalog struct {
	adapter Adapter
	q       database.Queryer
}

// NewCatalog binds adapter to q. q is used for the Catalog's lifetime and
// must not be shared with another goroutine meanwhile.
func NewCatalog(adapter Adapter, q database.Queryer) *Catalog {
	return &Catalog{adapter: adapter, q: q}
}

// Adapter returns the adapter the catalog was built with.
func (c *Catalog) Adapter() Adapter { return c.adapter }

// ListTables returns user table names ordered by name.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	st := c.adapter.ListTables()
	rows, err := c.q.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	return database.Strings(rows)
}

// DescribeTable returns the table's columns in ordinal order. A table with
// no visible columns is reported as missing.
func (c *Catalog) DescribeTable(ctx context.Context, table string) ([]ColumnDescriptor, error) {
	st, err := c.adapter.DescribeTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := c.q.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make([]ColumnDescriptor, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		col, err := c.adapter.decodeColumn(vals)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("table %q does not exist", table))
	}
	return cols, nil
}

// CountRows returns SELECT COUNT(*) for table.
func (c *Catalog) CountRows(ctx context.Context, table string) (int64, error) {
	st, err := c.adapter.CountRows(table)
	if err != nil {
		return 0, err
	}
	vals, err := c.queryOne(ctx, st)
	if err != nil {
		return 0, err
	}
	n, err := database.AsInt64(vals[0])
	if err != nil {
		return 0, errColumnValue("count", err)
	}
	return n, nil
}

// SearchTables returns every table whose name contains keyword
// (case-insensitive) together with its row count.
//
// Each match costs one COUNT(*) round trip and there is no pagination;
// on schemas with thousands of matching tables prefer ListTables.
func (c *Catalog) SearchTables(ctx context.Context, keyword string) ([]TableCount, error) {
	st := c.adapter.SearchTables(keyword)
	rows, err := c.q.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	names, err := database.Strings(rows)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	out := make([]TableCount, 0, len(names))
	for _, name := range names {
		// The LIKE prefilter depends on server collation; this is the
		// authoritative check.
		if !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		n, err := c.CountRows(ctx, name)
		if err != nil {
			return nil, errs.Wrap(errs.KindOf(err), fmt.Sprintf("count %q", name), err)
		}
		out = append(out, TableCount{Table: name, RowCount: n})
	}
	return out, nil
}

// DatabaseInfo reports the engine, active database and server version.
func (c *Catalog) DatabaseInfo(ctx context.Context) (Info, error) {
	vals, err := c.queryOne(ctx, c.adapter.DatabaseInfo())
	if err != nil {
		return Info{}, err
	}
	if len(vals) != 2 {
		return Info{}, errColumnShape(len(vals), 2)
	}
	return Info{
		Dialect:  c.adapter.DisplayName(),
		Database: database.AsString(vals[0]),
		Version:  c.adapter.normalizeVersion(database.AsString(vals[1])),
	}, nil
}

func (c *Catalog) queryOne(ctx context.Context, st Statement) ([]any, error) {
	rows, err := c.q.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errs.New(errs.ErrKindQueryFailed, "statement returned no rows")
	}
	vals, err := rows.Values()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, errColumnShape(0, 1)
	}
	return vals, nil
}

// --- decoding errors ---

func errColumnShape(got, want int) error {
	return errs.New(errs.ErrKindQueryFailed,
		fmt.Sprintf("unexpected metadata shape: %d columns, want %d", got, want))
}

func errColumnValue(col string, cause error) error {
	return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("unexpected %s value", col), cause)
}
