package dialect

import (
	"context"
	"strings"
	"testing"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticRows replays fixed values, decoded the way pgx decodes them.
type staticRows struct {
	cols []database.Column
	rows [][]any
	i    int
}

func (r *staticRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}
func (r *staticRows) Values() ([]any, error)     { return r.rows[r.i-1], nil }
func (r *staticRows) Columns() []database.Column { return r.cols }
func (r *staticRows) Close()                     {}
func (r *staticRows) Err() error                 { return nil }

// scriptedQueryer answers each statement by the first script key it
// contains, and records the arguments it was given.
type scriptedQueryer struct {
	script map[string][][]any
	args   [][]any
}

func (q *scriptedQueryer) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	q.args = append(q.args, args)
	for needle, rows := range q.script {
		if strings.Contains(sql, needle) {
			return &staticRows{rows: rows}, nil
		}
	}
	return &staticRows{}, nil
}

func TestPostgresCatalog_DescribeTable(t *testing.T) {
	q := &scriptedQueryer{script: map[string][][]any{
		"information_schema.columns": {
			{"id", "integer", false, "nextval('users_id_seq'::regclass)", true, "serial"},
			{"email", "character varying", false, nil, false, ""},
			{"created_at", "timestamp with time zone", true, "now()", false, ""},
		},
	}}
	c := NewCatalog(MustFor(PostgreSQL), q)

	cols, err := c.DescribeTable(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	def := "nextval('users_id_seq'::regclass)"
	assert.Equal(t, ColumnDescriptor{Field: "id", Type: "integer", IsKey: true, Default: &def, Extra: "serial"}, cols[0])
	assert.False(t, cols[1].Nullable)
	assert.Nil(t, cols[1].Default)
	assert.True(t, cols[2].Nullable)
	assert.False(t, cols[2].IsKey)

	assert.Equal(t, []any{"users"}, q.args[0], "table name is bound, not interpolated")
}

func TestPostgresCatalog_DatabaseInfoTrimsVersion(t *testing.T) {
	q := &scriptedQueryer{script: map[string][][]any{
		"current_database()": {
			{"events", "PostgreSQL 16.2 on x86_64-pc-linux-gnu, compiled by gcc (GCC) 12.2.0, 64-bit"},
		},
	}}

	info, err := NewCatalog(MustFor(PostgreSQL), q).DatabaseInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Dialect: "PostgreSQL", Database: "events", Version: "PostgreSQL 16.2 on x86_64-pc-linux-gnu"}, info)
}

func TestPostgresCatalog_CountQuotesIdentifier(t *testing.T) {
	q := &scriptedQueryer{script: map[string][][]any{
		`SELECT COUNT(*) FROM "Orders"`: {{int64(42)}},
	}}

	n, err := NewCatalog(MustFor(PostgreSQL), q).CountRows(context.Background(), "Orders")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

// countFailsQueryer lists tables but fails every COUNT(*).
type countFailsQueryer struct {
	tables []string
}

func (q *countFailsQueryer) Query(_ context.Context, sql string, _ ...any) (database.Rows, error) {
	if strings.Contains(sql, "COUNT(*)") {
		return nil, errs.New(errs.ErrKindQueryFailed, "permission denied for table")
	}
	rows := make([][]any, len(q.tables))
	for i, name := range q.tables {
		rows[i] = []any{name}
	}
	return &staticRows{rows: rows}, nil
}

func TestPostgresCatalog_SearchNamesFailingTable(t *testing.T) {
	q := &countFailsQueryer{tables: []string{"audit_log"}}

	_, err := NewCatalog(MustFor(PostgreSQL), q).SearchTables(context.Background(), "audit")
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, `count "audit_log": permission denied for table`, errs.MessageOf(err))
}
