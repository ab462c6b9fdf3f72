package dialect

import (
	"strings"
	"testing"

	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in       string
		expected Kind
	}{
		{"mysql", MySQL},
		{"MySQL", MySQL},
		{"postgresql", PostgreSQL},
		{"postgres", PostgreSQL},
		{"sqlite", SQLite},
		{" sqlite3 ", SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, k)
		})
	}

	_, err := ParseKind("oracle")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestFor_EveryKind(t *testing.T) {
	for _, k := range []Kind{MySQL, PostgreSQL, SQLite} {
		a, err := For(k)
		require.NoError(t, err)
		assert.Equal(t, k, a.Kind())
	}

	_, err := For(KindUnknown)
	assert.Error(t, err)
	_, err = For(Kind(42))
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{MySQL, "`order_items`"},
		{PostgreSQL, `"order_items"`},
		{SQLite, `"order_items"`},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			q, err := MustFor(tt.kind).QuoteIdent("order_items")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}

func TestQuoteIdent_RejectsUnsafeNames(t *testing.T) {
	bad := []string{
		"",
		"users; DROP TABLE users",
		"users`",
		`users"`,
		"1users",
		"public.users",
		"users--",
		"ta ble",
	}
	for _, k := range []Kind{MySQL, PostgreSQL, SQLite} {
		a := MustFor(k)
		for _, name := range bad {
			_, err := a.QuoteIdent(name)
			assert.True(t, errs.IsInvalidInput(err), "%s: %q", k, name)

			_, err = a.CountRows(name)
			assert.True(t, errs.IsInvalidInput(err), "%s: %q", k, name)

			_, err = a.DescribeTable(name)
			assert.True(t, errs.IsInvalidInput(err), "%s: %q", k, name)
		}
	}
}

func TestQuoteIdent_LengthLimits(t *testing.T) {
	_, err := MustFor(PostgreSQL).QuoteIdent(strings.Repeat("a", 63))
	assert.NoError(t, err)
	_, err = MustFor(PostgreSQL).QuoteIdent(strings.Repeat("a", 64))
	assert.Error(t, err)

	_, err = MustFor(MySQL).QuoteIdent(strings.Repeat("a", 64))
	assert.NoError(t, err)
	_, err = MustFor(MySQL).QuoteIdent(strings.Repeat("a", 65))
	assert.Error(t, err)
}

func TestCountRows_Statement(t *testing.T) {
	st, err := MustFor(MySQL).CountRows("users")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM `users`", st.SQL)
	assert.Empty(t, st.Args)

	st, err = MustFor(PostgreSQL).CountRows("users")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "users"`, st.SQL)
}

func TestDescribeTable_BindsTableName(t *testing.T) {
	for _, k := range []Kind{MySQL, PostgreSQL, SQLite} {
		st, err := MustFor(k).DescribeTable("users")
		require.NoError(t, err)
		assert.Equal(t, []any{"users"}, st.Args, k.String())
		assert.NotContains(t, st.SQL, "users", k.String())
	}
}

func TestSearchTables_EscapesLikeMetacharacters(t *testing.T) {
	st := MustFor(SQLite).SearchTables("User_%")
	assert.Equal(t, []any{"%user!_!%%"}, st.Args)

	st = MustFor(PostgreSQL).SearchTables("")
	assert.Equal(t, []any{"%%"}, st.Args)
	assert.Contains(t, st.SQL, "$1")
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", MustFor(MySQL).Placeholder(3))
	assert.Equal(t, "$3", MustFor(PostgreSQL).Placeholder(3))
	assert.Equal(t, "?", MustFor(SQLite).Placeholder(1))
}

func TestPostgresNormalizeVersion(t *testing.T) {
	v := postgresAdapter{}.normalizeVersion("PostgreSQL 16.2 on x86_64-pc-linux-gnu, compiled by gcc 12.2.0, 64-bit")
	assert.Equal(t, "PostgreSQL 16.2 on x86_64-pc-linux-gnu", v)
	assert.Equal(t, "8.0.36", mysqlAdapter{}.normalizeVersion("8.0.36"))
}
