package dialect

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passThrough(err error, msg string) error {
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func newMySQLCatalog(t *testing.T) (*Catalog, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := database.NewSQLConn(context.Background(), db, passThrough)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewCatalog(MustFor(MySQL), conn), mock
}

// The MySQL text protocol hands information_schema strings back as []byte.
func TestMySQLCatalog_DescribeTable(t *testing.T) {
	c, mock := newMySQLCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "column_type", "is_nullable", "column_key", "column_default", "extra"}).
			AddRow([]byte("id"), []byte("int"), []byte("NO"), []byte("PRI"), nil, []byte("auto_increment")).
			AddRow([]byte("name"), []byte("varchar(255)"), []byte("YES"), []byte(""), nil, []byte("")).
			AddRow([]byte("created_at"), []byte("timestamp"), []byte("YES"), []byte("MUL"), []byte("CURRENT_TIMESTAMP"), []byte("DEFAULT_GENERATED")))

	cols, err := c.DescribeTable(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, ColumnDescriptor{Field: "id", Type: "int", Nullable: false, IsKey: true, Extra: "auto_increment"}, cols[0])
	assert.True(t, cols[1].Nullable)
	assert.False(t, cols[2].IsKey)
	require.NotNil(t, cols[2].Default)
	assert.Equal(t, "CURRENT_TIMESTAMP", *cols[2].Default)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCatalog_SearchTablesCountsEachMatch(t *testing.T) {
	c, mock := newMySQLCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(table_name) LIKE ?")).
		WithArgs("%user%").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow([]byte("user_profiles")).
			AddRow([]byte("users")))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `user_profiles`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(10)))

	got, err := c.SearchTables(context.Background(), "User")
	require.NoError(t, err)
	assert.Equal(t, []TableCount{{"user_profiles", 4}, {"users", 10}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A case-insensitive collation may let the LIKE prefilter return names
// that do not contain the keyword in Go's sense; those are dropped.
func TestMySQLCatalog_SearchTablesRefiltersClientSide(t *testing.T) {
	c, mock := newMySQLCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(table_name) LIKE ?")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow([]byte("orders")))

	got, err := c.SearchTables(context.Background(), "user")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCatalog_DatabaseInfo(t *testing.T) {
	c, mock := newMySQLCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DATABASE(), VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"DATABASE()", "VERSION()"}).
			AddRow([]byte("shop"), []byte("8.0.36")))

	info, err := c.DatabaseInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Dialect: "MySQL", Database: "shop", Version: "8.0.36"}, info)
}

func TestMySQLCatalog_ListTablesPropagatesErrors(t *testing.T) {
	c, mock := newMySQLCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WillReturnError(assert.AnError)

	_, err := c.ListTables(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}
