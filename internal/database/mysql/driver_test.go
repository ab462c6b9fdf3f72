package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConfig(t *testing.T) {
	mc := buildConfig(&database.Config{
		Host:           "db.internal",
		User:           "reader",
		Password:       "p@ss:word",
		Database:       "shop",
		ConnectTimeout: 3 * time.Second,
		Params:         map[string]string{"charset": "utf8mb4"},
	})

	assert.Equal(t, "db.internal:3306", mc.Addr)
	assert.True(t, mc.ParseTime)
	assert.False(t, mc.MultiStatements)
	assert.Equal(t, 3*time.Second, mc.Timeout)

	dsn := mc.FormatDSN()
	assert.Contains(t, dsn, "tcp(db.internal:3306)/shop")
	assert.Contains(t, dsn, "parseTime=true")
	assert.NotContains(t, dsn, "multiStatements")

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
}

func TestOpen_SetsSessionReadOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("SET SESSION TRANSACTION READ ONLY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectClose()

	conn, err := open(context.Background(), db)
	require.NoError(t, err)

	rows, err := conn.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	res, err := database.Collect(rows, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	require.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SessionSetupRefused(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("SET SESSION TRANSACTION READ ONLY").
		WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied for user 'reader'"})
	mock.ExpectClose()

	_, err = open(context.Background(), db)
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Contains(t, err.Error(), "Access denied")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected errs.ErrKind
	}{
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, errs.ErrKindConnectionFailed},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, errs.ErrKindConnectionFailed},
		{"syntax error", &mysql.MySQLError{Number: 1064, Message: "You have an error"}, errs.ErrKindQueryFailed},
		{"missing table", &mysql.MySQLError{Number: 1146, Message: "Table 'shop.nope' doesn't exist"}, errs.ErrKindQueryFailed},
		{"max execution time", &mysql.MySQLError{Number: 3024, Message: "maximum statement execution time exceeded"}, errs.ErrKindTimeout},
		{"select denied", &mysql.MySQLError{Number: 1142, Message: "SELECT command denied"}, errs.ErrKindPermissionDenied},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"bad conn", mysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "query failed")
			require.Error(t, err)
			assert.Equal(t, tt.expected, errs.KindOf(err))
			assert.True(t, errors.Is(err, tt.err))
		})
	}

	assert.NoError(t, mapError(nil, "ignored"))
}
