package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

const defaultPort = 3306

// sessionSetup runs once on the pinned connection. The server then
// refuses writes even if something slips past statement validation.
var sessionSetup = []string{
	"SET SESSION TRANSACTION READ ONLY",
}

// Open connects to MySQL and returns a single pinned, read-only connection.
func Open(ctx context.Context, cfg *database.Config) (database.Conn, error) {
	connector, err := mysql.NewConnector(buildConfig(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	return open(openCtx, sql.OpenDB(connector))
}

func open(ctx context.Context, db *sql.DB) (database.Conn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return database.NewSQLConn(ctx, db, mapError, sessionSetup...)
}

// buildConfig maps a database.Config onto the driver's own config so that
// passwords and database names never need DSN escaping.
func buildConfig(cfg *database.Config) *mysql.Config {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.MultiStatements = false
	mc.Timeout = cfg.Timeout()
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	// Anything that is not a server error is a transport problem:
	// dial, TLS, handshake or mysql.ErrInvalidConn.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1046, 1049:
		return errs.ErrKindConnectionFailed
	case 1040, 1203:
		return errs.ErrKindConnectionFailed
	case 1317, 3024:
		return errs.ErrKindTimeout
	case 1142, 1143:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
