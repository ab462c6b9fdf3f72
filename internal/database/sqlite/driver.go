package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open opens the SQLite file at cfg.Path read-only and returns a single
// pinned connection.
//
// The file must already exist: opening a missing path would otherwise
// create an empty database. Writes are refused twice over, by mode=ro on
// the URI and by PRAGMA query_only on the session.
func Open(ctx context.Context, cfg *database.Config) (database.Conn, error) {
	if cfg.Path == "" {
		return nil, errs.New(errs.ErrKindConnectionFailed, "sqlite database path is required")
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid sqlite path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("cannot open %s", abs), err)
	}
	if info.IsDir() {
		return nil, errs.New(errs.ErrKindConnectionFailed, fmt.Sprintf("%s is a directory", abs))
	}

	db, err := sql.Open("sqlite", buildDSN(abs, cfg.Params))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	conn, err := database.NewSQLConn(openCtx, db, mapError, "PRAGMA query_only = ON")
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(openCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// buildDSN renders a file: URI. Extra params are passed through so that
// callers can set e.g. _pragma=busy_timeout(5000); mode is always ro.
func buildDSN(path string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Add(k, v)
	}
	q.Set("mode", "ro")
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: q.Encode()}
	return u.String()
}

// --- error mapping ---

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classifySQLiteCode(sqliteErr.Code()), msg, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifySQLiteCode maps a (possibly extended) result code to ErrKind.
func classifySQLiteCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return errs.ErrKindConnectionFailed
	case sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
