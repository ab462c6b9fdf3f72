package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

const defaultPort = 5432

// sessionSetup runs on every physical connection the pool creates.
const sessionSetup = "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"

// Driver is a PostgreSQL implementation of database.Conn backed by a
// pgxpool capped at one connection, so that exactly one backend session
// exists per configuration.
type Driver struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func Open(ctx context.Context, cfg *database.Config) (database.Conn, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0
	poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout()
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, sessionSetup)
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	pool, err := pgxpool.NewWithConfig(openCtx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}

	d := &Driver{pool: pool}

	if err := d.Ping(openCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// buildDSN renders a postgres:// URL; url.UserPassword takes care of
// escaping credentials.
func buildDSN(cfg *database.Config) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	switch {
	case cfg.SSLMode != "":
		q.Set("sslmode", cfg.SSLMode)
	case q.Get("sslmode") == "":
		q.Set("sslmode", "prefer")
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// --- database.Conn implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows, cols: describeFields(rows)}, nil
}

// describeFields resolves each result column's type OID to its name
// through the connection's type map ("numeric", "timestamptz", "_int4").
func describeFields(rows pgx.Rows) []database.Column {
	fields := rows.FieldDescriptions()
	cols := make([]database.Column, len(fields))
	for i, f := range fields {
		cols[i] = database.Column{Name: f.Name}
		if conn := rows.Conn(); conn != nil {
			if t, ok := conn.TypeMap().TypeForOID(f.DataTypeOID); ok {
				cols[i].DatabaseType = t.Name
			}
		}
	}
	return cols
}

// --- pgx type wrappers ---

type pgxRows struct {
	rows pgx.Rows
	cols []database.Column
}

func (r *pgxRows) Next() bool                 { return r.rows.Next() }
func (r *pgxRows) Columns() []database.Column { return r.cols }
func (r *pgxRows) Close()                     { r.rows.Close() }

func (r *pgxRows) Values() ([]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, mapError(err, "failed to decode row")
	}
	return vals, nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}

// --- error mapping ---

// PostgreSQL SQLSTATE codes and classes with special handling.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassAuthorization    = "28"
	pgQueryCanceled         = "57014"
	pgInsufficientPrivilege = "42501"
)

// mapError translates pgx errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == pgQueryCanceled:
		return errs.ErrKindTimeout
	case code == pgInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case len(code) >= 2 && (code[:2] == pgClassConnection || code[:2] == pgClassAuthorization):
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
