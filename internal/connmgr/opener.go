package connmgr

import (
	"context"
	"time"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/mysql"
	"github.com/koustreak/sqlgate/internal/database/postgres"
	"github.com/koustreak/sqlgate/internal/database/sqlite"
	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
)

// DriverOpener opens entries with the engine driver for their dialect.
// Every driver returns a session that is read-only on the server side.
func DriverOpener(connectTimeout time.Duration) Opener {
	return func(ctx context.Context, entry config.Entry) (database.Conn, error) {
		cfg := entry.DatabaseConfig(connectTimeout)
		switch entry.Dialect {
		case dialect.MySQL:
			return mysql.Open(ctx, cfg)
		case dialect.PostgreSQL:
			return postgres.Open(ctx, cfg)
		case dialect.SQLite:
			return sqlite.Open(ctx, cfg)
		}
		return nil, errs.Newf(errs.ErrKindInvalidInput, "no driver for dialect %s", entry.Dialect)
	}
}
