package dialect

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
)

type postgresAdapter struct{}

const (
	pgListTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	pgSearchTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema      = current_schema()
		  AND table_type        = 'BASE TABLE'
		  AND LOWER(table_name) LIKE $1 ESCAPE '!'
		ORDER BY table_name`

	pgDescribeTable = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			CASE
				WHEN c.is_identity = 'YES'              THEN 'identity'
				WHEN c.column_default LIKE 'nextval(%'  THEN 'serial'
				ELSE ''
			END                                AS extra
		FROM information_schema.columns c

		-- Primary key check
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = current_schema()
			  AND tc.table_name   = $1
		) pk ON pk.column_name = c.column_name

		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`

	pgDatabaseInfo = `SELECT current_database(), version()`
)

func (postgresAdapter) Kind() Kind          { return PostgreSQL }
func (postgresAdapter) DisplayName() string { return "PostgreSQL" }

func (postgresAdapter) ListTables() Statement {
	return Statement{SQL: pgListTables}
}

func (postgresAdapter) SearchTables(keyword string) Statement {
	return Statement{SQL: pgSearchTables, Args: []any{likePattern(keyword)}}
}

func (postgresAdapter) DescribeTable(table string) (Statement, error) {
	if err := validateIdent(table, maxIdentPostgres); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: pgDescribeTable, Args: []any{table}}, nil
}

func (a postgresAdapter) CountRows(table string) (Statement, error) {
	q, err := a.QuoteIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) FROM " + q}, nil
}

func (postgresAdapter) DatabaseInfo() Statement {
	return Statement{SQL: pgDatabaseInfo}
}

func (postgresAdapter) QuoteIdent(name string) (string, error) {
	if err := validateIdent(name, maxIdentPostgres); err != nil {
		return "", err
	}
	return quoteWith(name, `"`), nil
}

func (postgresAdapter) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresAdapter) decodeColumn(vals []any) (ColumnDescriptor, error) {
	if len(vals) != 6 {
		return ColumnDescriptor{}, errColumnShape(len(vals), 6)
	}
	return ColumnDescriptor{
		Field:    database.AsString(vals[0]),
		Type:     database.AsString(vals[1]),
		Nullable: database.AsBool(vals[2]),
		Default:  database.AsNullString(vals[3]),
		IsKey:    database.AsBool(vals[4]),
		Extra:    database.AsString(vals[5]),
	}, nil
}

// normalizeVersion keeps "PostgreSQL 16.2 on x86_64-pc-linux-gnu" and
// drops the compiler details after the first comma.
func (postgresAdapter) normalizeVersion(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return strings.TrimSpace(v[:i])
	}
	return v
}
