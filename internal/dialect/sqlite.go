package dialect

import "github.com/koustreak/sqlgate/internal/database"

type sqliteAdapter struct{}

const (
	// sqlite_sequence, sqlite_stat1 etc. are engine bookkeeping.
	sqliteListTables = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite!_%' ESCAPE '!'
		ORDER BY name`

	sqliteSearchTables = `
		SELECT name
		FROM sqlite_master
		WHERE type        = 'table'
		  AND name        NOT LIKE 'sqlite!_%' ESCAPE '!'
		  AND LOWER(name) LIKE ? ESCAPE '!'
		ORDER BY name`

	sqliteDescribeTable = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	sqliteDatabaseInfo = `
		SELECT file, sqlite_version()
		FROM pragma_database_list
		WHERE name = 'main'`
)

func (sqliteAdapter) Kind() Kind          { return SQLite }
func (sqliteAdapter) DisplayName() string { return "SQLite" }

func (sqliteAdapter) ListTables() Statement {
	return Statement{SQL: sqliteListTables}
}

func (sqliteAdapter) SearchTables(keyword string) Statement {
	return Statement{SQL: sqliteSearchTables, Args: []any{likePattern(keyword)}}
}

func (sqliteAdapter) DescribeTable(table string) (Statement, error) {
	if err := validateIdent(table, maxIdentSQLite); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sqliteDescribeTable, Args: []any{table}}, nil
}

func (a sqliteAdapter) CountRows(table string) (Statement, error) {
	q, err := a.QuoteIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) FROM " + q}, nil
}

func (sqliteAdapter) DatabaseInfo() Statement {
	return Statement{SQL: sqliteDatabaseInfo}
}

func (sqliteAdapter) QuoteIdent(name string) (string, error) {
	if err := validateIdent(name, maxIdentSQLite); err != nil {
		return "", err
	}
	return quoteWith(name, `"`), nil
}

func (sqliteAdapter) Placeholder(int) string { return "?" }

// decodeColumn maps a pragma_table_info row. pk is the 1-based position
// within the primary key, 0 for non-key columns.
func (sqliteAdapter) decodeColumn(vals []any) (ColumnDescriptor, error) {
	if len(vals) != 5 {
		return ColumnDescriptor{}, errColumnShape(len(vals), 5)
	}
	notNull, err := database.AsInt64(vals[2])
	if err != nil {
		return ColumnDescriptor{}, errColumnValue("notnull", err)
	}
	pk, err := database.AsInt64(vals[4])
	if err != nil {
		return ColumnDescriptor{}, errColumnValue("pk", err)
	}
	return ColumnDescriptor{
		Field:    database.AsString(vals[0]),
		Type:     database.AsString(vals[1]),
		Nullable: notNull == 0,
		IsKey:    pk > 0,
		Default:  database.AsNullString(vals[3]),
	}, nil
}

func (sqliteAdapter) normalizeVersion(v string) string { return v }
