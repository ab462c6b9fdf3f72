package dialect

import "github.com/koustreak/sqlgate/internal/database"

type mysqlAdapter struct{}

const (
	mysqlListTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	mysqlSearchTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema      = DATABASE()
		  AND table_type        = 'BASE TABLE'
		  AND LOWER(table_name) LIKE ? ESCAPE '!'
		ORDER BY table_name`

	mysqlDescribeTable = `
		SELECT column_name,
		       column_type,
		       is_nullable,
		       column_key,
		       column_default,
		       extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	mysqlDatabaseInfo = `SELECT DATABASE(), VERSION()`
)

func (mysqlAdapter) Kind() Kind          { return MySQL }
func (mysqlAdapter) DisplayName() string { return "MySQL" }

func (mysqlAdapter) ListTables() Statement {
	return Statement{SQL: mysqlListTables}
}

func (mysqlAdapter) SearchTables(keyword string) Statement {
	return Statement{SQL: mysqlSearchTables, Args: []any{likePattern(keyword)}}
}

func (mysqlAdapter) DescribeTable(table string) (Statement, error) {
	if err := validateIdent(table, maxIdentMySQL); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: mysqlDescribeTable, Args: []any{table}}, nil
}

func (a mysqlAdapter) CountRows(table string) (Statement, error) {
	q, err := a.QuoteIdent(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) FROM " + q}, nil
}

func (mysqlAdapter) DatabaseInfo() Statement {
	return Statement{SQL: mysqlDatabaseInfo}
}

func (mysqlAdapter) QuoteIdent(name string) (string, error) {
	if err := validateIdent(name, maxIdentMySQL); err != nil {
		return "", err
	}
	return quoteWith(name, "`"), nil
}

func (mysqlAdapter) Placeholder(int) string { return "?" }

// decodeColumn reads one information_schema.columns row. Only PRI counts
// as a key; UNI and MUL are indexes, not identity.
func (mysqlAdapter) decodeColumn(vals []any) (ColumnDescriptor, error) {
	if len(vals) != 6 {
		return ColumnDescriptor{}, errColumnShape(len(vals), 6)
	}
	return ColumnDescriptor{
		Field:    database.AsString(vals[0]),
		Type:     database.AsString(vals[1]),
		Nullable: database.AsBool(vals[2]),
		IsKey:    database.AsString(vals[3]) == "PRI",
		Default:  database.AsNullString(vals[4]),
		Extra:    database.AsString(vals[5]),
	}, nil
}

func (mysqlAdapter) normalizeVersion(v string) string { return v }
