package validator

import "github.com/koustreak/sqlgate/internal/dialect"

// writeKeywords may not appear as a clause anywhere in a query.
// INTO, MERGE, CALL, COPY, ATTACH, DETACH, VACUUM and REINDEX close
// SELECT … INTO and engine-specific side doors.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"REPLACE":  true,
	"GRANT":    true,
	"REVOKE":   true,
	"MERGE":    true,
	"CALL":     true,
	"COPY":     true,
	"INTO":     true,
	"ATTACH":   true,
	"DETACH":   true,
	"VACUUM":   true,
	"REINDEX":  true,
}

// leadingKeywords are the only words a statement may start with.
var leadingKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// limitKeywords mark an existing row limit when found at depth zero.
// Only PostgreSQL has FETCH FIRST; elsewhere fetch is an ordinary name.
var limitKeywords = map[dialect.Kind]map[string]bool{
	dialect.MySQL:      {"LIMIT": true},
	dialect.PostgreSQL: {"LIMIT": true, "FETCH": true},
	dialect.SQLite:     {"LIMIT": true},
}

// Functions with side effects outside the transaction, or that stall the
// single shared session. Lower-case.
var forbiddenFuncs = map[dialect.Kind]map[string]bool{
	dialect.MySQL: {
		"sleep":        true,
		"benchmark":    true,
		"get_lock":     true,
		"release_lock": true,
		"load_file":    true,
	},
	dialect.PostgreSQL: {
		"pg_sleep":              true,
		"pg_sleep_for":          true,
		"pg_sleep_until":        true,
		"pg_read_file":          true,
		"pg_read_binary_file":   true,
		"pg_ls_dir":             true,
		"pg_terminate_backend":  true,
		"pg_cancel_backend":     true,
		"pg_advisory_lock":      true,
		"pg_reload_conf":        true,
		"lo_import":             true,
		"lo_export":             true,
		"dblink":                true,
		"dblink_exec":           true,
		"set_config":            true,
		"nextval":               true,
		"setval":                true,
		"txid_current":          true,
		"pg_advisory_xact_lock": true,
	},
	dialect.SQLite: {
		"load_extension": true,
		"writefile":      true,
		"readfile":       true,
		"edit":           true,
		"fts3_tokenizer": true,
	},
}
