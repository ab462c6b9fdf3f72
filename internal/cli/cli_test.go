package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/sqlgate/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// writeRegistry seeds a SQLite database and a registry pointing at it,
// plus a "broken" entry whose file does not exist.
func writeRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "shop.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE users (id int PRIMARY KEY, email text NOT NULL)`,
		`INSERT INTO users VALUES (1, 'ada@example.com'), (2, 'grace@example.com')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	regPath := filepath.Join(dir, "sqlgate.yaml")
	reg := "default: {type: sqlite, path: '" + dbPath + "'}\n" +
		"broken: {type: sqlite, path: '" + filepath.Join(dir, "missing.db") + "'}\n"
	require.NoError(t, os.WriteFile(regPath, []byte(reg), 0o600))
	return regPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error", "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_Table(t *testing.T) {
	reg := writeRegistry(t)

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{"tables", []string{"tables"}, []string{"users"}},
		{"describe", []string{"describe", "users"}, []string{"email", "TEXT", "PRI"}},
		{"count", []string{"count", "users"}, []string{"2"}},
		{"info", []string{"info"}, []string{"SQLite", "shop.db"}},
		{"search", []string{"search", "USE"}, []string{"users", "2"}},
		{"stats", []string{"stats"}, []string{"users", "2"}},
		{"configs", []string{"configs"}, []string{"default", "broken", "sqlite"}},
		{"schema", []string{"schema", "users"}, []string{"# Database schema", "## users"}},
		{"query", []string{"query", "SELECT email FROM users ORDER BY id"}, []string{"ada@example.com", "(2 rows)"}},
		{"query limit", []string{"query", "-n", "1", "SELECT email FROM users ORDER BY id"}, []string{"ada@example.com", "(1 rows)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "", append([]string{"--config", reg}, tt.args...)...)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestQuery_JSONOutput(t *testing.T) {
	reg := writeRegistry(t)

	out, err := run(t, "", "-c", reg, "-o", "json", "query", "SELECT id FROM users ORDER BY id")
	require.NoError(t, err)

	var resp struct {
		OK   bool                `json:"ok"`
		Data gateway.QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.Data.RowCount)
	assert.Equal(t, "SELECT id FROM users ORDER BY id LIMIT 1000", resp.Data.SQL)
}

func TestQuery_FromStdin(t *testing.T) {
	reg := writeRegistry(t)

	out, err := run(t, "SELECT COUNT(*) AS n FROM users", "-c", reg, "query", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 rows)")
}

func TestQuery_RejectedIsAnError(t *testing.T) {
	reg := writeRegistry(t)

	_, err := run(t, "", "-c", reg, "query", "DROP TABLE users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write_operation_rejected")

	// JSON output still prints the response before failing.
	out, err := run(t, "", "-c", reg, "-o", "json", "query", "SELECT 1; SELECT 2")
	require.Error(t, err)
	assert.Contains(t, out, `"multi_statement_rejected"`)
}

func TestCall(t *testing.T) {
	reg := writeRegistry(t)

	out, err := run(t, `{"kind":"row_count","table":"users"}`, "-c", reg, "call")
	require.NoError(t, err)

	var resp gateway.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, float64(2), resp.Data)

	_, err = run(t, "", "-c", reg, "call", `{"kind":"list_tables","extra":1}`)
	assert.Error(t, err)
}

func TestSelectDatabase(t *testing.T) {
	reg := writeRegistry(t)

	_, err := run(t, "", "-c", reg, "-d", "broken", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection_error")

	_, err = run(t, "", "-c", reg, "-d", "nope", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config_not_found")
}

func TestCheck(t *testing.T) {
	reg := writeRegistry(t)

	out, err := run(t, "", "-c", reg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "broken")

	out, err = run(t, "", "-c", reg, "check", "--connect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "connection_error")
}

func TestSetupErrors(t *testing.T) {
	reg := writeRegistry(t)

	_, err := run(t, "", "-c", filepath.Join(t.TempDir(), "absent.yaml"), "tables")
	assert.Error(t, err)

	_, err = run(t, "", "-c", reg, "-o", "xml", "tables")
	assert.Error(t, err)

	_, err = run(t, "", "-c", reg, "--default-limit", "0", "tables")
	assert.Error(t, err)
}
