package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) Option {
	return WithLookup(func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

const sample = `
default:
  type: mysql
  host: db.internal
  user: reporter
  password: ${DB_PASSWORD}
  database: shop
analytics:
  dialect: postgres
  host: warehouse.internal
  port: ${PG_PORT}
  user: analyst
  database: events
  sslmode: require
local:
  type: sqlite3
  database: ./data/local.db
`

func TestLoad(t *testing.T) {
	r, err := Load([]byte(sample), env(map[string]string{"DB_PASSWORD": "s3cr3t", "PG_PORT": "6432"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "analytics", "local"}, r.Names())
	assert.Equal(t, 3, r.Len())

	def, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Entry{
		Name:     "default",
		Dialect:  dialect.MySQL,
		Host:     "db.internal",
		Port:     3306,
		User:     "reporter",
		Password: "s3cr3t",
		Database: "shop",
	}, def)

	pg, err := r.Resolve("analytics")
	require.NoError(t, err)
	assert.Equal(t, dialect.PostgreSQL, pg.Dialect)
	assert.Equal(t, 6432, pg.Port)
	assert.Equal(t, "require", pg.SSLMode)
	assert.Equal(t, "warehouse.internal:6432/events", pg.Target())

	lite, err := r.Resolve("local")
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, lite.Dialect)
	assert.Equal(t, "./data/local.db", lite.Path)
	assert.Zero(t, lite.Port)
}

func TestLoad_JSON(t *testing.T) {
	src := `{"default": {"type": "postgresql", "host": "h", "port": 5433, "user": "u", "password": "", "database": "d",
	          "params": {"application_name": "sqlgate", "connect_timeout": 5}}}`

	r, err := Load([]byte(src))
	require.NoError(t, err)

	e, err := r.Resolve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, 5433, e.Port)
	assert.Equal(t, map[string]string{"application_name": "sqlgate", "connect_timeout": "5"}, e.Params)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind errs.ErrKind
	}{
		{"malformed", "default: [", errs.ErrKindConfigParse},
		{"empty document", "", errs.ErrKindConfigParse},
		{"top level is a list", "- a\n- b\n", errs.ErrKindConfigParse},
		{"empty mapping", "{}", errs.ErrKindConfigParse},
		{"entry not a mapping", "default: mysql\n", errs.ErrKindConfigParse},
		{"unknown dialect", "default: {type: oracle, host: h, user: u, database: d}", errs.ErrKindConfigParse},
		{"no dialect", "default: {host: h, user: u, database: d}", errs.ErrKindConfigParse},
		{"dialects disagree", "default: {type: mysql, dialect: sqlite, path: x.db}", errs.ErrKindConfigParse},
		{"non-numeric port", "default: {type: mysql, host: h, port: abc, user: u, database: d}", errs.ErrKindConfigParse},
		{"port out of range", "default: {type: mysql, host: h, port: 70000, user: u, database: d}", errs.ErrKindConfigParse},
		{"missing host", "default: {type: mysql, user: u, database: d}", errs.ErrKindConfigParse},
		{"sqlite without path", "default: {type: sqlite}", errs.ErrKindConfigParse},
		{"duplicate name", "a: {type: sqlite, path: x}\na: {type: sqlite, path: y}\n", errs.ErrKindConfigParse},
		{"unset variable", "default: {type: mysql, host: h, user: u, password: '${NOPE}', database: d}", errs.ErrKindEnvVarUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.src), env(nil))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err), err.Error())
		})
	}
}

func TestLoad_UnresolvedVariableIsNamed(t *testing.T) {
	_, err := Load([]byte("default: {type: mysql, host: h, user: u, password: '${DB_PASSWORD}', database: d}"), env(nil))
	require.Error(t, err)
	assert.True(t, errs.IsEnvVarUnresolved(err))
	assert.Contains(t, err.Error(), "DB_PASSWORD")
	assert.Contains(t, err.Error(), `"default"`)
}

func TestInterpolation(t *testing.T) {
	vars := map[string]string{"HOST": "db", "EMPTY": "", "USER": "ro"}
	src := `
default:
  type: mysql
  host: ${HOST}.internal
  user: ${USER}
  password: ${EMPTY}
  database: p$ss_$HOST
  params:
    tls: ${HOST}
`
	r, err := Load([]byte(src), env(vars))
	require.NoError(t, err)

	e, err := r.Resolve("default")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", e.Host)
	assert.Equal(t, "ro", e.User)
	assert.Equal(t, "", e.Password, "set-but-empty resolves to empty")
	assert.Equal(t, "p$ss_$HOST", e.Database, "bare $NAME is not a reference")
	assert.Equal(t, "db", e.Params["tls"])
}

func TestResolve_Unknown(t *testing.T) {
	r, err := Load([]byte("warehouse: {type: sqlite, path: w.db}"))
	require.NoError(t, err)

	_, err = r.Resolve("missing")
	assert.True(t, errs.IsConfigNotFound(err))

	// No implicit default unless one is defined.
	_, err = r.Resolve("")
	assert.True(t, errs.IsConfigNotFound(err))
}

func TestNames_ReturnsCopy(t *testing.T) {
	r, err := Load([]byte("a: {type: sqlite, path: a.db}\nb: {type: sqlite, path: b.db}\n"))
	require.NoError(t, err)

	names := r.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestEntry_DatabaseConfig(t *testing.T) {
	e := Entry{
		Dialect:  dialect.PostgreSQL,
		Host:     "h",
		Port:     5432,
		User:     "u",
		Password: "p",
		Database: "d",
		SSLMode:  "disable",
		Params:   map[string]string{"application_name": "sqlgate"},
	}

	cfg := e.DatabaseConfig(3 * time.Second)
	assert.Equal(t, "h", cfg.Host)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 3*time.Second, cfg.Timeout())

	cfg.Params["application_name"] = "changed"
	assert.Equal(t, "sqlgate", e.Params["application_name"])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: {type: sqlite, path: local.db}\n"), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, r.Names())

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errs.IsNotFound(err))
}

func TestReadSource_RemoteNeedsStore(t *testing.T) {
	_, err := ReadSource(context.Background(), "s3://cfg/sqlgate.yaml", nil)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = ReadSource(context.Background(), "s3://cfg", nil)
	assert.True(t, errs.IsInvalidInput(err))
}

// bucketStore serves a single object.
type bucketStore struct {
	bucket, key string
	body        string
}

func (b *bucketStore) Ping(context.Context) error { return nil }
func (b *bucketStore) Close() error               { return nil }

func (b *bucketStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if bucket != b.bucket || key != b.key {
		return nil, errs.Newf(errs.ErrKindNotFound, "%s/%s not found", bucket, key)
	}
	return &filestore.ObjectInfo{Key: key, Size: int64(len(b.body))}, nil
}

func (b *bucketStore) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	info, err := b.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &bucketObject{ReadCloser: io.NopCloser(strings.NewReader(b.body)), info: info}, nil
}

type bucketObject struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *bucketObject) Info() *filestore.ObjectInfo { return o.info }

func TestLoadSource_Remote(t *testing.T) {
	store := &bucketStore{
		bucket: "cfg",
		key:    "prod/sqlgate.yaml",
		body:   `default:
  type: postgres
  host: db
  user: app
  password: ${PGPASS}
  database: events
`,
	}

	r, err := LoadSource(context.Background(), "s3://cfg/prod/sqlgate.yaml", store, env(map[string]string{"PGPASS": "s3cret"}))
	require.NoError(t, err)
	e, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", e.Password)
	assert.Equal(t, 5432, e.Port)

	_, err = LoadSource(context.Background(), "s3://cfg/other.yaml", store)
	assert.True(t, errs.IsNotFound(err))
}
