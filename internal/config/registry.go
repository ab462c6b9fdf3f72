// Package config loads the connection registry and process settings.
//
// The registry maps a configuration name to the parameters of one
// database. It is read once at startup and never changes afterwards;
// editing the source requires a restart.
//
// Example source (YAML; JSON is accepted too):
//
//	default:
//	  type: mysql
//	  host: db.internal
//	  user: reporter
//	  password: ${REPORTING_DB_PASSWORD}
//	  database: shop
//	analytics:
//	  dialect: postgres
//	  host: warehouse.internal
//	  port: 6432
//	  user: analyst
//	  database: events
//	  sslmode: require
//	local:
//	  type: sqlite
//	  path: ./data/local.db
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
	"go.yaml.in/yaml/v3"
)

// DefaultName is used when a request names no configuration.
const DefaultName = "default"

// Entry is one named database configuration after interpolation and
// validation.
type Entry struct {
	Name     string
	Dialect  dialect.Kind
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Path     string // SQLite only
	SSLMode  string // PostgreSQL only
	Params   map[string]string
}

// DatabaseConfig converts the entry into driver parameters.
func (e Entry) DatabaseConfig(connectTimeout time.Duration) *database.Config {
	params := make(map[string]string, len(e.Params))
	for k, v := range e.Params {
		params[k] = v
	}
	return &database.Config{
		Host:           e.Host,
		Port:           e.Port,
		User:           e.User,
		Password:       e.Password,
		Database:       e.Database,
		Path:           e.Path,
		SSLMode:        e.SSLMode,
		Params:         params,
		ConnectTimeout: connectTimeout,
	}
}

// Target describes where the entry points, without credentials.
func (e Entry) Target() string {
	if e.Dialect == dialect.SQLite {
		return e.Path
	}
	return e.Host + ":" + strconv.Itoa(e.Port) + "/" + e.Database
}

// Registry is an immutable set of entries. Safe for concurrent use.
type Registry struct {
	entries map[string]Entry
	names   []string // source order
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	lookup func(string) (string, bool)
}

// WithLookup replaces os.LookupEnv for ${NAME} interpolation.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(l *loader) { l.lookup = fn }
}

// rawEntry mirrors the source document. Port is a string so that
// "${DB_PORT}" and 5432 decode alike.
type rawEntry struct {
	Type     string            `yaml:"type"`
	Dialect  string            `yaml:"dialect"`
	Host     string            `yaml:"host"`
	Port     string            `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Path     string            `yaml:"path"`
	SSLMode  string            `yaml:"sslmode"`
	Params   map[string]string `yaml:"params"`
}

// Load parses a registry source. Errors are config_parse_error or
// env_var_unresolved.
func Load(src []byte, opts ...Option) (*Registry, error) {
	l := &loader{lookup: defaultLookup}
	for _, opt := range opts {
		opt(l)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigParse, "malformed registry source", err)
	}
	if len(doc.Content) == 0 {
		return nil, errs.New(errs.ErrKindConfigParse, "registry source is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errs.New(errs.ErrKindConfigParse, "registry source must map configuration names to entries")
	}

	r := &Registry{entries: make(map[string]Entry, len(root.Content)/2)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.TrimSpace(root.Content[i].Value)
		if name == "" {
			return nil, errs.Newf(errs.ErrKindConfigParse, "line %d: configuration name is empty", root.Content[i].Line)
		}
		if _, dup := r.entries[name]; dup {
			return nil, errs.Newf(errs.ErrKindConfigParse, "configuration %q is defined twice", name)
		}

		entry, err := l.decode(name, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		r.entries[name] = entry
		r.names = append(r.names, name)
	}

	if len(r.names) == 0 {
		return nil, errs.New(errs.ErrKindConfigParse, "registry source defines no configurations")
	}
	return r, nil
}

func (l *loader) decode(name string, node *yaml.Node) (Entry, error) {
	if node.Kind != yaml.MappingNode {
		return Entry{}, errs.Newf(errs.ErrKindConfigParse, "configuration %q must be a mapping", name)
	}
	if err := interpolate(node, l.lookup); err != nil {
		return Entry{}, errs.Wrap(errs.KindOf(err), "configuration "+strconv.Quote(name), err)
	}

	var raw rawEntry
	if err := node.Decode(&raw); err != nil {
		return Entry{}, errs.Wrap(errs.ErrKindConfigParse, "configuration "+strconv.Quote(name), err)
	}
	return raw.toEntry(name)
}

func (raw rawEntry) toEntry(name string) (Entry, error) {
	fail := func(format string, args ...any) (Entry, error) {
		return Entry{}, errs.Newf(errs.ErrKindConfigParse, "configuration %q: "+format, append([]any{name}, args...)...)
	}

	var kind dialect.Kind
	for _, spelled := range []string{raw.Type, raw.Dialect} {
		if spelled == "" {
			continue
		}
		k, err := dialect.ParseKind(spelled)
		if err != nil {
			return fail("unsupported type %q (mysql, postgresql, sqlite)", spelled)
		}
		if kind != dialect.KindUnknown && k != kind {
			return fail("type %q and dialect %q disagree", raw.Type, raw.Dialect)
		}
		kind = k
	}
	if kind == dialect.KindUnknown {
		return fail("type is required (mysql, postgresql, sqlite)")
	}

	e := Entry{
		Name:     name,
		Dialect:  kind,
		Host:     strings.TrimSpace(raw.Host),
		User:     raw.User,
		Password: raw.Password,
		Database: raw.Database,
		Path:     raw.Path,
		SSLMode:  raw.SSLMode,
		Params:   raw.Params,
	}

	if p := strings.TrimSpace(raw.Port); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return fail("port %q is not a valid port number", raw.Port)
		}
		e.Port = port
	}

	if err := e.validate(); err != nil {
		return fail("%s", errs.MessageOf(err))
	}
	return e, nil
}

// validate applies per-dialect requirements and defaults.
func (e *Entry) validate() error {
	switch e.Dialect {
	case dialect.MySQL, dialect.PostgreSQL:
		var missing []string
		for _, f := range []struct{ name, val string }{
			{"host", e.Host}, {"user", e.User}, {"database", e.Database},
		} {
			if f.val == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return errs.Newf(errs.ErrKindConfigParse, "missing required field(s): %s", strings.Join(missing, ", "))
		}
		if e.Port == 0 {
			e.Port = defaultPort(e.Dialect)
		}

	case dialect.SQLite:
		// Older sources put the file in "database".
		if e.Path == "" {
			e.Path = e.Database
		}
		if e.Path == "" {
			return errs.New(errs.ErrKindConfigParse, "missing required field: path")
		}
	}
	return nil
}

func defaultPort(k dialect.Kind) int {
	if k == dialect.PostgreSQL {
		return 5432
	}
	return 3306
}

// --- lookups ---

// Resolve returns the entry called name; "" means DefaultName.
func (r *Registry) Resolve(name string) (Entry, error) {
	if name == "" {
		name = DefaultName
	}
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, errs.Newf(errs.ErrKindConfigNotFound, "configuration %q does not exist", name)
	}
	return e, nil
}

// Names lists configuration names in source order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.names) }
