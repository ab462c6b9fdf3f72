// Package gateway is the request entry point of sqlgate.
//
// A Request names a configuration and an operation. Handle validates it,
// leases the configuration's connection, runs the dialect-specific SQL
// and returns a Response. Handle never returns an error or panics: every
// failure becomes a Response carrying an error kind and message.
package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/connmgr"
	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/validator"
)

// DefaultQueryTimeout bounds every request unless overridden.
const DefaultQueryTimeout = 30 * time.Second

// Kind selects the operation of a Request.
type Kind string

const (
	KindListTables     Kind = "list_tables"
	KindDescribeTable  Kind = "describe_table"
	KindExecuteQuery   Kind = "execute_query"
	KindRowCount       Kind = "row_count"
	KindDatabaseInfo   Kind = "database_info"
	KindSearchTables   Kind = "search_tables"
	KindListConfigs    Kind = "list_configs"
	KindSchemaOverview Kind = "schema_overview"
	KindDatabaseStats  Kind = "database_stats"
)

// Kinds lists every supported operation.
var Kinds = []Kind{
	KindListTables, KindDescribeTable, KindExecuteQuery, KindRowCount,
	KindDatabaseInfo, KindSearchTables, KindListConfigs, KindSchemaOverview,
	KindDatabaseStats,
}

// Request is one operation against one configuration. Which of Table,
// SQL, Limit and Keyword matter depends on Kind.
type Request struct {
	ConfigName string `json:"config,omitempty"` // "" means "default"
	Kind       Kind   `json:"kind"`
	Table      string `json:"table,omitempty"`
	SQL        string `json:"sql,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
}

// Response carries either Data or Error.
//
// Data by kind:
//
//	list_tables      []string
//	describe_table   []dialect.ColumnDescriptor
//	execute_query    *QueryResult
//	row_count        int64
//	database_info    dialect.Info
//	search_tables    []dialect.TableCount
//	list_configs     []ConfigSummary
//	schema_overview  string (markdown)
//	database_stats   dialect.Stats
type Response struct {
	OK        bool   `json:"ok"`
	Kind      Kind   `json:"kind"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// Error is the structured failure payload.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Registry is the part of *config.Registry the gateway reads.
type Registry interface {
	Resolve(name string) (config.Entry, error)
	Names() []string
}

// Gateway executes requests. It is safe for concurrent use; per-config
// serialization happens in the connection manager.
type Gateway struct {
	registry     Registry
	conns        *connmgr.Manager
	log          *logger.Logger
	queryTimeout time.Duration
	validators   map[dialect.Kind]*validator.Validator

	defaultLimit int
	maxLimit     int
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithQueryTimeout bounds each request, including the wait for a busy
// connection. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.queryTimeout = d
		}
	}
}

// WithLimits sets the default row limit and the optional cap (0 = none).
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(g *Gateway) {
		g.defaultLimit = defaultLimit
		g.maxLimit = maxLimit
	}
}

// New wires a Gateway. The registry and manager are owned by the caller,
// which is also responsible for conns.CloseAll at shutdown.
func New(registry Registry, conns *connmgr.Manager, opts ...Option) *Gateway {
	g := &Gateway{
		registry:     registry,
		conns:        conns,
		log:          logger.Nop(),
		queryTimeout: DefaultQueryTimeout,
		defaultLimit: validator.DefaultLimit,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.validators = make(map[dialect.Kind]*validator.Validator, 3)
	for _, k := range []dialect.Kind{dialect.MySQL, dialect.PostgreSQL, dialect.SQLite} {
		g.validators[k] = validator.New(k,
			validator.WithDefaultLimit(g.defaultLimit),
			validator.WithMaxLimit(g.maxLimit))
	}
	return g
}

type requestLoggerKey struct{}

// loggerFor returns the request-scoped logger Handle stored in ctx, or
// the gateway's own logger for direct method calls.
func (g *Gateway) loggerFor(ctx context.Context) *logger.Logger {
	if l, ok := ctx.Value(requestLoggerKey{}).(*logger.Logger); ok {
		return l
	}
	return g.log
}

// Handle runs req and always returns a Response.
func (g *Gateway) Handle(ctx context.Context, req Request) (resp Response) {
	id := uuid.NewString()
	configName := req.ConfigName
	if configName == "" {
		configName = config.DefaultName
	}
	log := g.log.With().
		Str("request_id", id).
		Str("kind", string(req.Kind)).
		Str("config", configName).
		Logger()
	ctx = context.WithValue(ctx, requestLoggerKey{}, log)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.ErrorWith("panic while handling request", fmt.Errorf("%v", r), map[string]interface{}{
				"stack": string(debug.Stack()),
			})
			resp = failure(id, req.Kind, errs.Newf(errs.ErrKindUnknown, "internal error: %v", r))
		}

		fields := map[string]interface{}{
			"ok":       resp.OK,
			"duration": time.Since(start).String(),
		}
		if resp.Error != nil {
			fields["error_kind"] = resp.Error.Kind
			log.InfoWith("request failed", fields)
			return
		}
		log.InfoWith("request completed", fields)
	}()

	data, err := g.dispatch(ctx, req)
	if err != nil {
		return failure(id, req.Kind, err)
	}
	return Response{OK: true, Kind: req.Kind, RequestID: id, Data: data}
}

func (g *Gateway) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Kind {
	case KindListTables:
		return g.ListTables(ctx, req.ConfigName)
	case KindDescribeTable:
		return g.DescribeTable(ctx, req.ConfigName, req.Table)
	case KindExecuteQuery:
		return g.ExecuteQuery(ctx, req.ConfigName, req.SQL, req.Limit)
	case KindRowCount:
		return g.RowCount(ctx, req.ConfigName, req.Table)
	case KindDatabaseInfo:
		return g.DatabaseInfo(ctx, req.ConfigName)
	case KindSearchTables:
		return g.SearchTables(ctx, req.ConfigName, req.Keyword)
	case KindListConfigs:
		return g.ListConfigs()
	case KindSchemaOverview:
		return g.SchemaOverview(ctx, req.ConfigName, req.Table)
	case KindDatabaseStats:
		return g.DatabaseStats(ctx, req.ConfigName)
	case "":
		return nil, errs.New(errs.ErrKindInvalidInput, "request kind is required")
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown request kind %q", req.Kind)
	}
}

func failure(id string, kind Kind, err error) Response {
	return Response{
		Kind:      kind,
		RequestID: id,
		Error: &Error{
			Kind:    errs.KindOf(err).String(),
			Message: errs.MessageOf(err),
		},
	}
}
