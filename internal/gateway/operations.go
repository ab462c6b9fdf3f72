package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/dialect"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/serializer"
)

// QueryResult is the Data of an execute_query response.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []serializer.Row `json:"rows"`
	RowCount  int              `json:"rowCount"`
	Truncated bool             `json:"truncated"`

	// SQL is the statement that actually ran, with any appended LIMIT.
	SQL string `json:"sql"`
}

// ConfigSummary describes one configuration without its credentials.
type ConfigSummary struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
	Target  string `json:"target"`
}

func (g *Gateway) ListTables(ctx context.Context, configName string) ([]string, error) {
	var out []string
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		out, err = c.ListTables(ctx)
		return err
	})
	return out, err
}

func (g *Gateway) DescribeTable(ctx context.Context, configName, table string) ([]dialect.ColumnDescriptor, error) {
	if err := requireArg("table", table); err != nil {
		return nil, err
	}
	var out []dialect.ColumnDescriptor
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		out, err = c.DescribeTable(ctx, table)
		return err
	})
	return out, err
}

func (g *Gateway) RowCount(ctx context.Context, configName, table string) (int64, error) {
	if err := requireArg("table", table); err != nil {
		return 0, err
	}
	var n int64
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		n, err = c.CountRows(ctx, table)
		return err
	})
	return n, err
}

func (g *Gateway) DatabaseInfo(ctx context.Context, configName string) (dialect.Info, error) {
	var info dialect.Info
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		info, err = c.DatabaseInfo(ctx)
		return err
	})
	return info, err
}

// SearchTables returns tables whose name contains keyword, with row
// counts. An empty keyword matches every table.
func (g *Gateway) SearchTables(ctx context.Context, configName, keyword string) ([]dialect.TableCount, error) {
	var out []dialect.TableCount
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		out, err = c.SearchTables(ctx, keyword)
		return err
	})
	return out, err
}

func (g *Gateway) DatabaseStats(ctx context.Context, configName string) (dialect.Stats, error) {
	var stats dialect.Stats
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, _ config.Entry) error {
		var err error
		stats, err = c.Stats(ctx)
		return err
	})
	return stats, err
}

// SchemaOverview renders every table, or just table when non-empty, as a
// markdown document.
func (g *Gateway) SchemaOverview(ctx context.Context, configName, table string) (string, error) {
	var tables []string
	if table != "" {
		tables = []string{table}
	}
	var out string
	err := g.withCatalog(ctx, configName, func(ctx context.Context, c *dialect.Catalog, entry config.Entry) error {
		schemas, err := c.Overview(ctx, tables...)
		if err != nil {
			return err
		}
		out = dialect.RenderMarkdown(entry.Name, schemas)
		return nil
	})
	return out, err
}

// ListConfigs never opens a connection.
func (g *Gateway) ListConfigs() ([]ConfigSummary, error) {
	names := g.registry.Names()
	out := make([]ConfigSummary, 0, len(names))
	for _, name := range names {
		e, err := g.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ConfigSummary{Name: e.Name, Dialect: e.Dialect.String(), Target: e.Target()})
	}
	return out, nil
}

// ExecuteQuery validates sql for the configuration's dialect and runs it.
// Rejected statements never reach a connection. limit <= 0 means the
// default row limit.
func (g *Gateway) ExecuteQuery(ctx context.Context, configName, sql string, limit int) (*QueryResult, error) {
	log := g.loggerFor(ctx)

	entry, err := g.registry.Resolve(configName)
	if err != nil {
		return nil, err
	}
	v, ok := g.validators[entry.Dialect]
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported dialect %s", entry.Dialect)
	}

	q, err := v.Validate(sql, limit)
	if err != nil {
		log.WarnWith("query rejected", err, map[string]interface{}{
			"dialect":    entry.Dialect.String(),
			"error_kind": errs.KindOf(err).String(),
		})
		return nil, err
	}

	var res *database.Result
	err = g.withConn(ctx, entry.Name, func(ctx context.Context, conn database.Conn, _ config.Entry) error {
		rows, err := conn.Query(ctx, q.NormalizedText)
		if err != nil {
			return err
		}
		res, err = database.Collect(rows, q.RowLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = c.Name
	}
	rows := serializer.New(log).Rows(res.Columns, res.Rows)

	log.DebugWith("query executed", map[string]interface{}{
		"dialect":   entry.Dialect.String(),
		"rows":      len(rows),
		"truncated": res.Truncated,
	})
	return &QueryResult{
		Columns:   cols,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: res.Truncated,
		SQL:       q.NormalizedText,
	}, nil
}

type connFunc func(ctx context.Context, conn database.Conn, entry config.Entry) error

// withConn runs fn on the leased connection under the query timeout. The
// wait for the lease counts against the same deadline.
func (g *Gateway) withConn(ctx context.Context, configName string, fn connFunc) error {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	return g.conns.WithConn(ctx, configName, func(conn database.Conn, entry config.Entry) error {
		err := fn(ctx, conn, entry)
		if err != nil && !errs.IsTimeout(err) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Some drivers report a cancelled query as a plain failure.
			err = errs.Wrap(errs.ErrKindTimeout, fmt.Sprintf("query exceeded %s", g.queryTimeout), err)
		}
		return err
	})
}

func (g *Gateway) withCatalog(ctx context.Context, configName string, fn func(ctx context.Context, c *dialect.Catalog, entry config.Entry) error) error {
	return g.withConn(ctx, configName, func(ctx context.Context, conn database.Conn, entry config.Entry) error {
		adapter, err := dialect.For(entry.Dialect)
		if err != nil {
			return err
		}
		return fn(ctx, dialect.NewCatalog(adapter, conn), entry)
	})
}

func requireArg(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "%s is required", name)
	}
	return nil
}
