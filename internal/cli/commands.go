package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/gateway"
	"github.com/koustreak/sqlgate/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runApp gives fn the app built by setup and closes it afterwards.
func runApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		if a == nil {
			return errs.New(errs.ErrKindUnknown, "command was not initialised")
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}

// gatewayCmd builds a command that sends one request and renders the
// response.
func gatewayCmd(opts *options, cmd *cobra.Command, build func(args []string) gateway.Request) *cobra.Command {
	cmd.RunE = runApp(func(cmd *cobra.Command, a *app, args []string) error {
		req := build(args)
		if req.Kind != gateway.KindListConfigs {
			req.ConfigName = opts.db
		}
		return render(cmd.OutOrStdout(), opts.output, a.gw.Handle(cmd.Context(), req))
	})
	return cmd
}

func newTablesCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a database",
		Args:  cobra.NoArgs,
	}, func([]string) gateway.Request {
		return gateway.Request{Kind: gateway.KindListTables}
	})
}

func newDescribeCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "describe TABLE",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
	}, func(args []string) gateway.Request {
		return gateway.Request{Kind: gateway.KindDescribeTable, Table: args[0]}
	})
}

func newCountCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "count TABLE",
		Short: "Count the rows of a table",
		Args:  cobra.ExactArgs(1),
	}, func(args []string) gateway.Request {
		return gateway.Request{Kind: gateway.KindRowCount, Table: args[0]}
	})
}

func newInfoCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "info",
		Short: "Show the engine, database name and server version",
		Args:  cobra.NoArgs,
	}, func([]string) gateway.Request {
		return gateway.Request{Kind: gateway.KindDatabaseInfo}
	})
}

func newSearchCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "search [KEYWORD]",
		Short: "Find tables whose name contains KEYWORD, with row counts",
		Args:  cobra.MaximumNArgs(1),
	}, func(args []string) gateway.Request {
		req := gateway.Request{Kind: gateway.KindSearchTables}
		if len(args) == 1 {
			req.Keyword = args[0]
		}
		return req
	})
}

func newStatsCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "stats",
		Short: "Show the row count of every table",
		Args:  cobra.NoArgs,
	}, func([]string) gateway.Request {
		return gateway.Request{Kind: gateway.KindDatabaseStats}
	})
}

func newSchemaCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "schema [TABLE]",
		Short: "Print the schema of every table (or one) as markdown",
		Args:  cobra.MaximumNArgs(1),
	}, func(args []string) gateway.Request {
		req := gateway.Request{Kind: gateway.KindSchemaOverview}
		if len(args) == 1 {
			req.Table = args[0]
		}
		return req
	})
}

func newConfigsCmd(opts *options) *cobra.Command {
	return gatewayCmd(opts, &cobra.Command{
		Use:   "configs",
		Short: "List the configured databases",
		Args:  cobra.NoArgs,
	}, func([]string) gateway.Request {
		return gateway.Request{Kind: gateway.KindListConfigs}
	})
}

func newQueryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := gatewayCmd(opts, &cobra.Command{
		Use:   "query SQL",
		Short: "Run a read-only query",
		Long: `Run a single SELECT or WITH statement. Writes, DDL and multiple
statements are refused before anything is sent to the database. Without
a LIMIT clause one is appended (--limit, or the configured default).`,
		Example: `  sqlgate query "SELECT id, email FROM users WHERE active"
  sqlgate -d analytics query --limit 20 "SELECT * FROM events ORDER BY ts DESC"
  echo "SELECT 1" | sqlgate query -`,
		Args: cobra.ExactArgs(1),
	}, func(args []string) gateway.Request {
		return gateway.Request{Kind: gateway.KindExecuteQuery, SQL: args[0], Limit: limit}
	})

	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if args[0] == "-" {
			b, err := io.ReadAll(c.InOrStdin())
			if err != nil {
				return err
			}
			args = []string{string(b)}
		}
		return run(c, args)
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "row limit when the query has none")
	return cmd
}

func newCallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "call [REQUEST]",
		Short: "Send a raw JSON request and print the JSON response",
		Long: `Send one request in the same shape the HTTP endpoint POST /v1/call
accepts. REQUEST is read from stdin when omitted or "-".`,
		Example: `  sqlgate call '{"config":"default","kind":"list_tables"}'
  echo '{"kind":"execute_query","sql":"SELECT 1"}' | sqlgate call`,
		Args: cobra.MaximumNArgs(1),
		RunE: runApp(func(cmd *cobra.Command, a *app, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				src = strings.NewReader(args[0])
			}
			var req gateway.Request
			dec := json.NewDecoder(src)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "invalid request", err)
			}
			return render(cmd.OutOrStdout(), "json", a.gw.Handle(cmd.Context(), req))
		}),
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gateway over HTTP",
		Args:  cobra.NoArgs,
		RunE: runApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(a.gw, server.WithLogger(a.log))
			return srv.Run(ctx, a.settings.Listen)
		}),
	}
	cmd.Flags().String("listen", "127.0.0.1:8080", "address to listen on")
	return cmd
}

// checkResult is one row of `sqlgate check --connect`.
type checkResult struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
	Target  string `json:"target"`
	Status  string `json:"status"`
}

func newCheckCmd(opts *options) *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the registry, and optionally connect to every database",
		Args:  cobra.NoArgs,
		RunE: runApp(func(cmd *cobra.Command, a *app, _ []string) error {
			results, failed := checkAll(cmd.Context(), a, connect)
			if err := renderChecks(cmd.OutOrStdout(), opts.output, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d configurations failed", failed, len(results))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "open a connection to every database")
	return cmd
}

// checkAll resolves every entry and, with connect, leases each connection
// in parallel. It never stops at the first failure.
func checkAll(ctx context.Context, a *app, connect bool) ([]checkResult, int) {
	names := a.registry.Names()
	results := make([]checkResult, len(names))

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			e, err := a.registry.Resolve(name)
			if err == nil {
				results[i] = checkResult{Name: e.Name, Dialect: e.Dialect.String(), Target: e.Target(), Status: "ok"}
			}
			if err == nil && connect {
				lctx, cancel := context.WithTimeout(gctx, a.settings.ConnectTimeout)
				err = a.conns.WithConn(lctx, name, func(database.Conn, config.Entry) error { return nil })
				cancel()
			}
			if err != nil {
				results[i].Name = name
				results[i].Status = errs.KindOf(err).String() + ": " + errs.MessageOf(err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, failed
}
