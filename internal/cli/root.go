// Package cli provides the sqlgate command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// options are the flags that are not Settings keys.
type options struct {
	settingsFile string
	envFile      string
	db           string
	output       string
}

type appKey struct{}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "sqlgate",
		Short: "Read-only SQL gateway for MySQL, PostgreSQL and SQLite",
		Long: `sqlgate runs read-only SQL and schema lookups against named database
configurations. Every statement is checked before it reaches a database:
only a single SELECT or WITH query is accepted, and a row limit is applied.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return setup(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.settingsFile, "settings", "", "settings file (yaml); defaults to $SQLGATE_SETTINGS")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before settings, ignored if missing")
	pf.StringVarP(&opts.db, "db", "d", config.DefaultName, "database configuration to use")
	pf.StringVarP(&opts.output, "output", "o", "table", "output format (table|json)")

	// Settings keys; see config.LoadSettings for precedence.
	pf.StringP("config", "c", config.DefaultSource, "database registry: a path or s3://bucket/key")
	pf.Int("default-limit", 1000, "rows returned when a query has no LIMIT")
	pf.Int("max-limit", 0, "upper bound on any row limit (0 = none)")
	pf.Duration("query-timeout", 30*time.Second, "per-request timeout, including the wait for a busy connection")
	pf.Duration("connect-timeout", 10*time.Second, "timeout for opening a connection")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "json", "log format (json|console)")
	pf.String("object-store-endpoint", "", "S3-compatible endpoint for s3:// registries")
	pf.String("object-store-access-key", "", "object store access key")
	pf.String("object-store-secret-key", "", "object store secret key")
	pf.Bool("object-store-use-ssl", true, "use TLS for the object store")
	pf.String("object-store-region", "", "object store region")

	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCmd(),
		newCallCmd(opts),
		newTablesCmd(opts),
		newDescribeCmd(opts),
		newCountCmd(opts),
		newInfoCmd(opts),
		newSearchCmd(opts),
		newQueryCmd(opts),
		newConfigsCmd(opts),
		newSchemaCmd(opts),
		newStatsCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func setup(cmd *cobra.Command, opts *options) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
		}
	}

	settings, err := config.LoadSettings(opts.settingsFile, cmd.Flags())
	if err != nil {
		return err
	}
	logCfg := settings.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	log := logger.New(logCfg)

	a, err := newApp(cmd.Context(), settings, log)
	if err != nil {
		return err
	}
	cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
	return nil
}

func appFrom(cmd *cobra.Command) *app {
	if cmd.Context() == nil {
		return nil
	}
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}
