package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/opsinsight/reportcore/pkg/analyzer"
	"github.com/opsinsight/reportcore/pkg/config"
	"github.com/opsinsight/reportcore/pkg/database"
	"github.com/opsinsight/reportcore/pkg/retrieval"
	"github.com/opsinsight/reportcore/pkg/source"
	"github.com/opsinsight/reportcore/pkg/spider"
	"github.com/opsinsight/reportcore/pkg/workflow"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logFormat  string
	logLevel   string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "reportd",
		Short: "Evidence-bound analysis report service",
		Long: `reportd accepts analysis submissions, waits for the crawl data they need,
and runs each job through the analysis workflow into an evidence-bound report.

Settings come from --config, REPORTCORE_* environment variables and flags,
in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	pf.String("db-driver", "", "Database driver: mysql, postgres, sqlite")
	pf.String("db-dsn", "", "Database connection string")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log format: text, json")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newRunCmd(opts),
		newJobsCmd(opts),
		newKBCmd(opts),
		newHealthCmd(opts),
	)
	return cmd
}

// app is what a command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger
	out    io.Writer
	format string
}

// setup loads configuration and opens the database. The caller closes it
// with a.close.
func setup(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	switch opts.output {
	case "table", "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported output format %q (use table, json or yaml)", opts.output)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &app{cfg: cfg, db: db, logger: logger, out: cmd.OutOrStdout(), format: opts.output}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// workflow assembles the analysis workflow against the app database.
func (a *app) workflow(ctx context.Context) (*workflow.Workflow, error) {
	retriever, err := a.retrieval(ctx)
	if err != nil {
		return nil, err
	}
	wf := workflow.New(
		spider.NewStore(a.db),
		source.NewRepository(a.db),
		retriever,
		analyzer.DefaultRegistry(),
		a.logger.With("component", "workflow"),
	)
	return wf, nil
}

func (a *app) retrieval(ctx context.Context) (*retrieval.Service, error) {
	embedder, err := retrieval.NewEmbedder(ctx, a.cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return retrieval.NewService(retrieval.NewChunkStore(a.db), embedder, a.cfg.Retrieval, a.logger.With("component", "retrieval")), nil
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (use text or json)", format)
	}
}

// stdinOr opens path, or returns stdin for "-".
func stdinOr(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
