// Command multipatch inspects multipatch experiment records and maintains a
// selectable catalog of their connectivity.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"multipatch/internal/blob"
	"multipatch/internal/catalog"
	"multipatch/internal/config"
	"multipatch/internal/core"
	"multipatch/internal/lims"
	"multipatch/internal/nwb"
	"multipatch/internal/observability"
	"multipatch/internal/qccache"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(context.Background(), os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, lookup config.Lookup, stdout, stderr io.Writer) int {
	a := &app{lookup: lookup}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type globalFlags struct {
	logLevel    string
	logJSON     bool
	metricsFile string
	trace       bool
	dataRoots   []string
	storage     string
	sqlitePath  string
}

// app holds the configuration and observability hooks shared by every command.
type app struct {
	lookup  config.Lookup
	flags   globalFlags
	cfg     config.Config
	logger  *observability.ZapLogger
	metrics *observability.PrometheusRecorder
	tracer  observability.Tracer

	// recordings reads recording files; nil leaves recording-derived facts unavailable.
	recordings nwb.Opener
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "multipatch",
		Short:         "Inspect multipatch experiments and catalog their connectivity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides MULTIPATCH_LOG_LEVEL")
	pf.BoolVar(&a.flags.logJSON, "log-json", false, "emit JSON logs")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.BoolVar(&a.flags.trace, "trace", false, "write spans as JSON lines to stderr")
	pf.StringSliceVar(&a.flags.dataRoots, "data-root", nil, "extra site search root (repeatable)")
	pf.StringVar(&a.flags.storage, "storage", "", "catalog storage driver (memory, sqlite, postgres)")
	pf.StringVar(&a.flags.sqlitePath, "sqlite-path", "", "catalog sqlite file")

	root.AddCommand(newInspectCommand(a), newCatalogCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.lookup)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = a.flags.logJSON
	}
	if len(a.flags.dataRoots) > 0 {
		cfg.DataRoots = append(a.flags.dataRoots, cfg.DataRoots...)
	}
	if a.flags.storage != "" {
		cfg.Storage.Driver = catalog.StorageDriver(a.flags.storage)
	}
	if a.flags.sqlitePath != "" {
		cfg.Storage.SQLitePath = a.flags.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger, err = observability.NewProductionLogger(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	a.metrics = observability.NewPrometheusRecorder()
	a.tracer = observability.NopTracer()
	if a.flags.trace {
		a.tracer = observability.NewJSONTracer(cmd.ErrOrStderr())
	}
	return nil
}

func (a *app) close() error {
	var err error
	if a.metrics != nil && a.flags.metricsFile != "" {
		err = a.metrics.WriteTextfile(a.flags.metricsFile)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// options assembles the experiment collaborators. The QC cache lives beside
// recordPath unless MULTIPATCH_QC_CACHE names a file.
func (a *app) options(ctx context.Context, recordPath string) (core.Options, error) {
	opts := core.Options{
		DataRoots:      a.cfg.DataRoots,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Tracer:         a.tracer,
		Recordings:     a.recordings,
		VerifyExternal: a.cfg.VerifyExternal,
	}
	if a.cfg.LIMSFile != "" {
		client, err := lims.LoadFile(a.cfg.LIMSFile)
		if err != nil {
			return opts, err
		}
		opts.LIMS = client
	}

	cachePath := a.cfg.QCCachePath
	if cachePath == "" {
		if isDir(recordPath) {
			cachePath = filepath.Join(recordPath, qccache.FileName)
		} else {
			cachePath = qccache.PathFor(recordPath)
		}
	}
	opts.QCCache = qccache.New(cachePath, qccache.WithLogger(a.logger), qccache.WithMetrics(a.metrics))

	if a.cfg.MirrorEnabled() && a.recordings == nil {
		a.logger.Warn("recording mirror disabled: no recording reader configured", "cache_dir", a.cfg.CacheDir)
	}
	if a.cfg.MirrorEnabled() && a.recordings != nil {
		m := &nwb.Mirror{CacheDir: a.cfg.CacheDir, Logger: a.logger}
		if len(a.cfg.DataRoots) > 0 {
			m.Root = a.cfg.DataRoots[0]
		}
		if a.cfg.Blob.Driver != "" {
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return opts, fmt.Errorf("open recording archive: %w", err)
			}
			m.Archive = store
		}
		opts.Mirror = m
	}
	return opts, nil
}

// loadersFor returns the loaders of a summary file or a site directory.
func loadersFor(path string) ([]core.Loader, error) {
	if isDir(path) {
		return []core.Loader{core.PipetteLoaderFor(path)}, nil
	}
	entries, err := core.ReadSummary(path)
	if err != nil {
		return nil, err
	}
	out := make([]core.Loader, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out, nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
