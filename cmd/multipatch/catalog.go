package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"multipatch/internal/catalog"
	"multipatch/internal/core"
)

func newCatalogCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build and query the experiment catalog",
	}
	cmd.AddCommand(newCatalogBuildCommand(a), newCatalogSelectCommand(a), newCatalogFailuresCommand(a))
	return cmd
}

func (a *app) openCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	store, err := catalog.OpenStore(cmd.Context(), a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return catalog.New(store, a.logger), nil
}

func newCatalogBuildCommand(a *app) *cobra.Command {
	var (
		workers int
		reset   bool
	)
	cmd := &cobra.Command{
		Use:   "build <summary-file|site-dir>...",
		Short: "Load experiments and store their catalog records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Store().Close() }()
			if reset {
				if err := cat.Store().Reset(ctx); err != nil {
					return err
				}
			}
			var loaders []core.Loader
			for _, arg := range args {
				ls, err := loadersFor(arg)
				if err != nil {
					return err
				}
				loaders = append(loaders, ls...)
			}
			opts, err := a.options(ctx, args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Workers
			}
			report, err := cat.Build(ctx, loaders, opts, workers)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loaded %d experiment(s), %d failed\n", report.Loaded, report.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel loads; overrides MULTIPATCH_WORKERS")
	cmd.Flags().BoolVar(&reset, "reset", false, "drop existing records before building")
	return cmd
}

func newCatalogSelectCommand(a *app) *cobra.Command {
	var (
		pre, post string
		f         catalog.Filter
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "List experiments that probed the given cell classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Store().Close() }()
			f.PreLayer, f.PreCreType = catalog.ParseClass(pre)
			f.PostLayer, f.PostCreType = catalog.ParseClass(post)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "uid\tregion\tconnected\tunconnected\tsource")
			var connected, unconnected int
			for _, sel := range cat.Select(f) {
				c, u := sel.Totals()
				connected += c
				unconnected += u
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", sel.Record.UID, sel.Record.Region, c, u, sel.Record.Source)
			}
			_, _ = fmt.Fprintf(tw, "total\t\t%d\t%d\t\n", connected, unconnected)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&pre, "pre", "", "presynaptic class as [layer:]cre")
	cmd.Flags().StringVar(&post, "post", "", "postsynaptic class as [layer:]cre")
	cmd.Flags().StringVar(&f.Region, "region", "", "only experiments from this region")
	cmd.Flags().BoolVar(&f.ConnectedOnly, "connected", false, "only count class pairs with a connection")
	return cmd
}

func newCatalogFailuresCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "List experiments that failed to load during catalog builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.openCatalog(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Store().Close() }()
			for _, f := range cat.Store().Failures() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.At.Format("2006-01-02T15:04:05Z"), f.Source, f.Error)
			}
			return nil
		},
	}
}
