package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"multipatch/internal/catalog"
	"multipatch/internal/core"
)

func newInspectCommand(a *app) *cobra.Command {
	var (
		entries []string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <summary-file|site-dir>",
		Short: "Load experiments and print their cells, connections and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loaders, err := loadersFor(args[0])
			if err != nil {
				return err
			}
			opts, err := a.options(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, l := range loaders {
				if !selected(l, entries) {
					continue
				}
				e, err := core.Load(ctx, l, opts)
				if err != nil {
					failed++
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
					continue
				}
				if asJSON {
					rec, err := catalog.Describe(ctx, e)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(rec); err != nil {
						return err
					}
					continue
				}
				if err := describe(out, e); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d experiment(s) failed to load", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&entries, "entry", nil, "only load these summary entries (date-slice-site)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print catalog records as JSON")
	return cmd
}

func selected(l core.Loader, entries []string) bool {
	if len(entries) == 0 {
		return true
	}
	id := l.Source().ID
	for _, want := range entries {
		if want == id {
			return true
		}
	}
	return false
}

func describe(w io.Writer, e *core.Experiment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, e.String())
	_, _ = fmt.Fprintf(tw, "  region:\t%s\n", e.Region())
	_, _ = fmt.Fprintf(tw, "  cre types:\t%s\n", strings.Join(e.CreTypes(), ", "))
	_, _ = fmt.Fprintf(tw, "  target layers:\t%s\n", strings.Join(e.TargetLayers(), ", "))
	_, _ = fmt.Fprintf(tw, "  labels:\t%s\n", strings.Join(e.Labels(), ", "))
	_, _ = fmt.Fprintf(tw, "  probed pairs:\t%d\n", e.NConnectionsProbed())
	conns, ok := e.Connections()
	if !ok {
		_, _ = fmt.Fprintf(tw, "  connections:\tnot recorded\n")
		return tw.Flush()
	}
	calls := make([]string, 0, len(conns))
	for _, p := range conns {
		calls = append(calls, p.String())
	}
	_, _ = fmt.Fprintf(tw, "  connections:\t%s\n", strings.Join(calls, " "))
	sum, _ := e.Summary()
	_, _ = fmt.Fprintln(tw, "  pre\tpost\tconnected\tunconnected")
	for _, row := range catalog.SummaryRows(sum) {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\n",
			className(row.PreLayer, row.PreCreType), className(row.PostLayer, row.PostCreType), row.Connected, row.Unconnected)
	}
	return tw.Flush()
}

func className(layer, creType string) string {
	if layer == "" {
		return creType
	}
	return "L" + layer + " " + creType
}
