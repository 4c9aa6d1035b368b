package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/manuscript2book/internal/convert"
	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

func buildCmd(opts *rootOptions) *cobra.Command {
	var out string
	var slugPrefix string
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "build <manuscript>",
		Short: "Run the pipeline once and export the book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.orch.Close()

			res, err := a.build(ctx, args[0], convert.Config{OutDir: out, SlugPrefix: slugPrefix, MaxDepth: maxDepth})
			if err != nil {
				return err
			}
			b, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory for the book (default: current directory)")
	cmd.Flags().StringVar(&slugPrefix, "slug-prefix", "", "optional slug prefix for chapter files")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "maximum heading depth in the table of contents")
	return cmd
}

// build runs the pipeline once for the manuscript at path and exports the
// settled book. A failed run is returned as an error.
func (a *app) build(ctx context.Context, path string, cfg convert.Config) (convert.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return convert.Result{}, fmt.Errorf("read manuscript: %w", err)
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go a.logProgress(progressCtx)

	if _, err := a.orch.Start(ctx, pipeline.Upload{Name: filepath.Base(path), Data: data}); err != nil {
		return convert.Result{}, err
	}
	snap, err := a.orch.Wait(ctx)
	if err != nil {
		return convert.Result{}, err
	}
	if snap.Run.Stage == pipeline.StageFailed {
		return convert.Result{}, fmt.Errorf("%s failed: %s", snap.Run.SourceName, snap.Run.Error)
	}
	return convert.Export(snap.Book, cfg)
}
