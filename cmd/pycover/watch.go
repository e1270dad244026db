package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/pycover/internal/coverage"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Report missing lines whenever the coverage data changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApplication(cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			out := cmd.OutOrStdout()
			report := func(r coverage.Result) {
				switch {
				case r.Superseded:
				case r.Err != nil:
					fmt.Fprintf(out, "%s: %v\n", r.Path, r.Err)
				default:
					fmt.Fprintf(out, "%s: %d missing [%s]\n", r.Path, len(r.Lines), joinLines(r.Lines))
				}
			}

			ctx := cmd.Context()
			view, err := a.OpenFile(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := a.WatchCoverage(ctx, view, true)
			if err != nil {
				return err
			}
			a.Logger().Info("watching %s for %s", data, view.FilePath())

			r, err := a.Compute(ctx, view)
			if err != nil {
				r.Path, r.Err = view.FilePath(), err
			}
			report(r)

			a.OnResult(report)
			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
