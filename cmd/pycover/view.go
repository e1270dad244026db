package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/viewer"
)

func newViewCmd(opts *rootOptions) *cobra.Command {
	var (
		logFile string
		show    bool
	)
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Open a Python file in a terminal viewer",
		Long:  "Opens the file full screen. Press c to toggle coverage, r to reload, q to quit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}

			a, err := opts.newApplication(logOut, true)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			ctx := cmd.Context()
			view, err := a.OpenFile(ctx, args[0])
			if err != nil {
				return err
			}

			screen, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("creating screen: %w", err)
			}
			if err := screen.Init(); err != nil {
				return fmt.Errorf("initializing screen: %w", err)
			}
			defer screen.Fini()

			if show && !a.Settings().OnLoad && !view.ViewFlag(coverage.ShowingFlag) {
				// Failures are shown in the status line.
				_ = a.Toggle(ctx, view)
			}

			v := viewer.New(screen, a, view, viewer.WithLogger(a.Logger().WithComponent("viewer")))
			if err := v.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "append log output to this file")
	cmd.Flags().BoolVar(&show, "show", false, "run coverage when the file opens")
	return cmd
}
