package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pycover/internal/app"
	"github.com/dshills/pycover/internal/config"
	"github.com/dshills/pycover/internal/logging"
)

type rootOptions struct {
	config   string
	logLevel string
	python   string
	timeout  time.Duration

	// extra adjusts the application options; tests use it.
	extra func(*app.Options)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "pycover",
		Short:         "Show the lines a coverage.py run missed",
		Long:          "pycover reads the .coverage database next to a Python file and reports or highlights the lines that were not executed.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" && !logging.ValidLevel(opts.logLevel) {
				return &config.ValidationError{Key: config.KeyLogLevel, Value: opts.logLevel, Message: "expected debug, info, warn or error"}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.config, "config", "", "settings file (default: "+config.DefaultPath()+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&opts.python, "python", "", "python interpreter with coverage installed")
	flags.DurationVar(&opts.timeout, "timeout", 0, "time limit for one run (default from settings)")

	root.AddCommand(
		newShowCmd(opts),
		newAnnotateCmd(opts),
		newViewCmd(opts),
		newWatchCmd(opts),
		newLuaCmd(opts),
		newVersionCmd(),
	)
	return root
}

// newApplication builds the application from the global flags. Logs go to
// logOut.
func (o *rootOptions) newApplication(logOut io.Writer, watchConfig bool) (*app.Application, error) {
	opts := app.Options{
		ConfigPath:  o.config,
		Python:      o.python,
		LogLevel:    o.logLevel,
		Timeout:     o.timeout,
		WatchConfig: watchConfig,
		LogOutput:   logOut,
	}
	if o.extra != nil {
		o.extra(&opts)
	}
	return app.New(opts)
}
