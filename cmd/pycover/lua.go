package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/pycover/internal/plugin"
)

func newLuaCmd(opts *rootOptions) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "lua [script]",
		Short: "Run a Lua script with the pycover module loaded",
		Long: `Runs a sandboxed Lua script. The pycover module provides find, which,
applicable, show, status and settings.

  pycover lua -e 'for _, n in ipairs(pycover.show("app.py")) do print(n) end'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (code == "") == (len(args) == 0) {
				return errors.New("give either a script path or -e")
			}

			a, err := opts.newApplication(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			host := plugin.NewHost(plugin.HostOptions{
				Runner:  a,
				Output:  cmd.OutOrStdout(),
				Logger:  a.Logger().WithComponent("lua"),
				Version: version,
			})
			defer host.Close()

			if code != "" {
				return host.RunString(cmd.Context(), code)
			}
			return host.RunFile(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVarP(&code, "execute", "e", "", "run this Lua code instead of a script")
	return cmd
}
