package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print the missing lines of a Python file",
		Long:  "Runs coverage for the file and prints its missing line numbers, one per line.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApplication(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			r, err := a.ComputeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range r.Lines {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, n := range lines {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
