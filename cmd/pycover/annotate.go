package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/editor"
)

const (
	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

func newAnnotateCmd(opts *rootOptions) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "annotate <file>",
		Short: "Print a Python file with its missing lines marked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch color {
			case colorAuto, colorAlways, colorNever:
			default:
				return fmt.Errorf("invalid --color %q: expected auto, always or never", color)
			}

			a, err := opts.newApplication(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			r, err := a.ComputeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view, ok := a.Views().Get(r.Path)
			if !ok {
				return fmt.Errorf("view for %s was closed", r.Path)
			}

			out := cmd.OutOrStdout()
			styled := color == colorAlways || (color == colorAuto && isTerminal(out))
			newAnnotator(out, styled).write(view)
			fmt.Fprintln(cmd.ErrOrStderr(), view.Status())
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", colorAuto, "colorize output: auto|always|never")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type annotator struct {
	out    io.Writer
	styled bool

	number  lipgloss.Style
	mark    lipgloss.Style
	missing lipgloss.Style
}

func newAnnotator(out io.Writer, styled bool) *annotator {
	r := lipgloss.NewRenderer(out)
	if styled {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &annotator{
		out:     out,
		styled:  styled,
		number:  r.NewStyle().Foreground(lipgloss.Color("8")).Align(lipgloss.Right),
		mark:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		missing: r.NewStyle().Background(lipgloss.Color("52")).Foreground(lipgloss.Color("15")),
	}
}

// write prints every line of view with a gutter. Missing lines carry a
// marker, and are highlighted when styled.
func (an *annotator) write(view *editor.View) {
	count := view.LineCount()
	width := len(strconv.Itoa(count))

	for i := 0; i < count; i++ {
		text := view.Line(i)
		marked := view.LineMarked(coverage.RegionTag, i)

		num := fmt.Sprintf("%*d", width, i+1)
		mark := " "
		if marked {
			mark = ">"
		}
		if an.styled {
			num = an.number.Width(width).Render(strconv.Itoa(i + 1))
			if marked {
				mark = an.mark.Render("▌")
				text = an.missing.Render(text)
			}
		}
		fmt.Fprintf(an.out, "%s %s %s\n", num, mark, text)
	}
}
