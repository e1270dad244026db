package viewer

import (
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/pycover/internal/coverage"
)

const tabWidth = 4

// Theme holds the styles the viewer draws with.
type Theme struct {
	Text       tcell.Style
	LineNumber tcell.Style
	Status     tcell.Style
	// Missing is used for missing lines drawn filled.
	Missing tcell.Style
	// Outlined is used for missing lines drawn outlined.
	Outlined tcell.Style
	// Mark is the gutter marker style.
	Mark     tcell.Style
	MarkRune rune
}

// DefaultTheme returns the default styles.
func DefaultTheme() Theme {
	return Theme{
		Text:       tcell.StyleDefault,
		LineNumber: tcell.StyleDefault.Foreground(tcell.ColorGray),
		Status:     tcell.StyleDefault.Reverse(true),
		Missing:    tcell.StyleDefault.Background(tcell.ColorDarkRed).Foreground(tcell.ColorWhite),
		Outlined:   tcell.StyleDefault.Underline(true).Foreground(tcell.ColorRed),
		Mark:       tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true),
		MarkRune:   '▌',
	}
}

func (t Theme) textStyle(flags coverage.DrawFlags) tcell.Style {
	if flags&coverage.DrawFilled != 0 {
		return t.Missing
	}
	return t.Outlined
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
