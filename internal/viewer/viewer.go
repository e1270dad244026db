// Package viewer is a terminal view of one Python file with its missing
// lines highlighted.
//
// Keys:
//
//	c          toggle coverage
//	r          reload the file
//	j, down    scroll down
//	k, up      scroll up
//	pgdn, pgup scroll a page
//	g, G       top, bottom
//	q, esc     quit
package viewer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/dispatch"
	"github.com/dshills/pycover/internal/editor"
	"github.com/dshills/pycover/internal/logging"
)

// Session is what the viewer drives.
type Session interface {
	Toggle(ctx context.Context, view *editor.View) error
	Reload(ctx context.Context, view *editor.View) error
	Loop() *dispatch.Loop
}

type quitEvent struct{}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Viewer) {
		v.logger = l
	}
}

// WithTheme sets the styles.
func WithTheme(t Theme) Option {
	return func(v *Viewer) {
		v.theme = t
	}
}

// Viewer renders a view on a tcell screen.
type Viewer struct {
	screen  tcell.Screen
	session Session
	view    *editor.View
	theme   Theme
	logger  *logging.Logger

	top int
}

// New creates a Viewer. The screen must already be initialized.
func New(screen tcell.Screen, session Session, view *editor.View, opts ...Option) *Viewer {
	v := &Viewer{
		screen:  screen,
		session: session,
		view:    view,
		theme:   DefaultTheme(),
		logger:  logging.Null(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run handles input until the user quits or ctx is done. Posted UI work is
// drained between events.
func (v *Viewer) Run(ctx context.Context) error {
	loop := v.session.Loop()
	loop.SetNotify(func() {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer loop.SetNotify(nil)

	stop := context.AfterFunc(ctx, func() {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(quitEvent{}))
	})
	defer stop()

	loop.RunPending()
	v.Draw()
	for {
		ev := v.screen.PollEvent()
		if ev == nil {
			return nil
		}
		switch e := ev.(type) {
		case *tcell.EventInterrupt:
			if _, ok := e.Data().(quitEvent); ok {
				return ctx.Err()
			}
			loop.RunPending()
		case *tcell.EventResize:
			v.screen.Sync()
		case *tcell.EventKey:
			if v.handleKey(ctx, e) {
				return nil
			}
		}
		v.Draw()
	}
}

// handleKey applies one key press and reports whether to quit.
func (v *Viewer) handleKey(ctx context.Context, e *tcell.EventKey) bool {
	_, height := v.screen.Size()
	page := max(height-1, 1)

	switch e.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		v.Scroll(-1)
	case tcell.KeyDown:
		v.Scroll(1)
	case tcell.KeyPgUp:
		v.Scroll(-page)
	case tcell.KeyPgDn:
		v.Scroll(page)
	case tcell.KeyHome:
		v.top = 0
	case tcell.KeyEnd:
		v.Scroll(v.view.LineCount())
	case tcell.KeyRune:
		switch e.Rune() {
		case 'q':
			return true
		case 'c':
			v.run("toggle", v.session.Toggle(ctx, v.view))
		case 'r':
			v.run("reload", v.session.Reload(ctx, v.view))
		case 'j':
			v.Scroll(1)
		case 'k':
			v.Scroll(-1)
		case 'g':
			v.top = 0
		case 'G':
			v.Scroll(v.view.LineCount())
		}
	}
	return false
}

func (v *Viewer) run(op string, err error) {
	if err == nil {
		return
	}
	v.logger.Warn("%s %s: %v", op, v.view.Name(), err)
	// Coverage errors have already been shown by the controller.
	if coverage.KindOf(err) == 0 {
		v.view.ShowStatusMessage(err.Error())
	}
}

// Scroll moves the first visible line by delta, clamped to the text.
func (v *Viewer) Scroll(delta int) {
	_, height := v.screen.Size()
	last := max(v.view.LineCount()-max(height-1, 1), 0)
	v.top = min(max(v.top+delta, 0), last)
}

// Top returns the first visible 0-based line.
func (v *Viewer) Top() int {
	return v.top
}

// Draw renders the text with a gutter and a status line.
func (v *Viewer) Draw() {
	v.screen.Clear()
	width, height := v.screen.Size()
	if width <= 0 || height <= 0 {
		return
	}

	count := v.view.LineCount()
	gutter := len(strconv.Itoa(count)) + 2
	body := height - 1

	for row := 0; row < body; row++ {
		line := v.top + row
		if line >= count {
			break
		}
		marked := v.view.LineMarked(coverage.RegionTag, line)
		v.drawGutter(row, line, gutter, marked)

		style := v.theme.Text
		if marked {
			style = v.theme.textStyle(v.regionFlags())
		}
		v.drawString(gutter, row, width, expandTabs(v.view.Line(line)), style)
	}

	v.drawStatus(height-1, width)
	v.screen.Show()
}

func (v *Viewer) drawGutter(row, line, gutter int, marked bool) {
	num := fmt.Sprintf("%*d ", gutter-2, line+1)
	v.drawString(0, row, gutter-1, num, v.theme.LineNumber)
	if marked {
		v.screen.SetContent(gutter-1, row, v.theme.MarkRune, nil, v.theme.Mark)
	}
}

func (v *Viewer) drawStatus(row, width int) {
	for x := 0; x < width; x++ {
		v.screen.SetContent(x, row, ' ', nil, v.theme.Status)
	}
	text := v.view.Name()
	if v.view.ViewFlag(coverage.ShowingFlag) {
		text += fmt.Sprintf(" [%d missing]", len(v.view.MarkedLines(coverage.RegionTag)))
	}
	if msg := v.view.Status(); msg != "" {
		text += "  " + firstLine(msg)
	}
	v.drawString(0, row, width, text, v.theme.Status)
}

func (v *Viewer) regionFlags() coverage.DrawFlags {
	r, ok := v.view.Regions(coverage.RegionTag)
	if !ok {
		return 0
	}
	return r.Flags
}

func (v *Viewer) drawString(x, y, limit int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= limit {
			return
		}
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
