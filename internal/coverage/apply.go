package coverage

import (
	"fmt"

	"github.com/dshills/pycover/internal/logging"
)

// Applier draws missing lines onto a view.
type Applier struct {
	settings SettingsSource
	logger   *logging.Logger
}

// NewApplier creates an Applier that reads style settings from settings.
func NewApplier(settings SettingsSource, logger *logging.Logger) *Applier {
	if logger == nil {
		logger = logging.Null()
	}
	return &Applier{settings: settings, logger: logger}
}

// Apply replaces the view's coverage regions with one full-line region per
// 1-based line number and returns how many regions were drawn. Line numbers
// past the end of the view's current text are dropped. Must run on the UI
// goroutine.
func (a *Applier) Apply(view View, lines []int) int {
	spans := make([]Span, 0, len(lines))
	for _, n := range lines {
		if n < 1 {
			continue
		}
		span, ok := view.FullLine(n - 1)
		if !ok {
			a.logger.Debug("line %d is past the end of %s", n, view.FilePath())
			continue
		}
		spans = append(spans, span)
	}

	view.EraseRegions(RegionTag)
	if len(spans) > 0 {
		view.AddRegions(RegionTag, spans, RegionScope, GutterIcon, StyleFlags(a.settings.Settings()))
		view.SetViewFlag(ShowingFlag, true)
	} else {
		view.SetViewFlag(ShowingFlag, false)
	}

	msg := AnnotatedMessage(len(spans))
	view.ShowStatusMessage(msg)
	a.logger.Info("%s %s", view.FilePath(), msg)
	return len(spans)
}

// Clear removes the view's coverage regions.
func (a *Applier) Clear(view View) {
	view.EraseRegions(RegionTag)
	view.SetViewFlag(ShowingFlag, false)
}

// AnnotatedMessage is the status text after n regions were drawn.
func AnnotatedMessage(n int) string {
	return fmt.Sprintf("%d missing lines annotated.", n)
}
