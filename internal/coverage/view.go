package coverage

import "github.com/dshills/pycover/internal/config"

// Names shared with the editor host.
const (
	// CommandName is the name the command is registered under.
	CommandName = "show_python_coverage"
	// CommandTitle is the user-facing command label.
	CommandTitle = "Show Python Coverage"
	// RegionTag identifies regions drawn by this package.
	RegionTag = "pycover"
	// RegionScope is the style class used for missing lines.
	RegionScope = "invalid"
	// GutterIcon is drawn next to each missing line.
	GutterIcon = "pycover/themes/default/bar.png"
	// ShowingFlag is the per-view flag set while highlights are drawn.
	ShowingFlag = "showing"
	// LanguagePython is the language identifier the command applies to.
	LanguagePython = "python"

	// ProgressMessage is shown while a job is running.
	ProgressMessage = "Finding missing lines..."
)

// DrawFlags selects how a region is drawn.
type DrawFlags int

const (
	// DrawOutlined marks regions in the gutter without filling the text.
	DrawOutlined DrawFlags = 1 << iota
	// DrawFilled fills the text of each region.
	DrawFilled
)

// String returns the flag name.
func (f DrawFlags) String() string {
	switch f {
	case DrawOutlined:
		return "outlined"
	case DrawFilled:
		return "filled"
	default:
		return "none"
	}
}

// StyleFlags returns the draw flags selected by settings.
func StyleFlags(s config.Settings) DrawFlags {
	if s.HighlightUncoveredLines {
		return DrawFilled
	}
	return DrawOutlined
}

// Span is a half-open byte range [Start, End) of a view's text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// HighlightSink is the editor surface this package draws through.
// All methods must be called on the UI goroutine.
type HighlightSink interface {
	AddRegions(tag string, spans []Span, scope, icon string, flags DrawFlags)
	EraseRegions(tag string)
	SetViewFlag(name string, value bool)
	ShowStatusMessage(text string)
}

// View is one open editor view.
type View interface {
	HighlightSink

	// ID uniquely identifies the view for the lifetime of the host.
	ID() string
	// FilePath returns the backing file, or "" for an unsaved buffer.
	FilePath() string
	// Language returns the detected language identifier.
	Language() string
	// ViewFlag returns a view-local boolean setting.
	ViewFlag(name string) bool
	// FullLine returns the span of 0-based line, including its newline,
	// against the view's current text. ok is false past the end.
	FullLine(line int) (span Span, ok bool)
}

// Scheduler runs functions on the UI goroutine.
type Scheduler interface {
	Post(fn func()) bool
}

// SettingsSource supplies the current settings.
type SettingsSource interface {
	Settings() config.Settings
}
