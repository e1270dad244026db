package plugin

import (
	"context"
	"fmt"
	"io"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/pycover/internal/config"
	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/editor"
	"github.com/dshills/pycover/internal/locate"
	"github.com/dshills/pycover/internal/logging"
)

// ModuleName is the name scripts require.
const ModuleName = "pycover"

// Runner computes coverage for a file on behalf of scripts.
type Runner interface {
	ComputeFile(ctx context.Context, path string) (coverage.Result, error)
	Settings() config.Settings
}

// Module is the pycover Lua module:
//
//	pycover.find(path, name)  -> nearest ancestor entry or nil
//	pycover.which(name)       -> executable on PATH or nil
//	pycover.applicable(path)  -> true for Python files
//	pycover.show(path)        -> array of missing lines; raises on failure
//	pycover.status(message)   -> reports a message
//	pycover.settings()        -> table of current settings
//	pycover.version           -> version string
type Module struct {
	runner  Runner
	out     io.Writer
	logger  *logging.Logger
	version string
}

// NewModule creates the module. Status messages are written to out.
func NewModule(runner Runner, out io.Writer, logger *logging.Logger, version string) *Module {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = logging.Null()
	}
	return &Module{runner: runner, out: out, logger: logger, version: version}
}

// Loader builds the module table.
func (m *Module) Loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"find":       m.find,
		"which":      m.which,
		"applicable": m.applicable,
		"show":       m.show,
		"status":     m.status,
		"settings":   m.settings,
	})
	L.SetField(mod, "version", lua.LString(m.version))
	L.SetField(mod, "command", lua.LString(coverage.CommandName))
	L.Push(mod)
	return 1
}

func (m *Module) find(L *lua.LState) int {
	start := L.CheckString(1)
	name := L.CheckString(2)
	if path, ok := locate.Find(start, name); ok {
		L.Push(lua.LString(path))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (m *Module) which(L *lua.LState) int {
	path, err := locate.Which(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(path))
	return 1
}

func (m *Module) applicable(L *lua.LState) int {
	path := L.CheckString(1)
	content, _ := os.ReadFile(path)
	L.Push(lua.LBool(editor.DetectLanguage(path, content) == coverage.LanguagePython))
	return 1
}

func (m *Module) show(L *lua.LState) int {
	path := L.CheckString(1)
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := m.runner.ComputeFile(ctx, path)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(intsToTable(L, r.Lines))
	L.Push(lua.LNumber(r.Annotated))
	return 2
}

func (m *Module) status(L *lua.LState) int {
	msg := L.CheckString(1)
	fmt.Fprintf(m.out, "%s: %s\n", ModuleName, msg)
	m.logger.Info("%s", msg)
	return 0
}

func (m *Module) settings(L *lua.LState) int {
	s := m.runner.Settings()
	t := L.NewTable()
	L.SetField(t, config.KeyPython, lua.LString(s.Python))
	L.SetField(t, config.KeyOnLoad, lua.LBool(s.OnLoad))
	L.SetField(t, config.KeyHighlightUncoveredLines, lua.LBool(s.HighlightUncoveredLines))
	L.SetField(t, config.KeyScript, lua.LString(s.Script))
	L.SetField(t, config.KeyPollInterval, lua.LNumber(s.PollInterval.Seconds()))
	L.SetField(t, config.KeyTimeout, lua.LNumber(s.Timeout.Seconds()))
	L.SetField(t, config.KeyLogLevel, lua.LString(s.LogLevel))
	L.Push(t)
	return 1
}

func intsToTable(L *lua.LState, values []int) *lua.LTable {
	t := L.CreateTable(len(values), 0)
	for _, v := range values {
		t.Append(lua.LNumber(v))
	}
	return t
}
