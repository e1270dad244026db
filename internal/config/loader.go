package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Loader produces one configuration layer as a flat key/value map.
type Loader interface {
	Load() (map[string]any, error)
}

// FileNames are the settings file names tried in a config directory, in order.
var FileNames = []string{"pycover.toml", "pycover.yaml", "pycover.yml"}

// FileLoader reads a TOML or YAML settings file, chosen by extension.
// A missing file yields an empty layer.
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Path returns the file the loader reads.
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads and parses the file.
func (l *FileLoader) Load() (map[string]any, error) {
	if l.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
	}

	return parseFile(l.path, data)
}

func parseFile(path string, data []byte) (map[string]any, error) {
	var values map[string]any

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, &ParseError{Path: path, Line: yamlErrorLine(err.Error()), Message: err.Error(), Err: err}
		}
	default:
		if err := toml.Unmarshal(data, &values); err != nil {
			pe := &ParseError{Path: path, Message: err.Error(), Err: err}
			var de *toml.DecodeError
			if errors.As(err, &de) {
				pe.Line, pe.Column = de.Position()
			}
			return nil, pe
		}
	}

	return values, nil
}

// yamlErrorLine extracts the line from messages like "yaml: line 3: ...".
func yamlErrorLine(msg string) int {
	const marker = "line "
	i := strings.Index(msg, marker)
	if i < 0 {
		return 0
	}
	rest := msg[i+len(marker):]
	end := strings.IndexByte(rest, ':')
	if end < 0 {
		return 0
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return n
}

// DefaultPath returns the first settings file that exists in the user
// config directory, or the TOML path if none does.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "pycover")
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, FileNames[0])
}

// EnvLoader reads PYCOVER_* environment variables.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates a loader over the process environment.
func NewEnvLoader() *EnvLoader {
	return &EnvLoader{prefix: "PYCOVER_", lookup: os.LookupEnv}
}

// Load maps PYCOVER_HIGHLIGHT_UNCOVERED_LINES to highlight_uncovered_lines
// and so on for every known key. Empty values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	values := make(map[string]any)
	for _, key := range Keys {
		if val, ok := l.lookup(l.prefix + strings.ToUpper(key)); ok {
			values[key] = val
		}
	}
	return values, nil
}

// Merge overlays src onto dst. Later layers win.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
