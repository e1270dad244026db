package coverage

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// ScriptName is the file name of the missing-lines helper.
const ScriptName = "missing_lines.py"

//go:embed scripts/missing_lines.py
var script []byte

// Script returns the embedded helper source.
func Script() []byte {
	return bytes.Clone(script)
}

// InstallScript writes the embedded helper into dir and returns its path.
// An existing file with the same content is left alone.
func InstallScript(dir string) (string, error) {
	path := filepath.Join(dir, ScriptName)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, script) {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("install %s: %w", ScriptName, err)
	}

	tmp, err := os.CreateTemp(dir, ScriptName+".*")
	if err != nil {
		return "", fmt.Errorf("install %s: %w", ScriptName, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(script); err != nil {
		tmp.Close()
		return "", fmt.Errorf("install %s: %w", ScriptName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("install %s: %w", ScriptName, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install %s: %w", ScriptName, err)
	}
	return path, nil
}

// ScriptPath returns override if set, otherwise the path of the embedded
// helper installed under the user cache directory.
func ScriptPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return InstallScript(filepath.Join(cache, "pycover"))
}
