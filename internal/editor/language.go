package editor

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DetectLanguage returns a language identifier from the file extension,
// falling back to a "#!" interpreter line in content.
func DetectLanguage(path string, content []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyw", ".pyi":
		return "python"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".rb":
		return "ruby"
	case ".lua":
		return "lua"
	case ".sh", ".bash":
		return "shellscript"
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	case ".md":
		return "markdown"
	}
	return detectShebang(content)
}

func detectShebang(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return ""
	}
	line := content[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		// #!/usr/bin/env [-S] python3
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = f
				break
			}
		}
	}
	switch {
	case strings.HasPrefix(interp, "python"):
		return "python"
	case interp == "sh" || interp == "bash":
		return "shellscript"
	}
	return ""
}
