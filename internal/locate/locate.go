// Package locate finds files relative to a source file and executables on PATH.
package locate

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrExecutableNotFound is returned when no executable matches on PATH.
var ErrExecutableNotFound = errors.New("executable not found")

// Find searches start and each of its ancestor directories, closest first,
// for a readable file called name. If start names a file, the search begins
// in the directory containing it.
//
// The search stops at the filesystem root or when the parent directory
// stops changing.
func Find(start, name string) (string, bool) {
	if start == "" || name == "" {
		return "", false
	}

	dir := start
	if info, err := os.Stat(start); err != nil || !info.IsDir() {
		dir = filepath.Dir(start)
	}

	for {
		candidate := filepath.Join(dir, name)
		if readable(candidate) {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == "" || parent == dir {
			return "", false
		}
		dir = parent
	}
}

// readable reports whether path can be opened for reading.
func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Executable returns configured unchanged when it is non-empty. Otherwise it
// searches PATH for name.
func Executable(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return Which(name)
}

// Which searches every directory in PATH for name, trying the bare name and
// then each extension listed in PATHEXT. The first existing regular file wins.
func Which(name string) (string, error) {
	return which(name, os.Getenv("PATH"), os.Getenv("PATHEXT"))
}

func which(name, pathEnv, pathExt string) (string, error) {
	exts := []string{""}
	for _, ext := range filepath.SplitList(pathExt) {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if runtime.GOOS == "windows" && len(exts) == 1 {
		exts = append(exts, ".com", ".exe", ".bat", ".cmd")
	}

	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = "."
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, name+ext)
			if isFile(candidate) {
				return candidate, nil
			}
			if ext != "" && strings.ToLower(ext) != ext {
				candidate = filepath.Join(dir, name+strings.ToLower(ext))
				if isFile(candidate) {
					return candidate, nil
				}
			}
		}
	}
	return "", ErrExecutableNotFound
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
