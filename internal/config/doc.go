// Package config loads and holds pycover settings.
//
// Settings come from three layers, lowest precedence first:
//
//  1. Built-in defaults (Defaults)
//  2. The user settings file, TOML or YAML (pycover.toml, pycover.yaml)
//  3. PYCOVER_* environment variables
//
// Recognized keys:
//
//	python                     interpreter path; empty means search PATH
//	onload                     run automatically when a Python file opens
//	highlight_uncovered_lines  draw regions filled instead of outlined
//	script                     override for the embedded missing_lines.py
//	poll_interval              job poll interval ("100ms")
//	timeout                    job wall-clock budget ("10s")
//	log_level                  debug, info, warn, error
//
// A Store holds the current Settings and can reload them when the file
// changes on disk.
package config
