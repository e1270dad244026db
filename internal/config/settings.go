package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Setting keys.
const (
	KeyPython                  = "python"
	KeyOnLoad                  = "onload"
	KeyHighlightUncoveredLines = "highlight_uncovered_lines"
	KeyScript                  = "script"
	KeyPollInterval            = "poll_interval"
	KeyTimeout                 = "timeout"
	KeyLogLevel                = "log_level"
)

// Keys lists every recognized setting.
var Keys = []string{
	KeyPython,
	KeyOnLoad,
	KeyHighlightUncoveredLines,
	KeyScript,
	KeyPollInterval,
	KeyTimeout,
	KeyLogLevel,
}

// Default values.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
	DefaultLogLevel     = "info"
)

// Settings is the resolved configuration, passed by value into components.
type Settings struct {
	// Python is the interpreter path. Empty means search PATH.
	Python string
	// OnLoad runs the coverage command when a Python file is opened.
	OnLoad bool
	// HighlightUncoveredLines draws regions filled rather than outlined.
	HighlightUncoveredLines bool
	// Script overrides the embedded missing_lines.py helper.
	Script string
	// PollInterval is how often a running job is checked.
	PollInterval time.Duration
	// Timeout is the wall-clock budget for one job.
	Timeout time.Duration
	// LogLevel is the minimum log level.
	LogLevel string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		LogLevel:     DefaultLogLevel,
	}
}

// Load resolves settings from defaults, the file at path (TOML or YAML;
// empty means DefaultPath) and the environment.
//
// On failure the returned error wraps ErrUnavailable and the returned
// Settings are the defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		path = DefaultPath()
	}
	return LoadFrom(NewFileLoader(path), NewEnvLoader())
}

// LoadFrom merges the given layers over the defaults, in order.
func LoadFrom(loaders ...Loader) (Settings, error) {
	var merged map[string]any
	for _, l := range loaders {
		values, err := l.Load()
		if err != nil {
			return Defaults(), fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		merged = Merge(merged, values)
	}

	s, err := FromMap(merged)
	if err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return s, nil
}

// FromMap builds Settings from a flat map, starting from the defaults.
// Unknown keys are ignored.
func FromMap(values map[string]any) (Settings, error) {
	s := Defaults()
	var errs []error

	for key, raw := range values {
		var err error
		switch key {
		case KeyPython:
			s.Python, err = asString(key, raw)
		case KeyOnLoad:
			s.OnLoad, err = asBool(key, raw)
		case KeyHighlightUncoveredLines:
			s.HighlightUncoveredLines, err = asBool(key, raw)
		case KeyScript:
			s.Script, err = asString(key, raw)
		case KeyPollInterval:
			s.PollInterval, err = asDuration(key, raw)
		case KeyTimeout:
			s.Timeout, err = asDuration(key, raw)
		case KeyLogLevel:
			s.LogLevel, err = asString(key, raw)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		errs = append(errs, s.Validate())
	}
	return s, errors.Join(errs...)
}

// Validate checks the relationships between settings.
func (s Settings) Validate() error {
	if s.Timeout <= 0 {
		return &ValidationError{Key: KeyTimeout, Value: s.Timeout, Message: "must be positive"}
	}
	if s.PollInterval <= 0 {
		return &ValidationError{Key: KeyPollInterval, Value: s.PollInterval, Message: "must be positive"}
	}
	if s.PollInterval > s.Timeout {
		return &ValidationError{Key: KeyPollInterval, Value: s.PollInterval, Message: "must not exceed timeout"}
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Key: KeyLogLevel, Value: s.LogLevel, Message: "must be debug, info, warn or error"}
	}
	return nil
}

func asString(key string, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", &ValidationError{Key: key, Value: raw, Message: "expected a string"}
	}
}

func asBool(key string, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, &ValidationError{Key: key, Value: raw, Message: "expected a boolean"}
		}
		return b, nil
	default:
		return false, &ValidationError{Key: key, Value: raw, Message: "expected a boolean"}
	}
}

// asDuration accepts Go duration strings ("250ms") or plain numbers of seconds.
func asDuration(key string, raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return secondsToDuration(f), nil
		}
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return secondsToDuration(v), nil
	}
	return 0, &ValidationError{Key: key, Value: raw, Message: "expected a duration"}
}

func secondsToDuration(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}
