package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a target file.
type Format int

const (
	FormatLine Format = iota
	FormatJSON
	FormatYAML
)

// FormatForPath picks the encoding from the file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatLine
	}
}

// fileConfig mirrors the hosts.json layout: interval is stored in seconds.
type fileConfig struct {
	Tests    []Target `json:"tests" yaml:"tests"`
	Heading  string   `json:"heading" yaml:"heading"`
	Colour   string   `json:"colour" yaml:"colour"`
	Interval float64  `json:"interval" yaml:"interval"`
}

func toFileConfig(cfg *Config) fileConfig {
	tests := cfg.Targets
	if tests == nil {
		tests = []Target{}
	}
	return fileConfig{
		Tests:    tests,
		Heading:  cfg.Settings.Heading,
		Colour:   cfg.Settings.Colour,
		Interval: cfg.Settings.Interval.Seconds(),
	}
}

func (f fileConfig) toConfig() *Config {
	settings := DefaultSettings()
	if f.Heading != "" {
		settings.Heading = f.Heading
	}
	if f.Colour != "" {
		settings.Colour = strings.ToUpper(f.Colour)
	}
	if f.Interval > 0 {
		settings.Interval = secondsToDuration(f.Interval)
	}
	targets := make([]Target, 0, len(f.Tests))
	for _, t := range f.Tests {
		if kind, ok := ParseKind(string(t.Kind)); ok {
			t.Kind = kind
		}
		targets = append(targets, t)
	}
	return &Config{Targets: targets, Settings: settings}
}

// Load reads a target file in the format implied by its extension.
func Load(path string) (*Config, error) {
	format := FormatForPath(path)
	if format == FormatLine {
		return LineParser{}.LoadConfig(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty target file %s", path)
	}

	var fc fileConfig
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &fc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc.toConfig(), nil
}

// Marshal encodes cfg in the requested format.
func Marshal(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(toFileConfig(cfg), "", "    ")
	case FormatYAML:
		return yaml.Marshal(toFileConfig(cfg))
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "# %s interval=%s heading=%s colour=%s\n",
			directivePrefix, cfg.Settings.Interval, cfg.Settings.Heading, cfg.Settings.Colour)
		for _, target := range cfg.Targets {
			b.WriteString(FormatTargetLine(target))
			b.WriteByte('\n')
		}
		return []byte(b.String()), nil
	}
}

// Save writes cfg to path atomically (temp file + rename).
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg, FormatForPath(path))
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err == nil {
		return nil
	}

	defer os.Remove(tmp)
	if runtime.GOOS == "windows" {
		_ = os.Remove(path)
	}
	return os.Rename(tmp, path)
}

// DefaultOptions returns process defaults before environment and CLI overrides.
func DefaultOptions() Options {
	return Options{
		Listen:         ":8080",
		LogDir:         "",
		LogLevel:       "info",
		MaxConcurrency: 64,
		PingMode:       PingModeExec,
		UIEnable:       false,
		AutoStart:      false,
	}
}

// OptionsFromEnv layers OMNIPING_* environment variables over the defaults.
func OptionsFromEnv(getenv func(string) string) Options {
	opts := DefaultOptions()
	if v := getenv("OMNIPING_LISTEN"); v != "" {
		opts.Listen = normalizeListen(v)
	}
	if v := getenv("OMNIPING_LOG_DIR"); v != "" {
		opts.LogDir = v
	}
	if v := getenv("OMNIPING_LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}
	if v := getenv("OMNIPING_MAX_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			opts.MaxConcurrency = n
		}
	}
	if v := getenv("OMNIPING_PING_MODE"); v != "" {
		if mode, ok := parsePingMode(v); ok {
			opts.PingMode = mode
		}
	}
	return opts
}

// ApplyOverrides applies CLI values to opts and, for the interval, to settings.
func ApplyOverrides(opts *Options, settings *Settings, overrides CLIOverrides) {
	if overrides.Interval != nil && settings != nil {
		settings.Interval = *overrides.Interval
	}
	if overrides.Listen != nil {
		opts.Listen = normalizeListen(*overrides.Listen)
	}
	if overrides.LogDir != nil {
		opts.LogDir = *overrides.LogDir
	}
	if overrides.LogLevel != nil {
		opts.LogLevel = *overrides.LogLevel
	}
	if overrides.MaxConcurrency != nil {
		opts.MaxConcurrency = *overrides.MaxConcurrency
	}
	if overrides.PingMode != nil {
		opts.PingMode = *overrides.PingMode
	}
	if overrides.UIEnable != nil {
		opts.UIEnable = *overrides.UIEnable
	}
	if overrides.AutoStart != nil {
		opts.AutoStart = *overrides.AutoStart
	}
}

// ParsePingMode validates a ping mode name.
func ParsePingMode(value string) (PingMode, error) {
	mode, ok := parsePingMode(value)
	if !ok {
		return "", fmt.Errorf("invalid ping mode: %q", value)
	}
	return mode, nil
}

func parsePingMode(value string) (PingMode, bool) {
	switch PingMode(strings.ToLower(strings.TrimSpace(value))) {
	case PingModeExec:
		return PingModeExec, true
	case PingModeICMP:
		return PingModeICMP, true
	default:
		return "", false
	}
}

func normalizeListen(value string) string {
	if isDigits(value) {
		return ":" + value
	}
	return value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatSeconds renders an interval the way the settings page shows it ("4", "2.5").
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%g", d.Seconds())
}
