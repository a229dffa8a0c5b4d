package config

import (
	"strings"
	"time"
)

// Kind selects the probe executor used for a target.
type Kind string

const (
	KindPing  Kind = "PING"
	KindHTTP  Kind = "HTTP"
	KindHTTPS Kind = "HTTPS"
)

// ParseKind normalizes a kind name. ICMP is accepted as an alias of PING.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PING", "ICMP":
		return KindPing, true
	case "HTTP":
		return KindHTTP, true
	case "HTTPS":
		return KindHTTPS, true
	default:
		return "", false
	}
}

// Target represents a single monitored endpoint.
type Target struct {
	Host        string `json:"host" yaml:"host"`
	Description string `json:"desc" yaml:"desc"`
	Kind        Kind   `json:"test" yaml:"test"`
	Active      bool   `json:"active" yaml:"active"`
}

// Settings holds the persisted, user-editable settings.
type Settings struct {
	Heading  string
	Colour   string
	Interval time.Duration
}

// Config is the parsed target file.
type Config struct {
	Targets  []Target
	Settings Settings
}

// PingMode selects the backend used by the ping executor.
type PingMode string

const (
	PingModeExec PingMode = "exec"
	PingModeICMP PingMode = "icmp"
)

// Options holds process-level settings parsed from the environment and CLI overrides.
type Options struct {
	Listen         string
	LogDir         string
	LogLevel       string
	MaxConcurrency int
	PingMode       PingMode
	UIEnable       bool
	AutoStart      bool
}

// CLIOverrides holds optional CLI values that override environment and file values.
type CLIOverrides struct {
	Interval       *time.Duration
	Listen         *string
	LogDir         *string
	LogLevel       *string
	MaxConcurrency *int
	PingMode       *PingMode
	UIEnable       *bool
	AutoStart      *bool
}

// Parser defines target file parsing behavior.
type Parser interface {
	LoadConfig(path string) (*Config, error)
	ParseDirective(line string) (map[string]string, error)
	ParseTargetLine(line string) (Target, error)
}
