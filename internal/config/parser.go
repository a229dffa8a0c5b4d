package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const directivePrefix = "omniping:"

// LineParser implements the Parser interface for the plain-text target format:
//
//	# omniping: interval=4s heading=Core colour=#FFFFFF
//	10.0.0.1 ; core router ; PING
//	# 10.0.0.2 ; spare router ; PING
//
// A target line prefixed with '#' is kept but marked inactive.
type LineParser struct{}

// DefaultSettings returns baseline settings used before file values.
func DefaultSettings() Settings {
	return Settings{
		Heading:  "OmniPing",
		Colour:   "#FFFFFF",
		Interval: 4 * time.Second,
	}
}

// DefaultConfig returns the sample configuration used when no target file exists.
func DefaultConfig() *Config {
	return &Config{
		Targets: []Target{
			{Host: "192.168.1.205", Description: "Useful Description", Kind: KindPing, Active: false},
			{Host: "10.255.255.6", Description: "Useful Description", Kind: KindHTTP, Active: false},
		},
		Settings: DefaultSettings(),
	}
}

// LoadConfig parses a line-format target file.
func (p LineParser) LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return p.parse(file)
}

func (p LineParser) parse(r io.Reader) (*Config, error) {
	cfg := &Config{Settings: DefaultSettings()}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if strings.HasPrefix(body, directivePrefix) {
				pairs, err := p.ParseDirective(line)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if err := applyDirective(&cfg.Settings, pairs); err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				continue
			}
			// Commented-out targets are preserved but not probed; anything else is a comment.
			if target, err := p.ParseTargetLine(body); err == nil {
				target.Active = false
				cfg.Targets = append(cfg.Targets, target)
			}
			continue
		}

		if strings.HasPrefix(line, directivePrefix) {
			pairs, err := p.ParseDirective(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := applyDirective(&cfg.Settings, pairs); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		target, err := p.ParseTargetLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDirective extracts key=value pairs from a directive line.
func (p LineParser) ParseDirective(line string) (map[string]string, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	}
	if !strings.HasPrefix(trimmed, directivePrefix) {
		return nil, fmt.Errorf("directive line must start with '# %s' or '%s': %q", directivePrefix, directivePrefix, line)
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, directivePrefix))
	if payload == "" {
		return map[string]string{}, nil
	}

	pairs := make(map[string]string)
	lastKey := ""
	for _, token := range strings.Fields(payload) {
		kv := strings.SplitN(token, "=", 2)
		if len(kv) != 2 {
			// A bare word continues the previous value, e.g. heading=Core Lab.
			if lastKey == "" {
				return nil, fmt.Errorf("invalid directive token: %q", token)
			}
			pairs[lastKey] += " " + token
			continue
		}
		pairs[kv[0]] = kv[1]
		lastKey = kv[0]
	}
	return pairs, nil
}

// ParseTargetLine parses "host ; description ; type". A ':' delimiter is accepted when the
// line has no ';', which rules out host:port in that form.
func (p LineParser) ParseTargetLine(line string) (Target, error) {
	sep := ";"
	if !strings.Contains(line, ";") {
		sep = ":"
	}
	fields := strings.Split(line, sep)
	if len(fields) != 3 {
		return Target{}, fmt.Errorf("invalid target line: %q", line)
	}

	host := strings.TrimSpace(fields[0])
	if host == "" || strings.ContainsAny(host, " \t") {
		return Target{}, fmt.Errorf("invalid target host: %q", fields[0])
	}
	kind, ok := ParseKind(fields[2])
	if !ok {
		return Target{}, fmt.Errorf("invalid target type: %q", strings.TrimSpace(fields[2]))
	}

	return Target{
		Host:        host,
		Description: strings.TrimSpace(fields[1]),
		Kind:        kind,
		Active:      true,
	}, nil
}

// FormatTargetLine renders a target in the line format, always using ';'.
func FormatTargetLine(target Target) string {
	line := fmt.Sprintf("%s ; %s ; %s", target.Host, target.Description, target.Kind)
	if !target.Active {
		return "# " + line
	}
	return line
}

func applyDirective(settings *Settings, pairs map[string]string) error {
	for key, val := range pairs {
		switch key {
		case "interval":
			d, err := parseInterval(val)
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}
			settings.Interval = d
		case "heading":
			settings.Heading = val
		case "colour", "color":
			settings.Colour = strings.ToUpper(val)
		default:
			// Unknown keys are ignored.
		}
	}
	return nil
}

// parseInterval accepts a Go duration ("2s") or bare seconds ("2.5").
func parseInterval(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", value)
	}
	return secondsToDuration(secs), nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
