package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	MinInterval = 1 * time.Second
	MaxInterval = 1000 * time.Second
)

var (
	colourPattern   = regexp.MustCompile(`(?i)^#[0-9a-f]{6}$`)
	descPattern     = regexp.MustCompile(`(?i)^[0-9a-z\-_'. #]*$`)
	httpHostPattern = regexp.MustCompile(`(?i)^[0-9a-z.:/\-\[\]]+$`)
	pingHostPattern = regexp.MustCompile(`(?i)^[0-9a-z.:\-]+$`)
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError describes one rejected field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// ValidateTarget checks a single target definition.
func ValidateTarget(target Target) error {
	field := fmt.Sprintf("test %s ; %s ; %s", target.Host, target.Description, target.Kind)

	var err error
	kind, ok := ParseKind(string(target.Kind))
	if !ok {
		err = multierr.Append(err, &ValidationError{Field: field, Value: string(target.Kind), Reason: "type must be PING, HTTP or HTTPS"})
	}

	hostPattern := httpHostPattern
	if kind == KindPing {
		hostPattern = pingHostPattern
	}
	if target.Host == "" || !hostPattern.MatchString(target.Host) {
		err = multierr.Append(err, &ValidationError{Field: field, Value: target.Host, Reason: "invalid host"})
	}
	if !descPattern.MatchString(target.Description) {
		err = multierr.Append(err, &ValidationError{Field: field, Value: target.Description, Reason: "invalid description"})
	}
	return err
}

// ValidateSettings checks heading, colour and interval.
func ValidateSettings(settings Settings) error {
	var err error
	if !colourPattern.MatchString(settings.Colour) {
		err = multierr.Append(err, &ValidationError{Field: "colour", Value: settings.Colour, Reason: "must be #RRGGBB"})
	}
	if strings.TrimSpace(settings.Heading) == "" || !descPattern.MatchString(settings.Heading) {
		err = multierr.Append(err, &ValidationError{Field: "heading", Value: settings.Heading, Reason: "invalid heading"})
	}
	switch {
	case settings.Interval < MinInterval:
		err = multierr.Append(err, &ValidationError{Field: "interval", Reason: "Interval under 1 second"})
	case settings.Interval > MaxInterval:
		err = multierr.Append(err, &ValidationError{Field: "interval", Reason: "Interval over 1000 seconds"})
	}
	return err
}

// Validate checks the whole configuration and reports every violation.
func Validate(cfg *Config) error {
	err := ValidateSettings(cfg.Settings)
	for _, target := range cfg.Targets {
		err = multierr.Append(err, ValidateTarget(target))
	}
	return err
}
