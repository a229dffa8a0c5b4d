// Package cli binds the omniping command-line overrides.
package cli

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
)

// optional holds a flag value along with whether the flag appeared.
type optional[T any] struct {
	value T
	set   bool
}

func (o *optional[T]) store(v T) {
	o.value = v
	o.set = true
}

func (o *optional[T]) String() string {
	if o == nil || !o.set {
		return ""
	}
	return fmt.Sprint(o.value)
}

// Value reports the parsed value and whether the flag was given.
func (o *optional[T]) Value() (T, bool) {
	return o.value, o.set
}

// pointer returns nil for an unset flag, or when keep rejects the value.
func (o *optional[T]) pointer(keep func(T) bool) *T {
	if !o.set || (keep != nil && !keep(o.value)) {
		return nil
	}
	v := o.value
	return &v
}

// OptionalDuration accepts Go durations or bare seconds, so 2.5 means 2.5s.
type OptionalDuration struct{ optional[time.Duration] }

func (o *OptionalDuration) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive: %q", s)
	}
	o.store(d)
	return nil
}

type OptionalInt struct{ optional[int] }

func (o *OptionalInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.store(n)
	return nil
}

type OptionalString struct{ optional[string] }

func (o *OptionalString) Set(s string) error {
	o.store(s)
	return nil
}

// OptionalBool may be given bare (-ui) or with a value (-ui=false).
type OptionalBool struct{ optional[bool] }

func (o *OptionalBool) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.store(b)
	return nil
}

func (o *OptionalBool) IsBoolFlag() bool { return true }

// OptionalPingMode takes exec or icmp.
type OptionalPingMode struct{ optional[config.PingMode] }

func (o *OptionalPingMode) Set(s string) error {
	mode, err := config.ParsePingMode(s)
	if err != nil {
		return err
	}
	o.store(mode)
	return nil
}

// Flags groups every override flag accepted by the omniping command.
type Flags struct {
	Interval       OptionalDuration
	Listen         OptionalString
	LogDir         OptionalString
	LogLevel       OptionalString
	MaxConcurrency OptionalInt
	PingMode       OptionalPingMode
	UI             OptionalBool
	AutoStart      OptionalBool
}

// Register binds the flags, including short aliases, on fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.Var(&f.Interval, "interval", "polling interval, e.g. 4s or 2.5 (override target file)")
	fs.Var(&f.Interval, "i", "polling interval (override target file)")
	fs.Var(&f.Listen, "listen", "HTTP listen address, e.g. :8080")
	fs.Var(&f.Listen, "l", "HTTP listen address")
	fs.Var(&f.LogDir, "log-dir", "directory for the rotating log file (stderr when empty)")
	fs.Var(&f.LogLevel, "log-level", "log level: debug|info|warn|error")
	fs.Var(&f.MaxConcurrency, "max-concurrency", "max concurrent probes per tick")
	fs.Var(&f.PingMode, "ping-mode", "ping backend: exec|icmp")
	fs.Var(&f.UI, "ui", "show the terminal dashboard")
	fs.Var(&f.AutoStart, "start", "start polling immediately")
}

func nonEmpty(s string) bool { return s != "" }

// Overrides converts the flags that were set into config overrides.
func (f *Flags) Overrides() config.CLIOverrides {
	return config.CLIOverrides{
		Interval:       f.Interval.pointer(nil),
		Listen:         f.Listen.pointer(nonEmpty),
		LogDir:         f.LogDir.pointer(nil),
		LogLevel:       f.LogLevel.pointer(nonEmpty),
		MaxConcurrency: f.MaxConcurrency.pointer(nil),
		PingMode:       f.PingMode.pointer(nil),
		UIEnable:       f.UI.pointer(nil),
		AutoStart:      f.AutoStart.pointer(nil),
	}
}
