package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Update is a partial settings change submitted by the setup page. Nil fields are left as is;
// a non-nil Targets replaces the whole test list.
type Update struct {
	Targets  *[]Target
	Heading  *string
	Colour   *string
	Interval *time.Duration
}

// Store is the thread-safe owner of the target configuration. It tracks whether the test
// list changed since the engine last rebuilt its report.
type Store struct {
	mu      sync.RWMutex
	path    string
	cfg     Config
	pending bool
}

// NewStore wraps cfg. An empty path disables saving.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{path: path, cfg: cloneConfig(cfg)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *cloneConfigPtr(&s.cfg)
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings
}

// Interval returns the configured polling interval.
func (s *Store) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings.Interval
}

// ActiveTargets returns the active targets in configuration order.
func (s *Store) ActiveTargets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]Target, 0, len(s.cfg.Targets))
	for _, target := range s.cfg.Targets {
		if target.Active {
			active = append(active, target)
		}
	}
	return active
}

// PendingChanges reports whether the test list changed since the last TakePendingChanges.
func (s *Store) PendingChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// TakePendingChanges returns the pending flag and clears it.
func (s *Store) TakePendingChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = false
	return pending
}

// Update validates and applies u, saves the file and returns a summary message.
// Nothing is applied when validation fails.
func (s *Store) Update(u Update) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneConfig(&s.cfg)
	var changed []string

	if u.Targets != nil {
		targets := make([]Target, 0, len(*u.Targets))
		for _, t := range *u.Targets {
			if kind, ok := ParseKind(string(t.Kind)); ok {
				t.Kind = kind
			}
			t.Host = strings.TrimSpace(t.Host)
			t.Description = strings.TrimSpace(t.Description)
			targets = append(targets, t)
		}
		if targetsChanged(next.Targets, targets) {
			changed = append(changed, "Tests")
		}
		next.Targets = targets
	}
	if u.Heading != nil && *u.Heading != next.Settings.Heading {
		next.Settings.Heading = strings.TrimSpace(*u.Heading)
		changed = append(changed, "Heading")
	}
	if u.Colour != nil && !strings.EqualFold(*u.Colour, next.Settings.Colour) {
		next.Settings.Colour = strings.ToUpper(strings.TrimSpace(*u.Colour))
		changed = append(changed, "Colour")
	}
	if u.Interval != nil && *u.Interval != next.Settings.Interval {
		next.Settings.Interval = *u.Interval
		changed = append(changed, "Interval")
	}

	if err := Validate(&next); err != nil {
		return "", err
	}

	s.cfg = next
	if u.Targets != nil {
		s.pending = true
	}

	if s.path != "" {
		if err := Save(s.path, &s.cfg); err != nil {
			return "", fmt.Errorf("save %s: %w", s.path, err)
		}
	}
	return updateMessage(changed, len(s.cfg.Targets) == 0), nil
}

func updateMessage(changed []string, noTests bool) string {
	suffix := ""
	if noTests {
		suffix = " - 0 tests Defined !!"
	}
	switch len(changed) {
	case 0:
		return "No changes made" + suffix
	case 1:
		return "Updated: " + changed[0] + suffix
	default:
		return fmt.Sprintf("Updated: %s & %s%s", strings.Join(changed[:len(changed)-1], ", "), changed[len(changed)-1], suffix)
	}
}

func targetsChanged(old, updated []Target) bool {
	if len(old) != len(updated) {
		return true
	}
	for i := range old {
		if old[i] != updated[i] {
			return true
		}
	}
	return false
}

func cloneConfig(cfg *Config) Config {
	return *cloneConfigPtr(cfg)
}

func cloneConfigPtr(cfg *Config) *Config {
	clone := *cfg
	clone.Targets = append([]Target(nil), cfg.Targets...)
	return &clone
}
