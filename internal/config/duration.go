package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration-typed fields arrive as Go duration strings ("3s", "10m", "1h30m").
// Blank means "use the built-in default". Negatives are rejected outright:
// every duration in this config is a delay, timeout or interval.

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def for a blank or zero field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// CheckDurations walks every duration field of cfg and returns the first
// parse failure, named by its config path. The reload validator runs this so
// a bad edit is rejected before commit instead of surfacing later, mid-arm.
func CheckDurations(cfg *Config) error {
	fields := []struct {
		path string
		raw  string
	}{
		{"service.request_timeout", cfg.Service.RequestTimeout},
		{"scheduler.margin", cfg.Scheduler.Margin},
		{"scheduler.grace", cfg.Scheduler.Grace},
		{"scheduler.horizon", cfg.Scheduler.Horizon},
		{"refresh.every", cfg.Refresh.Every},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	}
	for _, f := range fields {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
