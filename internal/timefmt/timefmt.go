// Package timefmt defines the timestamp string contract shared by the store
// and every component that compares instants.
//
// All persisted timestamps are ISO-8601 in UTC with second precision and an
// explicit +00:00 offset, e.g. "2025-01-06T14:00:00+00:00". Using a fixed
// textual form keeps SQLite string comparison (run_at_utc <= now) consistent
// with time ordering.
package timefmt

import (
	"fmt"
	"time"
)

// Layout is the canonical on-disk timestamp layout.
const Layout = "2006-01-02T15:04:05-07:00"

// Format renders t in the canonical layout, truncated to whole seconds in UTC.
func Format(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(Layout)
}

// Now returns the current instant in the canonical layout.
func Now() string {
	return Format(time.Now())
}

// Parse reads a canonical timestamp back into a UTC time.Time.
// RFC 3339 "Z" suffixed values are accepted as well, since older rows may
// have been written by hand or by other tooling.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ToLocalDisplay renders a stored timestamp in the local zone for CLI
// listings. Empty input renders as empty (nullable columns).
func ToLocalDisplay(s string) string {
	if s == "" {
		return ""
	}
	t, err := Parse(s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 03:04:05 PM MST")
}
