// Package cron evaluates five-field cron expressions
// (minute hour day-of-month month day-of-week).
//
// Supported syntax: "*", literal numbers, comma lists, ranges ("a-b") and
// steps ("*/n", "a-b/n"). When both day-of-month and day-of-week are
// restricted, a time matches if either field matches (standard cron OR
// semantics). Evaluation happens in an IANA zone so "0 9 * * 1-5" means
// 09:00 local wherever the schedule says it lives.
package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// fiveField parses minute, hour, dom, month, dow - no seconds, no
// descriptors. This is the wire format stored in schedules.cron.
var fiveField = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Parse validates a five-field expression. Use at input boundaries so a bad
// expression is rejected before it reaches the store.
func Parse(expr string) error {
	if expr == "" {
		return fmt.Errorf("empty cron expression")
	}
	if _, err := fiveField.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Next returns the first instant strictly after base that matches expr,
// evaluated in the named IANA zone. An empty tz falls back to the process
// local zone.
func Next(expr, tz string, base time.Time) (time.Time, error) {
	sched, err := fiveField.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	loc := time.Local
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}

	return sched.Next(base.In(loc)), nil
}
