package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scripter/internal/cron"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

// ScheduleSource emits events for interval and cron schedules that are due.
//
// De-duplication: last_run is advanced to now BEFORE the event is emitted,
// so even if the dispatch below fails the schedule will not fire again until
// the next interval/cron boundary. Losing one fire beats firing twice.
type ScheduleSource struct {
	now func() time.Time
}

// NewScheduleSource creates the source. A nil clock uses time.Now.
func NewScheduleSource(now func() time.Time) *ScheduleSource {
	if now == nil {
		now = time.Now
	}
	return &ScheduleSource{now: now}
}

// Poll returns one event per due schedule.
func (s *ScheduleSource) Poll(ctx context.Context, st *store.Store) ([]Event, error) {
	scheds, err := st.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedule source: %w", err)
	}

	now := s.now().UTC()
	var events []Event

	for _, sch := range scheds {
		due, err := scheduleDue(sch, now)
		if err != nil {
			slog.Warn("schedule source: skipping schedule", "schedule", sch.ID, "error", err)
			continue
		}
		if !due {
			continue
		}

		if err := st.MarkScheduleRun(ctx, sch.ID, timefmt.Format(now)); err != nil {
			slog.Warn("schedule source: mark run failed", "schedule", sch.ID, "error", err)
			continue
		}

		events = append(events, Event{
			TriggerID: fmt.Sprintf("schedule:%d", sch.ID),
			ScriptID:  sch.ScriptID,
			Payload:   map[string]any{"schedule_id": sch.ID},
		})
	}
	return events, nil
}

// scheduleDue decides whether a schedule should fire at now.
func scheduleDue(sch store.Schedule, now time.Time) (bool, error) {
	if sch.IntervalSeconds != nil {
		if sch.LastRun == "" {
			return true, nil
		}
		last, err := timefmt.Parse(sch.LastRun)
		if err != nil {
			return false, err
		}
		interval := time.Duration(*sch.IntervalSeconds) * time.Second
		return !now.Before(last.Add(interval)), nil
	}

	if sch.Cron != "" {
		// A null last_run gets a one-minute lookback so a fresh cron
		// schedule whose boundary just passed still fires once.
		base := now.Add(-time.Minute)
		if sch.LastRun != "" {
			parsed, err := timefmt.Parse(sch.LastRun)
			if err != nil {
				return false, err
			}
			base = parsed
		}
		next, err := cron.Next(sch.Cron, sch.TZ, base)
		if err != nil {
			return false, err
		}
		return !next.After(now), nil
	}

	return false, fmt.Errorf("schedule %d has neither interval nor cron", sch.ID)
}
