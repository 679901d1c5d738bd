package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/watcher"
)

// Defaults for file-watch coalescing.
const (
	DefaultQuietPeriod = 3 * time.Second
	DefaultMinInterval = 30 * time.Second
)

// FileWatchSource fires scripts when watched paths settle after a change.
//
// Per-trigger clocks (all in memory, lost on restart - that only loosens
// coalescing, never at-most-once):
//
//	lastChangeSeen        when the oracle last reported a change
//	lastExecutedForChange when we last fired for the current change burst
//	lastExecTime          when we last fired at all (rate cap)
//
// A trigger fires only when a change was seen, the quiet period has elapsed
// since the last change, this burst has not already fired, and the rate cap
// allows it.
type FileWatchSource struct {
	oracle      *watcher.Watcher
	quietPeriod time.Duration
	minInterval time.Duration
	now         func() time.Time

	lastChangeSeen        map[int64]time.Time
	lastExecutedForChange map[int64]time.Time
	lastExecTime          map[int64]time.Time
}

// NewFileWatchSource creates the source. Zero durations take the defaults;
// a nil clock uses time.Now.
func NewFileWatchSource(quietPeriod, minInterval time.Duration, now func() time.Time) *FileWatchSource {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if now == nil {
		now = time.Now
	}
	return &FileWatchSource{
		oracle:                watcher.New(),
		quietPeriod:           quietPeriod,
		minInterval:           minInterval,
		now:                   now,
		lastChangeSeen:        make(map[int64]time.Time),
		lastExecutedForChange: make(map[int64]time.Time),
		lastExecTime:          make(map[int64]time.Time),
	}
}

// Poll scans every file trigger and returns events for those that settled.
func (s *FileWatchSource) Poll(ctx context.Context, st *store.Store) ([]Event, error) {
	triggers, err := st.ListFileTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("file watch source: %w", err)
	}

	now := s.now().UTC()
	var events []Event

	for _, ft := range triggers {
		changed, err := s.oracle.Scan(ft.Path, ft.Recursive)
		if err != nil {
			// One unreadable path must not block the others.
			slog.Warn("file watch source: scan failed", "trigger", ft.ID, "path", ft.Path, "error", err)
			continue
		}
		if changed {
			s.lastChangeSeen[ft.ID] = now
			continue
		}

		lastChange, ok := s.lastChangeSeen[ft.ID]
		if !ok {
			continue
		}
		if now.Sub(lastChange) < s.quietPeriod {
			continue
		}
		if lastExec, ok := s.lastExecutedForChange[ft.ID]; ok && !lastExec.Before(lastChange) {
			continue // this burst already fired
		}
		if lastTime, ok := s.lastExecTime[ft.ID]; ok && now.Sub(lastTime) < s.minInterval {
			continue // rate cap
		}

		s.lastExecTime[ft.ID] = now
		s.lastExecutedForChange[ft.ID] = now

		events = append(events, Event{
			TriggerID: fmt.Sprintf("file:%d", ft.ID),
			ScriptID:  ft.ScriptID,
			Payload: map[string]any{
				"file_trigger_id": ft.ID,
				"path":            ft.Path,
				"recursive":       ft.Recursive,
			},
		})
	}
	return events, nil
}
