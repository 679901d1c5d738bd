package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

// claimBatchSize bounds how many one-shots or deliveries one tick claims.
const claimBatchSize = 50

// OneShotSource emits events for one-shots whose run time has passed.
// At-most-once comes entirely from the store's atomic claim; this source
// keeps no state of its own.
type OneShotSource struct {
	now func() time.Time
}

// NewOneShotSource creates the source. A nil clock uses time.Now.
func NewOneShotSource(now func() time.Time) *OneShotSource {
	if now == nil {
		now = time.Now
	}
	return &OneShotSource{now: now}
}

// Poll claims due one-shots and returns one event per claimed row.
func (s *OneShotSource) Poll(ctx context.Context, st *store.Store) ([]Event, error) {
	claimed, err := st.ClaimDueOneShots(ctx, timefmt.Format(s.now()), claimBatchSize)
	if err != nil {
		return nil, fmt.Errorf("one-shot source: %w", err)
	}

	events := make([]Event, 0, len(claimed))
	for _, o := range claimed {
		events = append(events, Event{
			TriggerID: fmt.Sprintf("oneshot:%d", o.ID),
			ScriptID:  o.ScriptID,
			Payload: map[string]any{
				"run_at_utc": o.RunAtUTC,
				"tz":         o.TZ,
			},
		})
	}
	return events, nil
}
