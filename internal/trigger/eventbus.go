package trigger

import (
	"context"
	"fmt"

	"github.com/roach88/scripter/internal/store"
)

// EventBusSource claims ready deliveries for this daemon and emits one event
// per claim. The delivery is NOT marked processed here: the run service's
// completion callback does that once the run reaches a terminal state, so a
// crash mid-run leaves the delivery claimed (visible to the operator) rather
// than silently dropped.
type EventBusSource struct {
	owner string
}

// NewEventBusSource creates the source for the given claim owner
// ("<host>:<pid>").
func NewEventBusSource(owner string) *EventBusSource {
	return &EventBusSource{owner: owner}
}

// Poll claims unclaimed deliveries and returns one event per claim.
func (s *EventBusSource) Poll(ctx context.Context, st *store.Store) ([]Event, error) {
	claimed, err := st.ClaimReadyDeliveries(ctx, s.owner, claimBatchSize)
	if err != nil {
		return nil, fmt.Errorf("event bus source: %w", err)
	}

	events := make([]Event, 0, len(claimed))
	for _, d := range claimed {
		events = append(events, Event{
			TriggerID:  fmt.Sprintf("event:%s", d.Topic),
			ScriptID:   d.ScriptID,
			DeliveryID: d.DeliveryID,
			Payload: map[string]any{
				"topic":        d.Topic,
				"event_id":     d.EventID,
				"delivery_id":  d.DeliveryID,
				"payload_json": d.PayloadJSON,
			},
		})
	}
	return events, nil
}
