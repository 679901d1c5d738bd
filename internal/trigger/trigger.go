// Package trigger defines the normalized trigger event and the source
// abstraction the scheduler polls, plus the four built-in sources.
//
// A source owns at-most-once semantics for its own event space: schedules
// de-duplicate by advancing last_run before emitting, one-shots and bus
// deliveries by atomic store claims, file watches by in-memory burst clocks.
package trigger

import (
	"context"

	"github.com/roach88/scripter/internal/store"
)

// Event is a normalized intent to run one script, with provenance.
type Event struct {
	// TriggerID is a namespaced provenance id: "schedule:17", "file:3",
	// "oneshot:42", "event:<topic>", "webhook:<name>", "manual".
	TriggerID string

	// ScriptID is the target script.
	ScriptID int64

	// DeliveryID is non-zero only for event-bus triggers; the run service's
	// completion callback uses it to mark the delivery processed.
	DeliveryID int64

	// Payload carries optional structured context for debugging.
	Payload map[string]any
}

// Source emits zero or more trigger events when polled. Poll returns an
// error only for store-level failures; per-row problems are logged and
// skipped so one bad row cannot starve the rest.
type Source interface {
	Poll(ctx context.Context, st *store.Store) ([]Event, error)
}
