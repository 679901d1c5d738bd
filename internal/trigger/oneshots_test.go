package trigger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scripter/internal/timefmt"
)

func TestOneShotSource_FiresDueExactlyOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "a", "echo a", "")
	require.NoError(t, err)

	now := time.Now().UTC()
	oid, err := st.AddOneShot(ctx, sid, timefmt.Format(now.Add(-5*time.Second)), "UTC")
	require.NoError(t, err)
	_, err = st.AddOneShot(ctx, sid, timefmt.Format(now.Add(time.Hour)), "")
	require.NoError(t, err)

	src := NewOneShotSource(nil)
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fmt.Sprintf("oneshot:%d", oid), events[0].TriggerID)
	assert.Equal(t, sid, events[0].ScriptID)
	assert.Zero(t, events[0].DeliveryID)

	// The claim is durable: any number of later polls stay empty.
	for i := 0; i < 3; i++ {
		events, err = src.Poll(ctx, st)
		require.NoError(t, err)
		assert.Empty(t, events)
	}
}

func TestOneShotSource_NothingDue(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "a", "echo a", "")
	require.NoError(t, err)
	_, err = st.AddOneShot(ctx, sid, timefmt.Format(time.Now().UTC().Add(time.Hour)), "")
	require.NoError(t, err)

	src := NewOneShotSource(nil)
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events)
}
