package trigger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/testutil"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduleSource_IntervalFiresOncePerInterval(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hi", "echo hi", "")
	require.NoError(t, err)
	schedID, err := st.AddIntervalSchedule(ctx, sid, 60)
	require.NoError(t, err)

	clock := testutil.NewClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	src := NewScheduleSource(clock.Now)

	// t: never run, fires.
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "schedule:1", events[0].TriggerID)
	assert.Equal(t, sid, events[0].ScriptID)
	_ = schedID

	// t+10s: inside the interval, quiet.
	clock.Advance(10 * time.Second)
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events)

	// t+70s: past the interval, fires again.
	clock.Advance(60 * time.Second)
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestScheduleSource_MarksLastRunBeforeEmitting(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hi", "echo hi", "")
	require.NoError(t, err)
	_, err = st.AddIntervalSchedule(ctx, sid, 60)
	require.NoError(t, err)

	src := NewScheduleSource(nil)
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	require.Len(t, events, 1)

	scheds, err := st.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	assert.NotEmpty(t, scheds[0].LastRun, "last_run must advance when the event is emitted")
}

func TestScheduleSource_CronWeekdayMorningInZone(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "report", "echo report", "")
	require.NoError(t, err)
	_, err = st.AddCronSchedule(ctx, sid, "0 9 * * 1-5", "America/New_York")
	require.NoError(t, err)

	// Monday 2025-01-06 08:59:59 New York.
	clock := testutil.NewClock(time.Date(2025, 1, 6, 13, 59, 59, 0, time.UTC))
	src := NewScheduleSource(clock.Now)

	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events, "not due one second before 09:00 local")

	// 09:00:00 local: due exactly once.
	clock.Advance(time.Second)
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Still 09:00 local: last_run advanced, not due again.
	clock.Advance(30 * time.Second)
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Tuesday 09:00 local (14:00 UTC): due again.
	clock.Set(time.Date(2025, 1, 7, 14, 0, 0, 0, time.UTC))
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestScheduleSource_SkipsBadCronRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "a", "echo a", "")
	require.NoError(t, err)
	// The store does not validate cron; simulate a corrupt row.
	_, err = st.AddCronSchedule(ctx, sid, "not a cron", "")
	require.NoError(t, err)
	_, err = st.AddIntervalSchedule(ctx, sid, 60)
	require.NoError(t, err)

	src := NewScheduleSource(nil)
	events, err := src.Poll(ctx, st)
	require.NoError(t, err, "a bad row must not abort the poll")
	assert.Len(t, events, 1, "the healthy interval schedule still fires")
}
