package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusSource_EmitsOnePerDelivery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a, err := st.AddScript(ctx, "a", "echo a", "")
	require.NoError(t, err)
	b, err := st.AddScript(ctx, "b", "echo b", "")
	require.NoError(t, err)
	_, err = st.Subscribe(ctx, "deploys", a)
	require.NoError(t, err)
	_, err = st.Subscribe(ctx, "deploys", b)
	require.NoError(t, err)

	_, err = st.PublishEvent(ctx, "deploys", `{"v":1}`)
	require.NoError(t, err)

	src := NewEventBusSource("host:42")
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	require.Len(t, events, 2)

	for _, ev := range events {
		assert.Equal(t, "event:deploys", ev.TriggerID)
		assert.NotZero(t, ev.DeliveryID)
		assert.Equal(t, `{"v":1}`, ev.Payload["payload_json"])
	}

	// Claimed deliveries are not re-emitted, even though they are not yet
	// marked processed.
	events, err = src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventBusSource_EmptyWithoutSubscriptions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.PublishEvent(ctx, "nobody-listens", "")
	require.NoError(t, err)

	src := NewEventBusSource("host:42")
	events, err := src.Poll(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, events)
}
