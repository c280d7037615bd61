package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversToTopicSubscribers(t *testing.T) {
	b := NewLocalBus()
	var got []Event
	unsub, err := b.Subscribe(OrderTopic("o1"), func(e Event) { got = append(got, e) })
	require.NoError(t, err)

	var other int
	_, _ = b.Subscribe(OrderTopic("o2"), func(Event) { other++ })

	Publish(b, OrderTopic("o1"), OrderStatus, map[string]string{"status": "payment_sent"})
	require.Len(t, got, 1)
	assert.Equal(t, OrderStatus, got[0].Type)
	assert.JSONEq(t, `{"status":"payment_sent"}`, string(got[0].Data))
	assert.Zero(t, other)

	unsub()
	Publish(b, OrderTopic("o1"), MessageNew, "hi")
	assert.Len(t, got, 1)
	assert.NotContains(t, b.subs, OrderTopic("o1"))
}
