package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventIDsStrictlyIncreasing(t *testing.T) {
	e := New()
	sub, ok := e.Subscribe()
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		e.PublishModeChange(ModeChange{From: "IDLE", To: "MANUAL", Timestamp: time.Now()})
	}

	var last uint64
	for i := 0; i < 5; i++ {
		ev := <-sub.Channel()
		require.Greater(t, ev.ID, last)
		last = ev.ID
	}
}

func TestOverflowDropsOldestAndCounts(t *testing.T) {
	e := New(WithQueueLen(2))
	sub, ok := e.Subscribe()
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		e.PublishModeChange(ModeChange{From: "IDLE", To: "MANUAL"})
	}

	require.Greater(t, sub.Drops(), uint64(0))

	// whatever is left in the queue must still be in increasing id order
	var last uint64
	for {
		select {
		case ev := <-sub.Channel():
			require.Greater(t, ev.ID, last)
			last = ev.ID
		default:
			return
		}
	}
}

func TestSubscriberCapEnforced(t *testing.T) {
	e := New(WithSubscriberCap(1))
	_, ok := e.Subscribe()
	require.True(t, ok)
	_, ok = e.Subscribe()
	require.False(t, ok)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := New()
	sub, _ := e.Subscribe()
	sub.Unsubscribe()

	e.PublishModeChange(ModeChange{From: "IDLE", To: "MANUAL"})
	select {
	case <-sub.Channel():
		t.Fatal("unsubscribed subscriber should not receive further events")
	default:
	}
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	e := New()
	sub, _ := e.Subscribe()

	e.PublishModeChange(ModeChange{To: "AUTO"})
	e.PublishParameterChange(ParameterChange{Name: "target"})
	e.PublishBTError(BTError{Message: "boom"})

	first := <-sub.Channel()
	second := <-sub.Channel()
	third := <-sub.Channel()

	require.Equal(t, KindModeChange, first.Kind)
	require.Equal(t, KindParameterChange, second.Kind)
	require.Equal(t, KindBTError, third.Kind)
	require.Less(t, first.ID, second.ID)
	require.Less(t, second.ID, third.ID)
}
