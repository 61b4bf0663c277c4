package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankbria/codeframe/pkg/models"
)

func TestSubscribeReceivesNotifiedEvents(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(ProjectChannel(1))
	defer sub.Unsubscribe()

	b.Notify(models.Event{ProjectID: 1, Kind: models.EventTaskStatusChanged})

	select {
	case evt := <-sub.Events:
		assert.Equal(t, models.EventTaskStatusChanged, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event, got nothing")
	}
}

func TestNotifyDoesNotCrossProjectChannels(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(ProjectChannel(1))
	defer sub.Unsubscribe()

	b.Notify(models.Event{ProjectID: 2, Kind: models.EventTaskStatusChanged})

	select {
	case <-sub.Events:
		t.Fatal("subscriber to project 1 should not see project 2's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOverflowInsertsGapMarker(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(ProjectChannel(1))
	defer sub.Unsubscribe()

	// Fill the queue, then push one more to force an overflow.
	b.Notify(models.Event{ProjectID: 1, Kind: models.EventTaskStatusChanged, Payload: map[string]any{"n": 1}})
	b.Notify(models.Event{ProjectID: 1, Kind: models.EventTaskStatusChanged, Payload: map[string]any{"n": 2}})
	b.Notify(models.Event{ProjectID: 1, Kind: models.EventTaskStatusChanged, Payload: map[string]any{"n": 3}})

	var kinds []models.EventKind
	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub.Events:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("expected event %d, got nothing", i)
		}
	}
	require.Contains(t, kinds, models.EventGap)
}

func TestPersistentOverflowDropsSubscriber(t *testing.T) {
	b := New(1)
	sub := b.Subscribe(ProjectChannel(1))

	for i := 0; i < maxConsecutiveOverflows+2; i++ {
		b.Notify(models.Event{ProjectID: 1, Kind: models.EventTaskStatusChanged})
	}

	assert.Equal(t, 0, b.SubscriberCount(ProjectChannel(1)), "bus should have dropped the slow subscriber")

	// Draining the channel should eventually observe it closed.
	drained := false
	for i := 0; i < 10; i++ {
		select {
		case _, ok := <-sub.Events:
			if !ok {
				drained = true
			}
		case <-time.After(100 * time.Millisecond):
		}
		if drained {
			break
		}
	}
	assert.True(t, drained, "dropped subscriber's channel should close")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(ProjectChannel(1))
	sub.Unsubscribe()
	assert.NotPanics(t, func() { sub.Unsubscribe() })
}
