package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "RESOURCE_READY_TO_PICK_u1", Channel(EventResourceReadyToPick, "u1"))
}

func TestDispatcherRoutesByUser(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventResourceReadyToPick, "u1", func(_ context.Context, e Event) error {
		got = append(got, e.ID)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{ID: "e1", Type: EventResourceReadyToPick, UserID: "u1"}))
	require.NoError(t, d.Publish(context.Background(), Event{ID: "e2", Type: EventResourceReadyToPick, UserID: "u2"}))
	assert.Equal(t, []string{"e1"}, got)
}

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(EventResourceReadyToPick, "u1", func(context.Context, Event) error {
		calls++
		return errors.New("first")
	})
	d.Subscribe(EventResourceReadyToPick, "u1", func(context.Context, Event) error {
		calls++
		return nil
	})
	err := d.Publish(context.Background(), Event{Type: EventResourceReadyToPick, UserID: "u1"})
	assert.EqualError(t, err, "first")
	assert.Equal(t, 2, calls)
}
