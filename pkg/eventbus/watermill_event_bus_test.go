package eventbus_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/followup/pkg/channels/gochannel"
	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, events.TagTopic, eventbus.TopicFor(events.LeadTagAppliedEvent))
	assert.Equal(t, events.Topic, eventbus.TopicFor(events.StepExecutedEvent))
	assert.Equal(t, events.Topic, eventbus.TopicFor(events.AssignmentCompletedEvent))
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.StepExecuted, 1)
	tags := make(chan *events.LeadTagApplied, 1)

	require.NoError(t, bus.Handle(events.StepExecutedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StepExecuted)

		return nil
	}))
	require.NoError(t, bus.Handle(events.LeadTagAppliedEvent, func(_ context.Context, event any) error {
		tags <- event.(*events.LeadTagApplied)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "asg-1", events.StepExecuted{
		BaseEvent:  events.NewBaseEvent(events.StepExecutedEvent, "seq-1", "asg-1", "lead-1"),
		StepOrder:  2,
		TriggerTag: "reminder",
	})
	require.NoError(t, err)

	err = bus.Publish(ctx, "lead-1", events.LeadTagApplied{
		BaseEvent: events.NewBaseEvent(events.LeadTagAppliedEvent, "seq-1", "asg-1", "lead-1"),
		Email:     "ada@example.com",
		Tag:       "reminder",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, 2, event.StepOrder)
		assert.Equal(t, "reminder", event.TriggerTag)
	case <-time.After(5 * time.Second):
		t.Fatal("step executed event not delivered")
	}

	select {
	case event := <-tags:
		assert.Equal(t, "ada@example.com", event.Email)
	case <-time.After(5 * time.Second):
		t.Fatal("tag event not delivered")
	}
}
