package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-build/nexus/internal/models"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	var received []models.Event
	bus.Subscribe(models.EventTaskStarted, func(e models.Event) {
		received = append(received, e)
	})

	bus.Publish(models.Event{Kind: models.EventTaskStarted, TaskID: "t1", Timestamp: time.Now()})
	bus.Publish(models.Event{Kind: models.EventTaskCompleted, TaskID: "t1", Timestamp: time.Now()})

	assert.Len(t, received, 1)
	assert.Equal(t, "t1", received[0].TaskID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	count := 0
	unsub := bus.Subscribe(models.EventTaskStarted, func(e models.Event) { count++ })

	bus.Publish(models.Event{Kind: models.EventTaskStarted})
	unsub()
	bus.Publish(models.Event{Kind: models.EventTaskStarted})

	assert.Equal(t, 1, count)

	assert.NotPanics(t, unsub)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := New()
	second := false
	bus.Subscribe(models.EventTaskFailed, func(e models.Event) { panic("boom") })
	bus.Subscribe(models.EventTaskFailed, func(e models.Event) { second = true })

	assert.NotPanics(t, func() {
		bus.Publish(models.Event{Kind: models.EventTaskFailed})
	})
	assert.True(t, second)
}

func TestPerSubscriberEmissionOrder(t *testing.T) {
	bus := New()
	var order []string
	bus.Subscribe(models.EventStageCompleted, func(e models.Event) {
		order = append(order, e.TaskID)
	})

	bus.Publish(models.Event{Kind: models.EventStageCompleted, TaskID: "a"})
	bus.Publish(models.Event{Kind: models.EventStageCompleted, TaskID: "b"})
	bus.Publish(models.Event{Kind: models.EventStageCompleted, TaskID: "c"})

	assert.Equal(t, []string{"a", "b", "c"}, order)
}
