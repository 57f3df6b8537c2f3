package internal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/event"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/stretchr/testify/assert"
)

func Test_Activity_HandlesDownloadEvents(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{})
	id := uuid.New()
	handle := tracker.Start(id)
	handle.SetStage("Merging")

	service := newActivityService(event.New(), tracker)
	assert.NoError(t, service.handleEvent(event.HandlerEvent{Event: event.DOWNLOAD_UPDATE, Payload: id}))

	handle.Finish()
	assert.NoError(t, service.handleEvent(event.HandlerEvent{Event: event.DOWNLOAD_COMPLETE, Payload: id}))

	// Unknown downloads are ignored
	assert.NoError(t, service.handleEvent(event.HandlerEvent{Event: event.DOWNLOAD_UPDATE, Payload: uuid.New()}))
}

func Test_Activity_RejectsIllegalPayload(t *testing.T) {
	service := newActivityService(event.New(), progress.NewTracker(progress.Config{}))
	assert.Error(t, service.handleEvent(event.HandlerEvent{Event: event.DOWNLOAD_UPDATE, Payload: "nope"}))
}

func Test_Activity_RunStopsOnCancel(t *testing.T) {
	bus := event.New()
	tracker := progress.NewTracker(progress.Config{})
	service := newActivityService(bus, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- service.Run(ctx) }()

	id := uuid.New()
	tracker.Start(id)
	time.Sleep(10 * time.Millisecond)
	bus.Dispatch(event.DOWNLOAD_UPDATE, id)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("activity service did not stop")
	}
}

func Test_Activity_ShutdownDoesNotBlockDispatchers(t *testing.T) {
	bus := event.New()
	service := newActivityService(bus, progress.NewTracker(progress.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- service.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	// More events than the service buffers, dispatched across the shutdown
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i := 0; i < 1000; i++ {
			bus.Dispatch(event.DOWNLOAD_UPDATE, uuid.New())
		}
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("activity service did not stop")
	}

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("dispatcher blocked after the activity service stopped")
	}
}
