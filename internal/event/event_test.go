package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/event"
	"github.com/stretchr/testify/assert"
)

func Test_Dispatch_DeliversToFunctionsAndChannels(t *testing.T) {
	bus := event.New()
	id := uuid.New()

	var received []event.Payload
	bus.RegisterHandlerFunction(event.DOWNLOAD_UPDATE, func(_ event.Event, payload event.Payload) {
		received = append(received, payload)
	})

	ch := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(ch, event.DOWNLOAD_UPDATE, event.DOWNLOAD_COMPLETE)

	bus.Dispatch(event.DOWNLOAD_UPDATE, id)

	assert.Equal(t, []event.Payload{id}, received)
	select {
	case ev := <-ch:
		assert.Equal(t, event.DOWNLOAD_UPDATE, ev.Event)
		assert.Equal(t, id, ev.Payload)
	default:
		t.Fatal("expected event on handler channel")
	}
}

func Test_Dispatch_AsyncHandler(t *testing.T) {
	bus := event.New()
	wg := sync.WaitGroup{}
	wg.Add(1)
	bus.RegisterAsyncHandlerFunction(event.DOWNLOAD_COMPLETE, func(event.Event, event.Payload) { wg.Done() })

	bus.Dispatch(event.DOWNLOAD_COMPLETE, uuid.New())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler was not called")
	}
}

func Test_Dispatch_RejectsIllegalPayload(t *testing.T) {
	bus := event.New()
	called := false
	bus.RegisterHandlerFunction(event.DOWNLOAD_UPDATE, func(event.Event, event.Payload) { called = true })

	bus.Dispatch(event.DOWNLOAD_UPDATE, "not-a-uuid")
	bus.Dispatch(event.DOWNLOAD_UPDATE, nil)
	bus.Dispatch(event.Event("unknown"), uuid.New())

	assert.False(t, called)
}

func Test_UnregisterHandlerChannel(t *testing.T) {
	bus := event.New()
	removed := make(event.HandlerChannel)
	kept := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(removed, event.DOWNLOAD_UPDATE, event.DOWNLOAD_COMPLETE)
	bus.RegisterHandlerChannel(kept, event.DOWNLOAD_UPDATE)

	bus.UnregisterHandlerChannel(removed)

	// removed is unbuffered with no reader, so a send on it would block here
	bus.Dispatch(event.DOWNLOAD_UPDATE, uuid.New())
	bus.Dispatch(event.DOWNLOAD_COMPLETE, uuid.New())

	select {
	case <-kept:
	default:
		t.Fatal("expected event on the remaining channel")
	}
}
