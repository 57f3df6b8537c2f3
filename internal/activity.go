package internal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/event"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/pkg/logger"
)

var activityLog = logger.Get("Activity")

type (
	handleLookup interface {
		Get(uuid.UUID) (*progress.Handle, bool)
	}

	// activityService listens for download events on the event bus and
	// records each stage transition in the activity log.
	activityService struct {
		eventBus event.EventHandler
		handles  handleLookup
	}
)

func newActivityService(eventBus event.EventHandler, handles handleLookup) *activityService {
	return &activityService{eventBus: eventBus, handles: handles}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan, event.DOWNLOAD_UPDATE, event.DOWNLOAD_COMPLETE)

	activityLog.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			service.consume(ev)
		case <-ctx.Done():
			service.detach(messageChan)
			activityLog.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

// detach removes the channel from the event bus, continuing to consume events
// until the bus confirms that no dispatcher can send on it. Downloads still
// in flight during shutdown would otherwise block once the buffer filled.
func (service *activityService) detach(messageChan event.HandlerChannel) {
	detached := make(chan struct{})
	go func() {
		service.eventBus.UnregisterHandlerChannel(messageChan)
		close(detached)
	}()

	for {
		select {
		case ev := <-messageChan:
			service.consume(ev)
		case <-detached:
			for {
				select {
				case ev := <-messageChan:
					service.consume(ev)
				default:
					return
				}
			}
		}
	}
}

func (service *activityService) consume(ev event.HandlerEvent) {
	if err := service.handleEvent(ev); err != nil {
		activityLog.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	downloadID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		return errors.New("illegal payload (expected UUID)")
	}

	handle, ok := service.handles.Get(downloadID)
	if !ok {
		return nil
	}

	switch ev.Event {
	case event.DOWNLOAD_UPDATE:
		activityLog.Emit(logger.INFO, "Download %s is %s (%.2f%%)\n", downloadID, handle.Stage(), handle.Percentage())
	case event.DOWNLOAD_COMPLETE:
		elapsed := handle.FinishedAt().Sub(handle.StartedAt())
		activityLog.Emit(logger.SUCCESS, "Download %s finished as %s after %s\n", downloadID, handle.Stage(), elapsed)
	default:
		return errors.New("unknown event type")
	}

	return nil
}
