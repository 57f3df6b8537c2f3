package download

import (
	"errors"
	"os"
	"sync"

	"github.com/hbomb79/Tube/internal/event"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/pkg/logger"
)

type (
	artifacts struct {
		video  string
		audio  string
		merged string
	}

	// pipeline is the per-request state owned by a single call to Download.
	pipeline struct {
		Request
		sync.Mutex
		state     State
		handle    *progress.Handle
		eventBus  event.EventDispatcher
		artifacts artifacts
	}
)

// transition moves the pipeline to the state provided, mirroring it on to the
// progress handle and announcing the change on the event bus. Transitions out
// of a terminal state are ignored.
func (p *pipeline) transition(state State) {
	p.Lock()
	if p.state.Terminal() {
		p.Unlock()
		return
	}
	p.state = state
	p.handle.SetStage(state.String())
	p.Unlock()

	log.Emit(logger.DEBUG, "Download %s -> %s\n", p.ID, state)
	p.eventBus.Dispatch(event.DOWNLOAD_UPDATE, p.ID)
}

// remove deletes every artifact, regardless of whether it was ever
// created. Failures are logged and otherwise ignored.
func (a artifacts) remove() {
	for _, path := range []string{a.video, a.audio, a.merged} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.WARNING, "Failed to remove temporary artifact %s: %v\n", path, err)
		}
	}
}
