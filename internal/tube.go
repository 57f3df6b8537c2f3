package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Tube/internal/api"
	"github.com/hbomb79/Tube/internal/download"
	"github.com/hbomb79/Tube/internal/event"
	"github.com/hbomb79/Tube/internal/fetch"
	"github.com/hbomb79/Tube/internal/ffmpeg"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/internal/provider"
	"github.com/hbomb79/Tube/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// tubeImpl represents the top-level object for the server, and is responsible
	// for initialising the services, and event handling.
	tubeImpl struct {
		eventBus event.EventCoordinator
		config   TubeConfig

		tracker         *progress.Tracker
		downloadService *download.Service
		restGateway     *api.RestGateway
		activityService *activityService
	}
)

func New(config TubeConfig) (*tubeImpl, error) {
	logger.SetMinLoggingLevel(logger.ParseLevel(config.LogLevel).Level())
	log.Emit(logger.DEBUG, "Bootstrapping Tube services using config: %#v\n", config)

	tube := &tubeImpl{
		eventBus: event.New(),
		config:   config,
		tracker:  progress.NewTracker(config.Progress),
	}

	source := provider.NewYouTube(config.Provider)
	serv, err := download.New(
		config.Download,
		source,
		fetch.New(source),
		ffmpeg.NewMerger(config.Format),
		tube.tracker,
		tube.eventBus,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to construct download service due to error: %w", err)
	}

	tube.downloadService = serv
	tube.restGateway = api.NewRestGateway(&config.RestConfig, tube.downloadService, tube.tracker)
	tube.activityService = newActivityService(tube.eventBus, tube.tracker)

	return tube, nil
}

// Run will start all of Tube by bringing up all the services.
//
// This function will not return until Tube is stopped.
// To stop Tube, the provided context must be cancelled. Errors from which Tube cannot recover
// will also cause Tube to stop.
func (tube *tubeImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("%s: %w", label, err))
	}

	wg := &sync.WaitGroup{}
	tube.spawnAsyncService(ctx, wg, tube.activityService, "activity-service", crashHandler)
	tube.spawnAsyncService(ctx, wg, tube.tracker, "progress-tracker", crashHandler)
	tube.spawnAsyncService(ctx, wg, tube.downloadService, "download-service", crashHandler)
	tube.spawnAsyncService(ctx, wg, tube.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Tube services spawned!\n")

	wg.Wait()
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Tube service waitgroup is updated correctly
func (tube *tubeImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
