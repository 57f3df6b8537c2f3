package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/event"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/internal/provider"
	"github.com/hbomb79/Tube/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.Get("DownloadServ")

const artifactPrefix = "tube-"

type (
	sourceProvider interface {
		ValidateURL(url string) bool
		Info(ctx context.Context, url string) (*provider.VideoInfo, error)
	}

	fetcher interface {
		Fetch(ctx context.Context, sourceURL string, selector provider.Selector, destination string, sink progress.Sink) error
	}

	merger interface {
		Merge(ctx context.Context, videoPath string, audioPath string, outputPath string) error
	}

	// Request is a single accepted download. An empty Resolution falls back to
	// the configured default; a nil ID is replaced with a random one.
	Request struct {
		ID         uuid.UUID
		URL        string
		Resolution string
	}

	// DeliverFunc transmits the merged file at path to the client. It is
	// called exactly once per successful merge, before any cleanup occurs.
	DeliverFunc func(path string) error

	// Service coordinates the fetch-fetch-merge-deliver-cleanup sequence for
	// each download request. Every request gets a unique ID which keys both
	// its progress handle and its temporary artifacts, so concurrent requests
	// never interfere with one another.
	Service struct {
		config    Config
		provider  sourceProvider
		fetcher   fetcher
		merger    merger
		tracker   *progress.Tracker
		eventBus  event.EventDispatcher
		slots     chan struct{}
		wg        sync.WaitGroup
		createdAt time.Time
	}
)

// New creates a download service. The configured TempDir is created if it does
// not exist; if the path points to an existing file, an error is returned.
func New(config Config, source sourceProvider, fetcher fetcher, merger merger, tracker *progress.Tracker, eventBus event.EventDispatcher) (*Service, error) {
	if config.TempDir == "" {
		config.TempDir = filepath.Join(os.TempDir(), "tube")
	}
	if config.DefaultResolution == "" {
		config.DefaultResolution = "360p"
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	if info, err := os.Stat(config.TempDir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("temp path '%s' is not a directory", config.TempDir)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(config.TempDir, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("temp path '%s' could not be created: %w", config.TempDir, err)
		}
	} else {
		return nil, fmt.Errorf("temp path '%s' could not be accessed: %w", config.TempDir, err)
	}

	return &Service{
		config:    config,
		provider:  source,
		fetcher:   fetcher,
		merger:    merger,
		tracker:   tracker,
		eventBus:  eventBus,
		slots:     make(chan struct{}, config.MaxConcurrent),
		createdAt: time.Now(),
	}, nil
}

// Run removes temporary artifacts orphaned by a previous process, and then
// blocks until the context is cancelled. Before returning, it waits for all
// in-flight pipelines to finish.
func (service *Service) Run(ctx context.Context) error {
	if removed := service.sweep(); removed > 0 {
		log.Emit(logger.REMOVE, "Removed %d orphaned artifact(s) from %s\n", removed, service.config.TempDir)
	}

	log.Emit(logger.NEW, "Download service started (max %d concurrent)\n", service.config.MaxConcurrent)
	<-ctx.Done()

	log.Emit(logger.STOP, "Download service closing, waiting for in-flight downloads...\n")
	service.wg.Wait()
	return nil
}

// Info retrieves the metadata for the video at the URL. Any failure, including
// an unrecognised URL, is reported as ErrMetadata.
func (service *Service) Info(ctx context.Context, url string) (*provider.VideoInfo, error) {
	if !service.provider.ValidateURL(url) {
		return nil, fmt.Errorf("%w: %w", ErrMetadata, ErrInvalidSourceURL)
	}

	info, err := service.provider.Info(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadata, err)
	}

	return info, nil
}

// Download runs the full pipeline for the request, calling deliver with the
// path of the merged file once it is ready. Temporary artifacts are removed on
// every exit path.
//
// An unrecognised URL is rejected with ErrInvalidSourceURL before any progress
// handle or file is created. Once a pipeline has started, the request context
// only governs the wait for a free pipeline slot: the pipeline itself runs to
// completion or failure.
func (service *Service) Download(ctx context.Context, request Request, deliver DeliverFunc) error {
	if !service.provider.ValidateURL(request.URL) {
		log.Emit(logger.WARNING, "Rejected download for invalid URL %q\n", request.URL)
		return fmt.Errorf("%w: %q", ErrInvalidSourceURL, request.URL)
	}

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.Resolution == "" {
		request.Resolution = service.config.DefaultResolution
	}

	select {
	case service.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-service.slots }()

	service.wg.Add(1)
	defer service.wg.Done()

	p := &pipeline{
		Request:  request,
		handle:   service.tracker.Start(request.ID),
		eventBus: service.eventBus,
		artifacts: artifacts{
			video:  service.artifactPath(request.ID, "video"),
			audio:  service.artifactPath(request.ID, "audio"),
			merged: service.artifactPath(request.ID, "merged"),
		},
	}
	p.transition(Validating)

	log.Emit(logger.NEW, "Starting download %s for %s @ %s\n", request.ID, request.URL, request.Resolution)
	err := service.run(context.WithoutCancel(ctx), p, deliver)
	if err != nil {
		log.Emit(logger.ERROR, "Download %s failed: %v\n", request.ID, err)
		p.transition(Failed)
		p.artifacts.remove()
	} else {
		p.transition(CleaningUp)
		p.artifacts.remove()
		p.transition(Done)
		log.Emit(logger.SUCCESS, "Download %s completed\n", request.ID)
	}

	p.handle.Finish()
	service.eventBus.Dispatch(event.DOWNLOAD_COMPLETE, request.ID)
	return err
}

func (service *Service) run(ctx context.Context, p *pipeline, deliver DeliverFunc) error {
	if err := service.fetch(ctx, p); err != nil {
		return err
	}

	p.transition(Merging)
	if err := service.merger.Merge(ctx, p.artifacts.video, p.artifacts.audio, p.artifacts.merged); err != nil {
		return fmt.Errorf("%w: %w", ErrMerge, err)
	}

	p.transition(Delivering)
	if err := deliver(p.artifacts.merged); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	return nil
}

// fetch retrieves the video and audio streams in to their temporary artifacts. By
// default the audio fetch only begins once the video fetch has completed; when
// ParallelFetch is enabled both run at once, each reporting to its own slot.
func (service *Service) fetch(ctx context.Context, p *pipeline) error {
	videoSelector := provider.VideoWithResolution("mp4", p.Resolution)
	audioSelector := provider.AudioOnly()
	service.estimateSizes(ctx, p, videoSelector, audioSelector)

	fetchVideo := func(ctx context.Context) error {
		err := service.fetcher.Fetch(ctx, p.URL, videoSelector, p.artifacts.video, p.handle.Slot(progress.VideoSlot))
		if err != nil {
			return fmt.Errorf("%w: video stream: %w", ErrFetch, err)
		}
		return nil
	}
	fetchAudio := func(ctx context.Context) error {
		err := service.fetcher.Fetch(ctx, p.URL, audioSelector, p.artifacts.audio, p.handle.Slot(progress.AudioSlot))
		if err != nil {
			return fmt.Errorf("%w: audio stream: %w", ErrFetch, err)
		}
		return nil
	}

	p.transition(FetchingVideo)
	if !service.config.ParallelFetch {
		if err := fetchVideo(ctx); err != nil {
			return err
		}

		p.transition(FetchingAudio)
		return fetchAudio(ctx)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := fetchVideo(groupCtx); err != nil {
			return err
		}

		p.transition(FetchingAudio)
		return nil
	})
	group.Go(func() error { return fetchAudio(groupCtx) })

	return group.Wait()
}

// estimateSizes seeds both progress slots with the sizes of the variants the
// fetches will select, so the combined percentage has its full denominator
// before the first byte arrives. A failed lookup is left for the fetch itself
// to report.
func (service *Service) estimateSizes(ctx context.Context, p *pipeline, videoSelector provider.Selector, audioSelector provider.Selector) {
	info, err := service.provider.Info(ctx, p.URL)
	if err != nil {
		log.Emit(logger.DEBUG, "Unable to estimate stream sizes for download %s: %v\n", p.ID, err)
		return
	}

	if variant, err := provider.Select(info.Variants, videoSelector); err == nil {
		p.handle.Slot(progress.VideoSlot).Info(variant.ContentLength)
	}
	if variant, err := provider.Select(info.Variants, audioSelector); err == nil {
		p.handle.Slot(progress.AudioSlot).Info(variant.ContentLength)
	}
}

func (service *Service) artifactPath(id uuid.UUID, kind string) string {
	return filepath.Join(service.config.TempDir, fmt.Sprintf("%s%s-%s.mp4", artifactPrefix, id, kind))
}

// sweep removes artifacts in the temp directory which were last modified before
// this service was created. Such files can only have been left behind by a
// process which exited mid-pipeline.
func (service *Service) sweep() int {
	matches, err := filepath.Glob(filepath.Join(service.config.TempDir, artifactPrefix+"*"))
	if err != nil {
		log.Emit(logger.WARNING, "Failed to scan temp directory for orphaned artifacts: %v\n", err)
		return 0
	}

	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(service.createdAt) {
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Emit(logger.WARNING, "Failed to remove orphaned artifact %s: %v\n", path, err)
			continue
		}
		removed++
	}

	return removed
}
