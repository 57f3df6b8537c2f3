package progress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/pkg/logger"
	psync "github.com/hbomb79/Tube/pkg/sync"
)

var log = logger.Get("Progress")

type Config struct {
	Interval  time.Duration `yaml:"interval" env:"PROGRESS_INTERVAL" env-default:"1s"`
	Retention time.Duration `yaml:"retention" env:"PROGRESS_RETENTION" env-default:"5m"`
}

type (
	// Snapshot is a point-in-time reading of a download's progress, as
	// observed by a notifier. Known is false when no download with the
	// requested ID has been started (yet).
	Snapshot struct {
		ID         uuid.UUID
		Percentage float64
		Stage      string
		Known      bool
	}

	// Source produces a fresh Snapshot each time it is called.
	Source func() Snapshot

	// Tracker maps download IDs to their progress handles. Finished handles
	// are kept for the retention period so that late subscribers still observe
	// the final state, after which the janitor in Run evicts them.
	Tracker struct {
		config  Config
		handles psync.TypedSyncMap[uuid.UUID, *Handle]
		latest  atomic.Pointer[Handle]
	}
)

func NewTracker(config Config) *Tracker {
	return &Tracker{config: config}
}

func (tracker *Tracker) Interval() time.Duration {
	if tracker.config.Interval <= 0 {
		return time.Second
	}

	return tracker.config.Interval
}

// Start registers a fresh, zeroed handle for the download ID provided and
// marks it as the most recently started download. Any existing handle
// for the same ID is replaced.
func (tracker *Tracker) Start(id uuid.UUID) *Handle {
	handle := newHandle(id)
	tracker.handles.Store(id, handle)
	tracker.latest.Store(handle)

	log.Emit(logger.NEW, "Tracking progress for download %s\n", id)
	return handle
}

func (tracker *Tracker) Get(id uuid.UUID) (*Handle, bool) {
	return tracker.handles.Load(id)
}

// Latest returns the handle of the most recently started download, or nil
// if no download has started since the process began.
func (tracker *Tracker) Latest() *Handle {
	return tracker.latest.Load()
}

// SourceFor returns a Source reading the handle for the ID provided. The
// handle is resolved on every call, so a subscriber may connect before the
// download itself is started.
func (tracker *Tracker) SourceFor(id uuid.UUID) Source {
	return func() Snapshot {
		handle, ok := tracker.Get(id)
		if !ok {
			return Snapshot{ID: id}
		}

		return snapshotOf(handle)
	}
}

// LatestSource returns a Source which always reads whichever download was
// started most recently.
func (tracker *Tracker) LatestSource() Source {
	return func() Snapshot {
		handle := tracker.Latest()
		if handle == nil {
			return Snapshot{}
		}

		return snapshotOf(handle)
	}
}

// Run is the janitor loop for the tracker, evicting finished handles once
// they have outlived the retention period. Blocks until ctx is cancelled.
func (tracker *Tracker) Run(ctx context.Context) error {
	period := tracker.config.Retention / 2
	if period <= 0 {
		period = time.Minute
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tracker.Prune(time.Now())
		case <-ctx.Done():
			log.Emit(logger.STOP, "Progress tracker janitor shutting down\n")
			return nil
		}
	}
}

// Prune evicts every finished handle whose retention period has elapsed
// as of 'now'. The number of handles evicted is returned.
func (tracker *Tracker) Prune(now time.Time) int {
	evicted := 0
	tracker.handles.Range(func(id uuid.UUID, handle *Handle) bool {
		if handle.Finished() && now.Sub(handle.FinishedAt()) >= tracker.config.Retention {
			tracker.handles.Delete(id)
			evicted++
		}

		return true
	})

	if evicted > 0 {
		log.Emit(logger.REMOVE, "Evicted %d finished progress handle(s)\n", evicted)
	}
	return evicted
}

func snapshotOf(handle *Handle) Snapshot {
	return Snapshot{
		ID:         handle.ID(),
		Percentage: handle.Percentage(),
		Stage:      handle.Stage(),
		Known:      true,
	}
}
