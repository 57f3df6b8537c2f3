package progress_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Percentage_GuardsDivideByZero(t *testing.T) {
	tests := []struct {
		summary     string
		expected    int64
		transferred int64
		want        float64
	}{
		{"nothing known", 0, 0, 0},
		{"bytes before size", 0, 100, 0},
		{"halfway", 200, 100, 50},
		{"complete", 200, 200, 100},
		{"overshoot clamps", 100, 150, 100},
		{"negative expected", -1, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			got := progress.Percentage(tt.expected, tt.transferred)
			assert.False(t, math.IsNaN(got))
			assert.False(t, math.IsInf(got, 0))
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func Test_State_ProgressNeverDecreases(t *testing.T) {
	var s progress.State
	s.Info(1000)
	s.Progress(400)
	s.Progress(100)

	expected, transferred := s.Snapshot()
	assert.EqualValues(t, 1000, expected)
	assert.EqualValues(t, 400, transferred)
}

func Test_Handle_CombinesSlots(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{})
	h := tracker.Start(uuid.New())
	assert.Zero(t, h.Percentage())

	h.Slot(progress.VideoSlot).Info(300)
	h.Slot(progress.AudioSlot).Info(100)
	h.Slot(progress.VideoSlot).Progress(300)
	assert.InDelta(t, 75, h.Percentage(), 0.0001)

	h.Slot(progress.AudioSlot).Progress(100)
	assert.InDelta(t, 100, h.Percentage(), 0.0001)
}

func Test_State_UnknownSizeKeepsEstimate(t *testing.T) {
	var s progress.State
	s.Info(500)
	s.Info(0)
	s.Info(-1)

	expected, _ := s.Snapshot()
	assert.EqualValues(t, 500, expected)
}

func Test_Handle_LateSizedSlotDoesNotRegress(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{})
	h := tracker.Start(uuid.New())

	h.Slot(progress.VideoSlot).Info(90)
	h.Slot(progress.VideoSlot).Progress(90)
	assert.InDelta(t, 100, h.Percentage(), 0.0001)

	// The audio size arriving now would compute as 90%
	h.Slot(progress.AudioSlot).Info(10)
	assert.InDelta(t, 100, h.Percentage(), 0.0001)

	h.Slot(progress.AudioSlot).Progress(10)
	assert.InDelta(t, 100, h.Percentage(), 0.0001)
}

func Test_Handle_MonotonicUnderConcurrentWrites(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{})
	h := tracker.Start(uuid.New())
	h.Slot(progress.VideoSlot).Info(10_000)
	h.Slot(progress.AudioSlot).Info(10_000)

	wg := &sync.WaitGroup{}
	for _, slot := range []progress.Slot{progress.VideoSlot, progress.AudioSlot} {
		wg.Add(1)
		go func(state *progress.State) {
			defer wg.Done()
			for i := int64(1); i <= 10_000; i += 7 {
				state.Progress(i)
			}
			state.Progress(10_000)
		}(h.Slot(slot))
	}

	last := 0.0
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for {
		pct := h.Percentage()
		require.GreaterOrEqual(t, pct, last, "percentage must never decrease")
		last = pct

		select {
		case <-done:
			assert.InDelta(t, 100, h.Percentage(), 0.0001)
			return
		default:
		}
	}
}

func Test_Tracker_StartResetsAndTracksLatest(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{})
	assert.Nil(t, tracker.Latest())
	assert.Equal(t, progress.Snapshot{}, tracker.LatestSource()())

	first := uuid.New()
	h := tracker.Start(first)
	h.Slot(progress.VideoSlot).Info(10)
	h.Slot(progress.VideoSlot).Progress(5)

	second := uuid.New()
	tracker.Start(second)
	assert.Equal(t, second, tracker.Latest().ID())
	assert.Zero(t, tracker.LatestSource()().Percentage)

	snap := tracker.SourceFor(first)()
	assert.True(t, snap.Known)
	assert.InDelta(t, 50, snap.Percentage, 0.0001)

	unknown := uuid.New()
	snap = tracker.SourceFor(unknown)()
	assert.False(t, snap.Known)
	assert.Equal(t, unknown, snap.ID)
	assert.Zero(t, snap.Percentage)
}

func Test_Tracker_PruneEvictsFinishedAfterRetention(t *testing.T) {
	tracker := progress.NewTracker(progress.Config{Retention: time.Minute})
	running := tracker.Start(uuid.New())
	finished := tracker.Start(uuid.New())
	finished.Finish()

	assert.Equal(t, 0, tracker.Prune(time.Now()))
	assert.Equal(t, 1, tracker.Prune(time.Now().Add(2*time.Minute)))

	_, ok := tracker.Get(finished.ID())
	assert.False(t, ok)
	_, ok = tracker.Get(running.ID())
	assert.True(t, ok)
}

func Test_Notify_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan progress.Snapshot, 16)

	done := make(chan error)
	go func() {
		done <- progress.Notify(ctx, 5*time.Millisecond, func() progress.Snapshot {
			return progress.Snapshot{Percentage: 42}
		}, func(s progress.Snapshot) error {
			ticks <- s
			return nil
		})
	}()

	first := <-ticks
	assert.InDelta(t, 42, first.Percentage, 0.0001)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notifier did not return after context cancellation")
	}
}

func Test_Notify_StopsOnEmitError(t *testing.T) {
	errGone := errors.New("client gone")
	err := progress.Notify(context.Background(), time.Millisecond, func() progress.Snapshot {
		return progress.Snapshot{}
	}, func(progress.Snapshot) error {
		return errGone
	})

	assert.ErrorIs(t, err, errGone)
}
